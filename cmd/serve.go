package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grailbio/base/log"
	"github.com/jbloomlab/deconvolver-code/internal/barcode"
	"github.com/jbloomlab/deconvolver-code/internal/server"
	"github.com/spf13/cobra"
)

// serveCmd serves classification and trimming over HTTP.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve barcode classification and trimming over HTTP",
	Long: `Serve barcode classification and trimming over HTTP

Endpoints:

  GET  /healthz
  POST /v1/classify    {"hits": [...]}
  POST /v1/trim        {"hits": [...], "read_length": N, "geometry": {...}}
  POST /v1/deconvolve  {"hits": [...], "read_length": N, "min_length": N}

With --barcodes, /v1/deconvolve looks the geometry up from the barcode
set and config; otherwise requests carry it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		var set *barcode.Set
		if c.Barcodes != "" {
			if set, err = loadBarcodes(c); err != nil {
				return err
			}
		}

		srv := &http.Server{
			Addr:         c.Serve.Addr,
			Handler:      server.New(set),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		done := make(chan error, 1)
		go func() {
			<-ctx.Done()
			log.Print("Server is shutting down...")
			shutdown, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			srv.SetKeepAlivesEnabled(false)
			done <- srv.Shutdown(shutdown)
		}()

		log.Printf("serving on %s", c.Serve.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return <-done
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "address to listen on")
	serveCmd.Flags().StringP("barcodes", "b", "", "FASTA file of barcodes")
	serveCmd.Flags().Int("clamp", 6, "default clamp length")
	serveCmd.Flags().String("key", "", "shared 5' key sequence")
	serveCmd.Flags().Bool("key-prepended", false, "the key is prepended to reads before searching")
}
