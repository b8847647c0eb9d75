package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/jbloomlab/deconvolver-code/internal/hit"
	"github.com/jbloomlab/deconvolver-code/internal/reads"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var hitFiles []string

// assignCmd deconvolves reads by existing fuzznuc reports.
var assignCmd = &cobra.Command{
	Use:   "assign [reads...]",
	Short: "Sort reads into per-barcode files by existing fuzznuc reports",
	Long: `Sort reads into per-barcode files by existing fuzznuc reports

"deconvolve assign" skips the search and reads the hits from fuzznuc
reports written with -rformat excel. The hits of every read must be
contiguous, which fuzznuc guarantees within one report.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			viper.Set("inputs", args)
		}
		if len(hitFiles) == 0 {
			return errors.E(errors.Invalid, "no --hits given")
		}
		c, err := loadConfig()
		if err != nil {
			return err
		}
		if err := c.ValidateRun(); err != nil {
			return err
		}
		set, err := loadBarcodes(c)
		if err != nil {
			return err
		}
		idx, err := reads.Load(c.Key.Sequence, c.Key.Prepended, c.Inputs...)
		if err != nil {
			return err
		}
		log.Printf("loaded %d reads", idx.Len())

		hits, err := hit.Open(hitFiles...)
		if err != nil {
			return err
		}
		defer hits.Close()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return deconvolveReads(ctx, c, set, idx, hits)
	},
}

func init() {
	rootCmd.AddCommand(assignCmd)
	addDeconvolveFlags(assignCmd)
	assignCmd.Flags().StringSliceVar(&hitFiles, "hits", nil, "fuzznuc excel reports, in read order")
}
