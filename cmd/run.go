package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cheggaaa/pb/v3"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/jbloomlab/deconvolver-code/config"
	"github.com/jbloomlab/deconvolver-code/internal/barcode"
	"github.com/jbloomlab/deconvolver-code/internal/deconvolve"
	"github.com/jbloomlab/deconvolver-code/internal/fuzznuc"
	"github.com/jbloomlab/deconvolver-code/internal/hit"
	"github.com/jbloomlab/deconvolver-code/internal/output"
	"github.com/jbloomlab/deconvolver-code/internal/reads"
	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Summary file names inside the output directory.
const (
	SummaryFile     = "summary.tsv"
	SummaryJSONFile = "summary.json"
)

var progress bool

// runCmd searches reads for barcodes with fuzznuc and deconvolves them.
var runCmd = &cobra.Command{
	Use:   "run [reads...]",
	Short: "Search reads for barcodes and sort them into per-barcode files",
	Long: `Search reads for barcodes and sort them into per-barcode files

"deconvolve run" writes the reads in chunks for fuzznuc, searches all
chunks in parallel and deconvolves the reads by the hits. Reads may be
given as arguments or as "inputs" in the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			viper.Set("inputs", args)
		}
		c, err := loadConfig()
		if err != nil {
			return err
		}
		if err := c.ValidateRun(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, c)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	addDeconvolveFlags(runCmd)

	runCmd.Flags().String("fuzznuc", "fuzznuc", "path to the fuzznuc executable")
	runCmd.Flags().Int("reads-per-chunk", 10000, "reads per fuzznuc invocation")
	runCmd.Flags().String("workdir", "", "directory for fuzznuc work files (default the system temp dir)")
	runCmd.Flags().Bool("keep", false, "keep the fuzznuc work files")
}

// addDeconvolveFlags adds the flags shared by run and assign.
func addDeconvolveFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("barcodes", "b", "", "FASTA file of barcodes")
	cmd.Flags().StringP("output", "o", "deconvolved", "output directory")
	cmd.Flags().IntP("mismatches", "m", 2, "mismatches allowed per barcode")
	cmd.Flags().IntP("threads", "t", 0, "parallel workers (default all CPUs)")
	cmd.Flags().Int("clamp", 6, "default clamp length")
	cmd.Flags().String("key", "", "shared 5' key sequence")
	cmd.Flags().Bool("key-prepended", false, "prepend the key to reads before searching")
	cmd.Flags().Int("min-length", 50, "shortest clear range written to a barcode file")
	cmd.Flags().String("format", config.FormatAuto, "output format: auto, fasta or fastq")
	cmd.Flags().Bool("gzip", false, "gzip the outputs")
	cmd.Flags().BoolVar(&progress, "progress", false, "show a progress bar")
}

// loadBarcodes reads the barcode set and warns about barcodes that are
// too close to tell apart at the configured mismatches.
func loadBarcodes(c *config.Config) (*barcode.Set, error) {
	bcs, err := barcode.Load(c.Barcodes)
	if err != nil {
		return nil, err
	}
	set, err := barcode.NewSet(bcs, barcode.Options{
		Clamp:          c.Clamp.Default,
		ClampOverrides: c.ClampOverrides(),
		Key:            c.Key.Sequence,
		KeyPrepended:   c.Key.Prepended,
	})
	if err != nil {
		return nil, err
	}
	for bc := range c.DestinationMap() {
		if !set.Has(bc) {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("destination for unknown barcode %s", bc))
		}
	}
	pairs := barcode.CollidingPairs(barcode.Collisions(bcs, c.Mismatches))
	for _, pair := range pairs {
		log.Printf("warning: barcodes %s are within %d mismatches of a common sequence", pair, c.Mismatches)
	}
	log.Printf("loaded %d barcodes from %s", len(bcs), c.Barcodes)
	return set, nil
}

func run(ctx context.Context, c *config.Config) error {
	set, err := loadBarcodes(c)
	if err != nil {
		return err
	}
	log.Print("Reading reads")
	idx, err := reads.Load(c.Key.Sequence, c.Key.Prepended, c.Inputs...)
	if err != nil {
		return err
	}
	log.Printf("loaded %d reads", idx.Len())

	runner := &fuzznuc.Runner{
		Path:          c.Fuzznuc.Path,
		Threads:       c.Threads,
		ReadsPerChunk: c.Fuzznuc.ReadsPerChunk,
		WorkDir:       c.Fuzznuc.WorkDir,
		Keep:          c.Fuzznuc.Keep,
	}
	res, err := runner.Search(ctx, idx, set, c.Mismatches)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			log.Error.Printf("cleanup: %v", err)
		}
	}()
	hits, err := res.Open()
	if err != nil {
		return err
	}
	defer hits.Close()
	return deconvolveReads(ctx, c, set, idx, hits)
}

// deconvolveReads sorts the reads of idx by hits into the output
// directory and writes the summaries.
func deconvolveReads(ctx context.Context, c *config.Config, set *barcode.Set, idx *reads.Index, hits hit.Scanner) (err error) {
	if c.Format == config.FormatFastq && !idx.IsFastq() {
		return errors.E(errors.Precondition, "fastq output requested for reads without qualities")
	}
	ws, err := output.OpenWriters(output.Layout{
		Dir:          c.Output,
		Ext:          c.Ext(idx.IsFastq()),
		Destinations: c.DestinationMap(),
		CacheSize:    c.CacheSize,
		Fasta:        !c.WriteFastq(idx.IsFastq()),
	}, set.Names())
	if err != nil {
		return err
	}
	reps, err := output.OpenReports(c.Output)
	if err != nil {
		ws.Close()
		return err
	}

	opts := deconvolve.Options{
		Barcodes:  set,
		Reads:     idx,
		Writers:   ws,
		Reports:   reps,
		MinLength: c.MinLength,
		Threads:   c.Threads,
	}
	var bar *pb.ProgressBar
	if progress {
		bar = pb.Full.Start64(int64(idx.Len()))
		opts.Progress = func(n int) { bar.Add(n) }
	}

	log.Print("Starting deconvolution")
	stats, err := deconvolve.Run(ctx, opts, hits)
	if bar != nil {
		bar.Finish()
	}
	var once errors.Once
	once.Set(err)
	once.Set(ws.Close())
	once.Set(reps.Close())
	if err := once.Err(); err != nil {
		return err
	}

	if err := writeSummary(c.Output, stats, set.Names()); err != nil {
		return err
	}
	log.Printf("%d reads assigned, %d multicoded, %d untrimmable, %d short, %d unassigned",
		stats.Assigned, stats.Ambiguous, stats.Untrimmable, stats.Short, stats.Unassigned)
	log.Print("done")
	return nil
}

func writeSummary(dir string, stats *deconvolve.Stats, names []string) (err error) {
	w, err := xopen.Wopen(filepath.Join(dir, SummaryFile))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	if err = stats.WriteSummary(w, names); err != nil {
		return err
	}
	b, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, SummaryJSONFile), append(b, '\n'), 0o644)
}
