// Package cmd is for command line interactions with deconvolve
package cmd

import (
	"os"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/jbloomlab/deconvolver-code/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	configFile string
	verbose    bool
	cpuprofile string
	memprofile string

	cpuProfileFile *os.File
)

// flagKeys maps flags to nested setting names. Other flags set the
// top-level setting of the same name, dashes as underscores.
var flagKeys = map[string]string{
	"clamp":           "clamp.default",
	"key":             "key.sequence",
	"key-prepended":   "key.prepended",
	"fuzznuc":         "fuzznuc.path",
	"reads-per-chunk": "fuzznuc.reads_per_chunk",
	"workdir":         "fuzznuc.workdir",
	"keep":            "fuzznuc.keep",
	"addr":            "serve.addr",
}

func settingName(flag string) string {
	if key, ok := flagKeys[flag]; ok {
		return key
	}
	return strings.ReplaceAll(flag, "-", "_")
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "deconvolve",
	Short: "Sort sequencing reads by DNA barcode and trim the barcodes away",
	Long: `Sort sequencing reads by DNA barcode and trim the barcodes away.

Barcodes are located in every read with fuzznuc, allowing a number of
mismatches. Reads hitting exactly one barcode are trimmed to the sequence
between their barcodes and clamps and written to that barcode's file.
Everything else ends up in the multicoded, untrimmable, short or
unassigned files, with the reasons in the reports.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

func init() {
	config.SetDefaults(viper.GetViper())

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "read configuration from `file` (JSON or YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug messages")
	rootCmd.PersistentFlags().StringVar(&cpuprofile, "cpuprofile", "", "write cpu profile to `file`")
	rootCmd.PersistentFlags().StringVar(&memprofile, "memprofile", "", "write memory profile to `file`")
}

// setup binds the running command's flags to viper, so subcommands can
// share setting names, and starts profiling.
func setup(cmd *cobra.Command, args []string) error {
	if verbose {
		log.SetLevel(log.Debug)
	}
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err != nil || cmd.Root().PersistentFlags().Lookup(f.Name) != nil {
			return
		}
		err = viper.BindPFlag(settingName(f.Name), f)
	})
	if err != nil {
		return err
	}

	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		cpuProfileFile = f
	}
	return nil
}

func teardown() error {
	if cpuProfileFile != nil {
		pprof.StopCPUProfile()
		cpuProfileFile.Close()
	}
	if memprofile != "" {
		f, err := os.Create(memprofile)
		if err != nil {
			log.Fatal("could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
	}
	return nil
}

// loadConfig merges the config file, flags and defaults.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper(), configFile)
}
