// Package config holds the settings of a deconvolution run. They are
// unmarshalled from viper, which merges the config file (JSON or YAML)
// with the command line flags (see /cmd).
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/spf13/viper"
)

// Output formats.
const (
	FormatAuto  = "auto"
	FormatFasta = "fasta"
	FormatFastq = "fastq"
)

// Destination sends the reads of one or more barcodes to a file.
type Destination struct {
	// the barcode names
	Barcodes []string `mapstructure:"barcodes"`
	// the file name, relative to the output directory unless absolute
	File string `mapstructure:"file"`
}

// ClampOverride sets the clamp length of one barcode.
type ClampOverride struct {
	Barcode string `mapstructure:"barcode"`
	Length  int    `mapstructure:"length"`
}

// ClampConfig holds the clamp lengths.
type ClampConfig struct {
	Default   int             `mapstructure:"default"`
	Overrides []ClampOverride `mapstructure:"overrides"`
}

// KeyConfig describes the shared 5' key sequence.
type KeyConfig struct {
	Sequence string `mapstructure:"sequence"`
	// whether the key is prepended to the reads before searching
	Prepended bool `mapstructure:"prepended"`
}

// FuzznucConfig controls the external matcher.
type FuzznucConfig struct {
	Path          string `mapstructure:"path"`
	ReadsPerChunk int    `mapstructure:"reads_per_chunk"`
	WorkDir       string `mapstructure:"workdir"`
	Keep          bool   `mapstructure:"keep"`
}

// ServeConfig is for the HTTP API.
type ServeConfig struct {
	Addr string `mapstructure:"addr"`
}

// Config is the root-level settings struct.
//
// Barcode names are case sensitive, so everything keyed by barcode is a
// list rather than a map: viper lower-cases map keys.
type Config struct {
	// read files, FASTA or FASTQ, optionally gzipped
	Inputs []string `mapstructure:"inputs"`
	// FASTA file of barcode patterns
	Barcodes string `mapstructure:"barcodes"`
	// output directory
	Output string `mapstructure:"output"`
	// per-barcode output files; barcodes not listed get <name><ext>
	Destinations []Destination `mapstructure:"destinations"`
	// mismatches allowed per barcode match
	Mismatches int `mapstructure:"mismatches"`
	Threads    int `mapstructure:"threads"`
	// records buffered per output file
	CacheSize int         `mapstructure:"cache_size"`
	Clamp     ClampConfig `mapstructure:"clamp"`
	Key       KeyConfig   `mapstructure:"key"`
	// shortest clear range written to a barcode file
	MinLength int    `mapstructure:"min_length"`
	Format    string `mapstructure:"format"`
	Gzip      bool   `mapstructure:"gzip"`

	Fuzznuc FuzznucConfig `mapstructure:"fuzznuc"`
	Serve   ServeConfig   `mapstructure:"serve"`
}

// SetDefaults registers the default of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("output", "deconvolved")
	v.SetDefault("mismatches", 2)
	v.SetDefault("threads", runtime.NumCPU())
	v.SetDefault("cache_size", 1000)
	v.SetDefault("clamp.default", 6)
	v.SetDefault("min_length", 50)
	v.SetDefault("format", FormatAuto)
	v.SetDefault("fuzznuc.path", "fuzznuc")
	v.SetDefault("fuzznuc.reads_per_chunk", 10000)
	v.SetDefault("serve.addr", ":8080")
}

// Load reads file, if not empty, into v and decodes the merged settings.
// The result is not validated.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("read config %s", file), err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.E(errors.Invalid, "decode config", err)
	}
	c.Key.Sequence = strings.ToUpper(c.Key.Sequence)
	return &c, nil
}

// Validate reports every problem with the settings shared by all
// commands in a single errors.Invalid error.
func (c *Config) Validate() error {
	return invalid(c.problems())
}

// ValidateRun is Validate plus the settings a deconvolution run needs.
func (c *Config) ValidateRun() error {
	var problems []string
	if len(c.Inputs) == 0 {
		problems = append(problems, "no inputs")
	}
	if c.Barcodes == "" {
		problems = append(problems, "no barcodes file")
	}
	if c.Output == "" {
		problems = append(problems, "no output directory")
	}
	return invalid(append(problems, c.problems()...))
}

func invalid(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return errors.E(errors.Invalid, "config: "+strings.Join(problems, "; "))
}

func (c *Config) problems() (problems []string) {
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	if c.Mismatches < 0 {
		add("mismatches must not be negative, got %d", c.Mismatches)
	}
	if c.Threads < 0 {
		add("threads must not be negative, got %d", c.Threads)
	}
	if c.CacheSize < 0 {
		add("cache_size must not be negative, got %d", c.CacheSize)
	}
	if c.Clamp.Default < 0 {
		add("clamp.default must not be negative, got %d", c.Clamp.Default)
	}
	seen := make(map[string]bool)
	for _, o := range c.Clamp.Overrides {
		if o.Barcode == "" {
			add("clamp override without a barcode")
		}
		if o.Length < 0 {
			add("clamp override for %s must not be negative, got %d", o.Barcode, o.Length)
		}
		if seen[o.Barcode] {
			add("more than one clamp override for %s", o.Barcode)
		}
		seen[o.Barcode] = true
	}
	if strings.Trim(c.Key.Sequence, "ACGTN") != "" {
		add("key sequence %q is not DNA", c.Key.Sequence)
	}
	if c.Key.Prepended && c.Key.Sequence == "" {
		add("key.prepended is set without a key sequence")
	}
	if c.MinLength < 0 {
		add("min_length must not be negative, got %d", c.MinLength)
	}
	switch c.Format {
	case FormatAuto, FormatFasta, FormatFastq:
	default:
		add("format must be one of %s, %s or %s, got %q", FormatAuto, FormatFasta, FormatFastq, c.Format)
	}
	if c.Fuzznuc.ReadsPerChunk < 0 {
		add("fuzznuc.reads_per_chunk must not be negative, got %d", c.Fuzznuc.ReadsPerChunk)
	}
	routed := make(map[string]bool)
	for _, d := range c.Destinations {
		if d.File == "" {
			add("destination for %s has no file", strings.Join(d.Barcodes, ","))
		}
		for _, bc := range d.Barcodes {
			if routed[bc] {
				add("barcode %s has more than one destination", bc)
			}
			routed[bc] = true
		}
	}
	return problems
}

// DestinationMap maps barcode names to output file names.
func (c *Config) DestinationMap() map[string]string {
	m := make(map[string]string)
	for _, d := range c.Destinations {
		for _, bc := range d.Barcodes {
			m[bc] = d.File
		}
	}
	return m
}

// ClampOverrides maps barcode names to clamp lengths.
func (c *Config) ClampOverrides() map[string]int {
	m := make(map[string]int, len(c.Clamp.Overrides))
	for _, o := range c.Clamp.Overrides {
		m[o.Barcode] = o.Length
	}
	return m
}

// Ext is the output file extension for reads with or without qualities.
func (c *Config) Ext(fastq bool) string {
	ext := ".fasta"
	if c.WriteFastq(fastq) {
		ext = ".fastq"
	}
	if c.Gzip {
		ext += ".gz"
	}
	return ext
}

// WriteFastq reports whether outputs carry qualities, given whether the
// inputs have them.
func (c *Config) WriteFastq(fastq bool) bool {
	switch c.Format {
	case FormatFasta:
		return false
	case FormatFastq:
		return true
	}
	return fastq
}
