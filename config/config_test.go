package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlConfig = `
inputs:
  - reads_1.fastq.gz
  - reads_2.fastq.gz
barcodes: barcodes.fasta
output: out
mismatches: 1
threads: 4
destinations:
  - barcodes: [BC01, BC02]
    file: pool.fastq
clamp:
  default: 4
  overrides:
    - barcode: BC03
      length: 8
key:
  sequence: tcag
  prepended: true
fuzznuc:
  keep: true
`

const jsonConfig = `{
  "inputs": ["reads.fasta"],
  "barcodes": "barcodes.fasta",
  "destinations": [{"barcodes": ["BC01"], "file": "one.fasta"}],
  "mismatches": 0,
  "threads": 2
}`

func load(t *testing.T, name, content string) *Config {
	file := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
	v := viper.New()
	SetDefaults(v)
	c, err := Load(v, file)
	require.NoError(t, err)
	return c
}

func TestLoadYAML(t *testing.T) {
	c := load(t, "config.yaml", yamlConfig)
	require.NoError(t, c.ValidateRun())

	assert.Equal(t, []string{"reads_1.fastq.gz", "reads_2.fastq.gz"}, c.Inputs)
	assert.Equal(t, "out", c.Output)
	assert.Equal(t, 1, c.Mismatches)
	assert.Equal(t, 4, c.Threads)
	assert.Equal(t, map[string]string{"BC01": "pool.fastq", "BC02": "pool.fastq"}, c.DestinationMap())
	assert.Equal(t, 4, c.Clamp.Default)
	assert.Equal(t, map[string]int{"BC03": 8}, c.ClampOverrides())
	assert.Equal(t, KeyConfig{Sequence: "TCAG", Prepended: true}, c.Key)
	assert.True(t, c.Fuzznuc.Keep)

	// defaults fill what the file leaves out
	assert.Equal(t, 50, c.MinLength)
	assert.Equal(t, 1000, c.CacheSize)
	assert.Equal(t, "fuzznuc", c.Fuzznuc.Path)
	assert.Equal(t, 10000, c.Fuzznuc.ReadsPerChunk)
	assert.Equal(t, ":8080", c.Serve.Addr)
}

func TestLoadJSON(t *testing.T) {
	c := load(t, "config.json", jsonConfig)
	require.NoError(t, c.ValidateRun())
	assert.Equal(t, 0, c.Mismatches)
	assert.Equal(t, "deconvolved", c.Output)
	assert.Equal(t, map[string]string{"BC01": "one.fasta"}, c.DestinationMap())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestValidate(t *testing.T) {
	c := &Config{
		Mismatches: -1,
		Clamp: ClampConfig{Overrides: []ClampOverride{
			{Barcode: "BC01", Length: 2},
			{Barcode: "BC01", Length: -2},
		}},
		Key:    KeyConfig{Prepended: true},
		Format: "sff",
		Destinations: []Destination{
			{Barcodes: []string{"BC01"}, File: "a.fasta"},
			{Barcodes: []string{"BC01"}},
		},
	}
	err := c.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(errors.Invalid, err))
	for _, want := range []string{
		"mismatches must not be negative",
		"clamp override for BC01 must not be negative",
		"more than one clamp override for BC01",
		"key.prepended is set without a key sequence",
		`got "sff"`,
		"destination for BC01 has no file",
		"barcode BC01 has more than one destination",
	} {
		assert.Contains(t, err.Error(), want)
	}

	err = (&Config{Format: FormatAuto}).ValidateRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no inputs; no barcodes file; no output directory")
	assert.NoError(t, (&Config{Format: FormatAuto}).Validate())
}

func TestExt(t *testing.T) {
	tests := []struct {
		format string
		gzip   bool
		fastq  bool
		want   string
	}{
		{FormatAuto, false, true, ".fastq"},
		{FormatAuto, false, false, ".fasta"},
		{FormatAuto, true, true, ".fastq.gz"},
		{FormatFasta, false, true, ".fasta"},
		{FormatFastq, true, false, ".fastq.gz"},
	}
	for _, test := range tests {
		c := &Config{Format: test.format, Gzip: test.gzip}
		assert.Equal(t, test.want, c.Ext(test.fastq), "%+v", test)
	}
}
