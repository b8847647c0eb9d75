package barcode

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/jbloomlab/deconvolver-code/internal/trim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func StringSlicesDiffer(expected []string, actual []string) (differ bool) {
	if len(expected) != len(actual) {
		return true
	}
	for i := range expected {
		if expected[i] != actual[i] {
			return true
		}
	}
	return false
}

func TestNeighborhood(t *testing.T) {
	type test struct {
		input    string
		distance int
		want     []string
	}

	tests := []test{
		{"A", 0, []string{"A"}},
		{"A", 1, []string{"A", "C", "G", "T", "N"}},
		{"A", 2, []string{"A", "C", "G", "T", "N"}},
		{"AT", 0, []string{"AT"}},
		{"AT", 1, []string{"AT", "CT", "GT", "TT", "NT", "AA", "AC", "AG", "AN"}},
		{"AT", 2, []string{"AT",
			"CT", "GT", "TT", "NT",
			"AA", "AC", "AG", "AN",
			"CA", "CC", "CG", "CN",
			"GA", "GC", "GG", "GN",
			"TA", "TC", "TG", "TN",
			"NA", "NC", "NG", "NN",
		}},
		{"A+T", 1, []string{"A+T", "C+T", "G+T", "T+T", "N+T", "A+A", "A+C", "A+G", "A+N"}},
	}

	for _, test := range tests {
		actual := Neighborhood(test.input, test.distance)

		sort.Strings(actual)
		sort.Strings(test.want)
		if StringSlicesDiffer(test.want, actual) {
			t.Errorf("Test: %#v, received: %#v", test, actual)
		}
	}
}

func TestNeighborhoodUnique(t *testing.T) {
	tests := []struct {
		distance int
		want     int
	}{
		{0, 1},
		{1, 17},
		{2, 113},
		{3, 369},
		{4, 625},
		{6, 625},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("Mismatches%d", test.distance), func(t *testing.T) {
			got := Neighborhood("ACGT", test.distance)
			require.Len(t, got, test.want)
			assert.Equal(t, "ACGT", got[0])
			unique := make(map[string]bool, len(got))
			for _, seq := range got {
				assert.False(t, unique[seq], "duplicate %s", seq)
				unique[seq] = true
			}
		})
	}
}

func BenchmarkNeighborhood(b *testing.B) {
	b.ReportAllocs()
	for mm := 0; mm <= 4; mm++ {
		b.Run(fmt.Sprintf("Mismatches%d", mm),
			func(b *testing.B) {
				for n := 0; n < b.N; n++ {
					Neighborhood("ACGTACGTGATCGATC", mm)
				}
			})
	}
}

func TestCollisions(t *testing.T) {
	barcodes := []Barcode{
		{"BC01", "AAAA"},
		{"BC02", "AAAT"},
		{"BC03", "GGGG"},
	}
	assert.Empty(t, Collisions(barcodes, 0))

	collisions := Collisions(barcodes, 1)
	require.NotEmpty(t, collisions)
	for _, c := range collisions {
		assert.Equal(t, []string{"BC01", "BC02"}, c.Barcodes)
	}
	assert.Equal(t, []string{"BC01/BC02"}, CollidingPairs(collisions))
	assert.True(t, sort.SliceIsSorted(collisions, func(i, j int) bool {
		return collisions[i].Sequence < collisions[j].Sequence
	}))
}

func TestLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), "barcodes.fasta")
	require.NoError(t, os.WriteFile(file, []byte(">BC01 first\nacgtac\n>BC02\nTTGGCC\n"), 0o644))
	barcodes, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, []Barcode{{"BC01", "ACGTAC"}, {"BC02", "TTGGCC"}}, barcodes)

	_, err = Load(filepath.Join(t.TempDir(), "nope.fasta"))
	assert.Error(t, err)
}

func TestSetGeometry(t *testing.T) {
	set, err := NewSet([]Barcode{{"BC01", "ACGT"}, {"BC02", "TTGG"}}, Options{
		Clamp:          6,
		ClampOverrides: map[string]int{"BC02": 2},
		Key:            "TCAG",
	})
	require.NoError(t, err)

	g, err := set.Geometry("BC01")
	require.NoError(t, err)
	assert.Equal(t, trim.Geometry{Clamp: 6, KeyLength: 4}, g)

	g, err = set.Geometry("BC02")
	require.NoError(t, err)
	assert.Equal(t, 2, g.Clamp)

	_, err = set.Geometry("BC99")
	require.Error(t, err)
	assert.True(t, errors.Is(errors.NotExist, err))

	assert.Equal(t, []string{"BC01", "BC02"}, set.Names())
	key, prepended := set.Key()
	assert.Equal(t, "TCAG", key)
	assert.False(t, prepended)
}

func TestNewSetInvalid(t *testing.T) {
	bcs := []Barcode{{"BC01", "ACGT"}}
	tests := map[string]struct {
		barcodes []Barcode
		opts     Options
	}{
		"empty":             {nil, Options{}},
		"duplicate":         {[]Barcode{{"BC01", "ACGT"}, {"BC01", "TTTT"}}, Options{}},
		"no sequence":       {[]Barcode{{"BC01", ""}}, Options{}},
		"negative clamp":    {bcs, Options{Clamp: -1}},
		"unknown override":  {bcs, Options{ClampOverrides: map[string]int{"BC07": 1}}},
		"negative override": {bcs, Options{ClampOverrides: map[string]int{"BC01": -2}}},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewSet(test.barcodes, test.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(errors.Invalid, err))
		})
	}
}

func TestWritePatterns(t *testing.T) {
	set, err := NewSet([]Barcode{{"BC01", "ACGT"}, {"BC02", "TTGG"}}, Options{})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, set.WritePatterns(&buf, 2))
	assert.Equal(t, ">BC01 <mismatch=2>\nACGT\n>BC02 <mismatch=2>\nTTGG\n", buf.String())
}
