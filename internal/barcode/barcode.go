// Package barcode holds the known barcodes and the geometry around them.
package barcode

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/jbloomlab/deconvolver-code/internal/trim"
	"github.com/shenwei356/bio/seqio/fastx"
)

// Barcode is a named barcode sequence. The name is the pattern id the
// matcher reports.
type Barcode struct {
	Name     string
	Sequence string
}

// Options controls the geometry of a Set.
type Options struct {
	// Clamp is the default clamp length.
	Clamp int
	// ClampOverrides holds per-barcode clamp lengths.
	ClampOverrides map[string]int
	// Key is the shared 5' key sequence, if any.
	Key string
	// KeyPrepended is set when Key is prepended to reads before searching.
	KeyPrepended bool
}

// Set is an immutable collection of barcodes and their geometry.
type Set struct {
	barcodes []Barcode
	byName   map[string]int
	opts     Options
}

// Load reads barcodes from a FASTA (or FASTQ) file. Record ids become
// barcode names.
func Load(file string) ([]Barcode, error) {
	reader, err := fastx.NewDefaultReader(file)
	if err != nil {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("open barcodes %s", file), err)
	}
	defer reader.Close()

	var barcodes []Barcode
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(fmt.Sprintf("read barcodes %s", file), err)
		}
		barcodes = append(barcodes, Barcode{
			Name:     string(record.ID),
			Sequence: strings.ToUpper(string(record.Seq.Seq)),
		})
	}
	return barcodes, nil
}

// NewSet validates barcodes and options and returns a Set.
func NewSet(barcodes []Barcode, opts Options) (*Set, error) {
	if len(barcodes) == 0 {
		return nil, errors.E(errors.Invalid, "no barcodes")
	}
	if opts.Clamp < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("negative clamp length %d", opts.Clamp))
	}
	s := &Set{
		barcodes: barcodes,
		byName:   make(map[string]int, len(barcodes)),
		opts:     opts,
	}
	for i, bc := range barcodes {
		if bc.Name == "" || bc.Sequence == "" {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("barcode %d has no name or sequence", i))
		}
		if _, dup := s.byName[bc.Name]; dup {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("duplicate barcode %s", bc.Name))
		}
		s.byName[bc.Name] = i
	}
	for name, clamp := range opts.ClampOverrides {
		if _, ok := s.byName[name]; !ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("clamp override for unknown barcode %s", name))
		}
		if clamp < 0 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("negative clamp length %d for %s", clamp, name))
		}
	}
	return s, nil
}

// Barcodes returns the barcodes in load order.
func (s *Set) Barcodes() []Barcode {
	return s.barcodes
}

// Names returns the barcode names sorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.barcodes))
	for _, bc := range s.barcodes {
		names = append(names, bc.Name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether pattern names a barcode of the set.
func (s *Set) Has(pattern string) bool {
	_, ok := s.byName[pattern]
	return ok
}

// Key returns the key sequence and whether it is prepended to reads.
func (s *Set) Key() (string, bool) {
	return s.opts.Key, s.opts.KeyPrepended
}

// Geometry returns the trimming geometry for pattern.
func (s *Set) Geometry(pattern string) (trim.Geometry, error) {
	if !s.Has(pattern) {
		return trim.Geometry{}, errors.E(errors.NotExist, fmt.Sprintf("unknown barcode pattern %s", pattern))
	}
	clamp := s.opts.Clamp
	if c, ok := s.opts.ClampOverrides[pattern]; ok {
		clamp = c
	}
	return trim.Geometry{
		Clamp:        clamp,
		KeyLength:    len(s.opts.Key),
		KeyPrepended: s.opts.KeyPrepended,
	}, nil
}

// WritePatterns writes the barcodes as a fuzznuc pattern file, each
// allowing the given number of mismatches.
func (s *Set) WritePatterns(w io.Writer, mismatches int) error {
	for _, bc := range s.barcodes {
		if _, err := fmt.Fprintf(w, ">%s <mismatch=%d>\n%s\n", bc.Name, mismatches, bc.Sequence); err != nil {
			return err
		}
	}
	return nil
}
