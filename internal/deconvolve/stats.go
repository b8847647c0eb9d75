package deconvolve

import (
	"fmt"
	"io"
	"sort"

	"github.com/jbloomlab/deconvolver-code/internal/assign"
	"github.com/jbloomlab/deconvolver-code/internal/trim"
)

// BarcodeStats counts the reads written for one barcode and their
// trimmed bases.
type BarcodeStats struct {
	Reads int `json:"reads"`
	Bases int `json:"bases"`
}

// Stats accumulates outcomes over reads. It is not safe for concurrent
// use.
type Stats struct {
	Barcodes    map[string]*BarcodeStats `json:"barcodes"`
	Reasons     map[trim.ReasonKind]int  `json:"reasons"`
	Groups      int                      `json:"groups"`
	Assigned    int                      `json:"assigned"`
	Ambiguous   int                      `json:"ambiguous"`
	Untrimmable int                      `json:"untrimmable"`
	Short       int                      `json:"short"`
	Unassigned  int                      `json:"unassigned"`
}

// NewStats returns empty Stats.
func NewStats() *Stats {
	return &Stats{
		Barcodes: make(map[string]*BarcodeStats),
		Reasons:  make(map[trim.ReasonKind]int),
	}
}

func (s *Stats) barcode(pattern string) *BarcodeStats {
	b, ok := s.Barcodes[pattern]
	if !ok {
		b = &BarcodeStats{}
		s.Barcodes[pattern] = b
	}
	return b
}

// Add counts one read's report.
func (s *Stats) Add(r Report) {
	s.Groups++
	switch r.Outcome.Kind {
	case assign.Ambiguous:
		s.Ambiguous++
	case assign.Unique:
		if r.Result.OK() {
			s.Assigned++
			b := s.barcode(r.Outcome.Pattern)
			b.Reads++
			b.Bases += r.Result.Len()
			return
		}
		s.Reasons[r.Result.Reason.Kind]++
		if r.Result.Reason.Kind == trim.BelowMinLength {
			s.Short++
		} else {
			s.Untrimmable++
		}
	}
}

// WriteSummary writes the barcode distribution, one line per name in
// names (zero counts included) followed by any other barcode seen, then
// the outcome totals.
func (s *Stats) WriteSummary(w io.Writer, names []string) error {
	listed := make(map[string]bool, len(names))
	for _, name := range names {
		listed[name] = true
	}
	var extra []string
	for pattern := range s.Barcodes {
		if !listed[pattern] {
			extra = append(extra, pattern)
		}
	}
	sort.Strings(extra)

	if _, err := fmt.Fprintln(w, "#barcode\treads\tbases"); err != nil {
		return err
	}
	for _, name := range append(append([]string{}, names...), extra...) {
		b := s.Barcodes[name]
		if b == nil {
			b = &BarcodeStats{}
		}
		if _, err := fmt.Fprintf(w, "%s\t%d\t%d\n", name, b.Reads, b.Bases); err != nil {
			return err
		}
	}
	totals := []struct {
		name string
		n    int
	}{
		{"assigned", s.Assigned},
		{"multicoded", s.Ambiguous},
		{"untrimmable", s.Untrimmable},
		{"short", s.Short},
		{"unassigned", s.Unassigned},
	}
	for _, t := range totals {
		if _, err := fmt.Fprintf(w, "#%s\t%d\n", t.name, t.n); err != nil {
			return err
		}
	}
	kinds := make([]string, 0, len(s.Reasons))
	for kind := range s.Reasons {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		if _, err := fmt.Fprintf(w, "#reason %s\t%d\n", kind, s.Reasons[trim.ReasonKind(kind)]); err != nil {
			return err
		}
	}
	return nil
}
