// Package assign decides which barcode, if any, a read belongs to.
package assign

import (
	"sort"

	"github.com/jbloomlab/deconvolver-code/internal/hit"
)

// Kind classifies the outcome of barcode assignment for one read.
type Kind int

const (
	// Unassigned reads had no hits.
	Unassigned Kind = iota
	// Unique reads hit exactly one barcode pattern.
	Unique
	// Ambiguous reads hit more than one barcode pattern.
	Ambiguous
)

func (k Kind) String() string {
	switch k {
	case Unique:
		return "unique"
	case Ambiguous:
		return "ambiguous"
	}
	return "unassigned"
}

// MarshalText renders the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Outcome is the result of classifying the hits of one read.
type Outcome struct {
	Kind Kind `json:"kind"`
	// Pattern is set for Unique outcomes only.
	Pattern string `json:"pattern,omitempty"`
	// Hits are sorted by ascending mismatches; ties keep input order.
	Hits []hit.Hit `json:"hits"`
}

// Classify assigns the hits of one read to a barcode pattern.
//
// The hits are stable-sorted by mismatch count and the read is Ambiguous
// as soon as any two hits name different patterns, however far apart
// their mismatch counts are. Several hits to the same pattern are a
// Unique outcome and go to the trimmer together. hits is not modified.
func Classify(hits []hit.Hit) Outcome {
	switch len(hits) {
	case 0:
		return Outcome{Kind: Unassigned}
	case 1:
		return Outcome{Kind: Unique, Pattern: hits[0].Pattern, Hits: []hit.Hit{hits[0]}}
	}
	sorted := make([]hit.Hit, len(hits))
	copy(sorted, hits)
	// Equal mismatch counts keep the matcher's output order.
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Mismatches < sorted[j].Mismatches
	})
	best := sorted[0]
	for _, h := range sorted[1:] {
		if h.Pattern != best.Pattern {
			return Outcome{Kind: Ambiguous, Hits: sorted}
		}
	}
	return Outcome{Kind: Unique, Pattern: best.Pattern, Hits: sorted}
}

// Patterns lists the distinct patterns of an outcome's hits in order of
// first appearance.
func (o Outcome) Patterns() []string {
	seen := make(map[string]struct{}, len(o.Hits))
	var patterns []string
	for _, h := range o.Hits {
		if _, ok := seen[h.Pattern]; ok {
			continue
		}
		seen[h.Pattern] = struct{}{}
		patterns = append(patterns, h.Pattern)
	}
	return patterns
}
