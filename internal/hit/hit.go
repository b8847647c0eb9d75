// Package hit holds fuzzy-match hits of barcode patterns against reads and
// groups a stream of them by read.
package hit

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
)

// Strand is the read strand a pattern matched on.
type Strand byte

const (
	Forward Strand = '+'
	Reverse Strand = '-'
)

// ParseStrand accepts "+" or "-".
func ParseStrand(s string) (Strand, error) {
	switch s {
	case "+":
		return Forward, nil
	case "-":
		return Reverse, nil
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("invalid strand %q", s))
}

func (s Strand) String() string {
	return string(s)
}

// MarshalText lets strands travel as "+" and "-" in JSON.
func (s Strand) MarshalText() ([]byte, error) {
	return []byte{byte(s)}, nil
}

// UnmarshalText is the inverse of MarshalText.
func (s *Strand) UnmarshalText(text []byte) error {
	v, err := ParseStrand(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Hit is one occurrence of a barcode pattern in a read.
// Min and Max are zero-based, half-open.
type Hit struct {
	ReadID     string `json:"read_id"`
	Min        int    `json:"min"`
	Max        int    `json:"max"`
	Strand     Strand `json:"strand"`
	Pattern    string `json:"pattern"`
	Mismatches int    `json:"mismatches"`
}

// Validate reports hits that no matcher can legitimately produce.
func (h Hit) Validate() error {
	if h.Min < 0 || h.Min >= h.Max {
		return errors.E(errors.Invalid, fmt.Sprintf("hit %s on read %s: min must be below max", h, h.ReadID))
	}
	if h.Strand != Forward && h.Strand != Reverse {
		return errors.E(errors.Invalid, fmt.Sprintf("hit %s on read %s: bad strand", h, h.ReadID))
	}
	if h.Mismatches < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("hit %s on read %s: negative mismatches", h, h.ReadID))
	}
	return nil
}

// String renders the hit location as pattern:min..max:strand:mismatches.
func (h Hit) String() string {
	return fmt.Sprintf("%s:%d..%d:%c:%d", h.Pattern, h.Min, h.Max, byte(h.Strand), h.Mismatches)
}

// Locations joins the locations of hits with commas.
func Locations(hits []Hit) string {
	locs := make([]string, len(hits))
	for i, h := range hits {
		locs[i] = h.String()
	}
	return strings.Join(locs, ",")
}

// Group is every hit of one contiguous run sharing a read id.
type Group struct {
	ReadID string
	Hits   []Hit
}
