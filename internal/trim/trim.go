// Package trim computes the clear range of a read: what is left once the
// barcodes, their clamps and the key sequence are cut away.
package trim

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/jbloomlab/deconvolver-code/internal/hit"
)

// MaxHits is the largest number of hits to one barcode that Trim models.
const MaxHits = 3

// Geometry describes the layout around a barcode.
type Geometry struct {
	// Clamp is the number of bases next to the barcode that are cut with it.
	Clamp int `json:"clamp_length"`
	// KeyLength is the length of the shared 5' key sequence, 0 if none.
	KeyLength int `json:"key_length"`
	// KeyPrepended is set when the key was physically prepended to the
	// sequence the hits were measured against; the read length passed to
	// Trim then includes the key. Otherwise the key is virtual: it
	// precedes the measured sequence in the raw read.
	KeyPrepended bool `json:"key_prepended"`
}

// ReasonKind names why a read has no clear range.
type ReasonKind string

const (
	TooManyHits         ReasonKind = "TOO_MANY_HITS"
	MisorientedBarcodes ReasonKind = "MISORIENTED_BARCODES"
	OverlappingBarcodes ReasonKind = "OVERLAPPING_BARCODES"
	// BelowMinLength is never produced by Trim; see ApplyMinLength.
	BelowMinLength ReasonKind = "BELOW_MIN_LENGTH"
)

// Reason pairs a ReasonKind with the hits that led to it, sorted the way
// the trimmer saw them.
type Reason struct {
	Kind ReasonKind `json:"kind"`
	Hits []hit.Hit  `json:"hits"`
}

func (r *Reason) String() string {
	return fmt.Sprintf("%s %s", r.Kind, hit.Locations(r.Hits))
}

// Result is a clear range [Start, End) or the Reason there is none, in
// which case Start is -1.
type Result struct {
	Start  int     `json:"start"`
	End    int     `json:"end"`
	Reason *Reason `json:"reason,omitempty"`
}

// OK reports whether the result holds a clear range.
func (r Result) OK() bool {
	return r.Reason == nil
}

// Len is the length of the clear range, 0 when there is none.
func (r Result) Len() int {
	if !r.OK() {
		return 0
	}
	return r.End - r.Start
}

func fail(kind ReasonKind, end int, hits []hit.Hit) Result {
	return Result{Start: -1, End: end, Reason: &Reason{Kind: kind, Hits: hits}}
}

// Trim computes the clear range of a read of readLength bases from 1 to
// MaxHits hits, all to the same barcode pattern. Geometrically impossible
// hit sets are reported through Result.Reason; the error is reserved for
// inputs no caller should produce (no hits, empty hit ranges, hits to
// different patterns, negative lengths) and is of kind errors.Invalid.
//
// On success the range is in coordinates of the raw read: the measured
// sequence for a prepended or absent key, the measured sequence preceded
// by the key for a virtual key. A prepended key shortens the read by its
// length before the layout is looked up.
func Trim(hits []hit.Hit, readLength int, g Geometry) (Result, error) {
	if err := validate(hits, readLength, g); err != nil {
		return Result{}, err
	}
	if g.KeyPrepended {
		readLength -= g.KeyLength
	}
	sorted := make([]hit.Hit, len(hits))
	copy(sorted, hits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Min < sorted[j].Min
	})

	start, end, ok := clearRange(sorted, readLength, g.Clamp)
	if !ok {
		if len(sorted) > MaxHits {
			return fail(TooManyHits, readLength, sorted), nil
		}
		return fail(MisorientedBarcodes, readLength, sorted), nil
	}
	if start < 0 {
		start = 0
	}
	if end > readLength {
		end = readLength
	}
	if end < start {
		return fail(OverlappingBarcodes, end, sorted), nil
	}
	start, end = g.keyAdjust(start, end)
	return Result{Start: start, End: end}, nil
}

// clearRange looks up the strand layout of hits, sorted by Min, in the
// table of supported barcode layouts.
func clearRange(hits []hit.Hit, readLength, clamp int) (start, end int, ok bool) {
	layout := make([]byte, 0, MaxHits)
	for _, h := range hits {
		layout = append(layout, byte(h.Strand))
	}
	switch string(layout) {
	case "-":
		return 0, hits[0].Min - clamp, true
	case "+":
		return hits[0].Max + clamp, readLength, true
	case "+-":
		return hits[0].Max + clamp, hits[1].Min - clamp, true
	case "++":
		return hits[1].Max + clamp, readLength, true
	case "--":
		return 0, hits[0].Min - clamp, true
	case "++-":
		return hits[1].Max + clamp, hits[2].Min - clamp, true
	case "+--":
		return hits[0].Max + clamp, hits[1].Min - clamp, true
	}
	return 0, 0, false
}

// keyAdjust shifts a range measured without a virtual key into raw read
// coordinates.
func (g Geometry) keyAdjust(start, end int) (int, int) {
	if g.KeyLength > 0 && !g.KeyPrepended {
		start += g.KeyLength
		end += g.KeyLength
	}
	return start, end
}

func validate(hits []hit.Hit, readLength int, g Geometry) error {
	if len(hits) == 0 {
		return errors.E(errors.Invalid, "trim: no hits")
	}
	if readLength < 0 || g.Clamp < 0 || g.KeyLength < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("trim: negative geometry (read length %d, clamp %d, key %d)",
			readLength, g.Clamp, g.KeyLength))
	}
	if g.KeyPrepended && readLength < g.KeyLength {
		return errors.E(errors.Invalid, fmt.Sprintf("trim: read length %d shorter than prepended key %d",
			readLength, g.KeyLength))
	}
	for _, h := range hits {
		if err := h.Validate(); err != nil {
			return err
		}
		if h.Pattern != hits[0].Pattern {
			return errors.E(errors.Invalid, "trim: hits to more than one pattern: "+hit.Locations(hits))
		}
	}
	return nil
}

// ApplyMinLength turns a successful result shorter than minLength into a
// BELOW_MIN_LENGTH failure.
func ApplyMinLength(r Result, hits []hit.Hit, minLength int) Result {
	if !r.OK() || r.Len() >= minLength {
		return r
	}
	return Result{Start: -1, End: r.End, Reason: &Reason{Kind: BelowMinLength, Hits: hits}}
}
