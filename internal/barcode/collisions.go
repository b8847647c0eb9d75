package barcode

import (
	"sort"
)

// Collision is a sequence that lies within the mismatch distance of more
// than one barcode. A read carrying it would hit all of them and end up
// ambiguous.
type Collision struct {
	Sequence string
	Barcodes []string
}

// Collisions expands every barcode to its mismatch neighborhood and
// returns the sequences shared by two or more barcodes, sorted.
func Collisions(barcodes []Barcode, distance int) []Collision {
	owners := make(map[string][]string)
	for _, bc := range barcodes {
		for _, seq := range Neighborhood(bc.Sequence, distance) {
			owners[seq] = append(owners[seq], bc.Name)
		}
	}
	var collisions []Collision
	for seq, names := range owners {
		if len(names) < 2 {
			continue
		}
		sort.Strings(names)
		collisions = append(collisions, Collision{Sequence: seq, Barcodes: names})
	}
	sort.Slice(collisions, func(i, j int) bool {
		return collisions[i].Sequence < collisions[j].Sequence
	})
	return collisions
}

// CollidingPairs reduces collisions to the distinct pairs of barcodes
// involved, "A/B" with A < B, sorted.
func CollidingPairs(collisions []Collision) []string {
	seen := make(map[string]struct{})
	for _, c := range collisions {
		for i := range c.Barcodes {
			for j := i + 1; j < len(c.Barcodes); j++ {
				seen[c.Barcodes[i]+"/"+c.Barcodes[j]] = struct{}{}
			}
		}
	}
	pairs := make([]string, 0, len(seen))
	for p := range seen {
		pairs = append(pairs, p)
	}
	sort.Strings(pairs)
	return pairs
}

// Neighborhood returns input and every sequence reachable from it by at
// most distance substitutions over A, C, G, T and N, each exactly once and
// ordered by distance. Other characters (IUPAC codes, separators) are left
// alone.
func Neighborhood(input string, distance int) []string {
	mutations := []rune{'A', 'C', 'G', 'T', 'N'}
	seen := map[string]struct{}{input: {}}
	out := []string{input}
	toCheck := []string{input}

	for ; distance > 0 && len(toCheck) > 0; distance-- {
		var nextCheck []string
		for _, cur := range toCheck {
			for i, c := range cur {
				switch c {
				case 'A', 'C', 'G', 'T', 'N':
					for _, replacement := range mutations {
						if replacement == c {
							continue
						}
						next := cur[:i] + string(replacement) + cur[i+1:]
						if _, ok := seen[next]; ok {
							continue
						}
						seen[next] = struct{}{}
						nextCheck = append(nextCheck, next)
					}
				}
			}
		}
		out = append(out, nextCheck...)
		toCheck = nextCheck
	}
	return out
}
