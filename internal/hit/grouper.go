package hit

import (
	"errors"
	"fmt"
)

// ErrSourceExhaustedEarly is reported by a Grouper whose underlying
// Scanner failed before reaching its end.
var ErrSourceExhaustedEarly = errors.New("hit source exhausted early")

// Scanner is a forward-only stream of hits, in the manner of bufio.Scanner.
type Scanner interface {
	Scan() bool
	Hit() Hit
	Err() error
}

// SliceScanner scans an in-memory slice of hits.
type SliceScanner struct {
	hits []Hit
	cur  int
}

// NewSliceScanner returns a Scanner over hits.
func NewSliceScanner(hits []Hit) *SliceScanner {
	return &SliceScanner{hits: hits, cur: -1}
}

func (s *SliceScanner) Scan() bool {
	if s.cur+1 >= len(s.hits) {
		s.cur = len(s.hits)
		return false
	}
	s.cur++
	return true
}

func (s *SliceScanner) Hit() Hit { return s.hits[s.cur] }

func (s *SliceScanner) Err() error { return nil }

// Grouper turns a Scanner into a stream of Groups, one per run of
// consecutive hits with the same read id. The input is not re-sorted: a
// read id that shows up again after its run ended starts a new Group.
//
//	g := hit.NewGrouper(scanner)
//	for g.Next() {
//		process(g.Group())
//	}
//	if err := g.Err(); err != nil { ... }
type Grouper struct {
	src     Scanner
	pending *Hit
	group   Group
	err     error
	done    bool
}

// NewGrouper returns a Grouper reading from src.
func NewGrouper(src Scanner) *Grouper {
	return &Grouper{src: src}
}

// Next advances to the next group and reports whether there is one.
func (g *Grouper) Next() bool {
	if g.done {
		return false
	}
	if g.pending == nil {
		if !g.src.Scan() {
			g.finish()
			return false
		}
		h := g.src.Hit()
		g.pending = &h
	}
	first := *g.pending
	g.pending = nil
	g.group = Group{ReadID: first.ReadID, Hits: []Hit{first}}
	for g.src.Scan() {
		h := g.src.Hit()
		if h.ReadID != first.ReadID {
			g.pending = &h
			return true
		}
		g.group.Hits = append(g.group.Hits, h)
	}
	g.finish()
	// a run cut short by a failing source is dropped
	return g.err == nil
}

func (g *Grouper) finish() {
	g.done = true
	if err := g.src.Err(); err != nil {
		g.err = fmt.Errorf("%w: %w", ErrSourceExhaustedEarly, err)
	}
}

// Group returns the group produced by the last call to Next.
func (g *Grouper) Group() Group {
	return g.group
}

// Err returns the error, if any, that stopped the grouper.
func (g *Grouper) Err() error {
	return g.err
}

// Collect drains g into a slice. Convenient for tests and small inputs.
func Collect(g *Grouper) ([]Group, error) {
	var groups []Group
	for g.Next() {
		groups = append(groups, g.Group())
	}
	return groups, g.Err()
}
