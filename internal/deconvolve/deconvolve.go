// Package deconvolve runs barcode assignment and trimming over a stream of
// matcher hits and routes every read to its output.
package deconvolve

import (
	"context"
	"fmt"

	"github.com/exascience/pargo/pipeline"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/jbloomlab/deconvolver-code/internal/assign"
	"github.com/jbloomlab/deconvolver-code/internal/barcode"
	"github.com/jbloomlab/deconvolver-code/internal/hit"
	"github.com/jbloomlab/deconvolver-code/internal/output"
	"github.com/jbloomlab/deconvolver-code/internal/trim"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/willf/bitset"
)

// Reads resolves read ids to sequences.
type Reads interface {
	Len() int
	Ordinal(id string) (int, bool)
	SearchLength(i int) int
	Record(i int) *fastx.Record
	Clear(i, start, end int) *fastx.Record
}

// Options configures Run.
type Options struct {
	Barcodes *barcode.Set
	Reads    Reads
	Writers  *output.Writers
	Reports  *output.Reports
	// MinLength is the shortest clear range written to a barcode output.
	MinLength int
	// Threads bounds the parallel classification stage; 0 means GOMAXPROCS.
	Threads int
	// Progress, if set, is called from the single writer stage with the
	// number of reads just handled.
	Progress func(n int)
}

// Report is the terminal outcome of one hit group.
type Report struct {
	ReadID  string
	Ordinal int
	Outcome assign.Outcome
	// Result is only meaningful for Unique outcomes.
	Result trim.Result
}

// Process classifies and trims one hit group. It is a pure function of
// its inputs and safe to call concurrently.
func Process(g hit.Group, set *barcode.Set, rs Reads, minLength int) (Report, error) {
	ord, ok := rs.Ordinal(g.ReadID)
	if !ok {
		return Report{}, errors.E(errors.NotExist, fmt.Sprintf("hits for unknown read %s", g.ReadID))
	}
	for _, h := range g.Hits {
		if err := h.Validate(); err != nil {
			return Report{}, errors.E(fmt.Sprintf("read %s", g.ReadID), err)
		}
	}
	r := Report{ReadID: g.ReadID, Ordinal: ord, Outcome: assign.Classify(g.Hits)}
	if r.Outcome.Kind != assign.Unique {
		return r, nil
	}
	geom, err := set.Geometry(r.Outcome.Pattern)
	if err != nil {
		return Report{}, err
	}
	res, err := trim.Trim(r.Outcome.Hits, rs.SearchLength(ord), geom)
	if err != nil {
		return Report{}, errors.E(fmt.Sprintf("read %s", g.ReadID), err)
	}
	if res.OK() {
		res = trim.ApplyMinLength(res, r.Outcome.Hits, minLength)
	}
	r.Result = res
	return r, nil
}

// groupSource feeds hit groups into a pargo pipeline.
type groupSource struct {
	ctx    context.Context
	groups *hit.Grouper
	data   []hit.Group
	err    error
}

func (s *groupSource) Err() error {
	return s.err
}

func (s *groupSource) Prepare(ctx context.Context) int {
	if s.ctx == nil {
		s.ctx = ctx
	}
	return -1
}

func (s *groupSource) Fetch(n int) (fetched int) {
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return 0
	}
	var data []hit.Group
	s.data = nil
	for fetched = 0; fetched < n; fetched++ {
		if !s.groups.Next() {
			if s.err = s.groups.Err(); s.err != nil {
				return 0
			}
			break
		}
		data = append(data, s.groups.Group())
	}
	s.data = data
	return
}

func (s *groupSource) Data() interface{} {
	return s.data
}

// Run consumes src, which must keep the hits of a read together, and
// writes every read of opts.Reads exactly once per hit group, plus once
// to the unassigned output if it never appeared in src.
//
// Classification and trimming run in parallel; writing and counting are
// done by a single ordered stage, so outputs follow the hit order.
func Run(ctx context.Context, opts Options, src hit.Scanner) (*Stats, error) {
	stats := NewStats()
	seen := bitset.New(uint(opts.Reads.Len()))
	sink := &sink{opts: opts, stats: stats, seen: seen}

	var p pipeline.Pipeline
	p.Source(&groupSource{ctx: ctx, groups: hit.NewGrouper(src)})
	p.Add(
		pipeline.LimitedPar(opts.Threads, pipeline.Receive(func(_ int, data interface{}) interface{} {
			groups := data.([]hit.Group)
			reports := make([]Report, 0, len(groups))
			for _, g := range groups {
				r, err := Process(g, opts.Barcodes, opts.Reads, opts.MinLength)
				if err != nil {
					p.SetErr(err)
					return reports
				}
				reports = append(reports, r)
			}
			return reports
		})),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			reports := data.([]Report)
			for _, r := range reports {
				if err := sink.write(r); err != nil {
					p.SetErr(err)
					return nil
				}
			}
			if opts.Progress != nil {
				opts.Progress(len(reports))
			}
			return nil
		})),
	)
	p.Run()
	if err := p.Err(); err != nil {
		return nil, err
	}

	unassigned := opts.Writers.Category(output.Unassigned)
	n := 0
	for i := 0; i < opts.Reads.Len(); i++ {
		if seen.Test(uint(i)) {
			continue
		}
		unassigned.Write(opts.Reads.Record(i))
		n++
	}
	stats.Unassigned = n
	if opts.Progress != nil && n > 0 {
		opts.Progress(n)
	}
	log.Debug.Printf("%d hit groups for %d of %d reads", stats.Groups, seen.Count(), opts.Reads.Len())
	return stats, nil
}

// sink is the single writer at the end of the pipeline.
type sink struct {
	opts  Options
	stats *Stats
	seen  *bitset.BitSet
}

func (s *sink) write(r Report) error {
	s.stats.Add(r)
	s.seen.Set(uint(r.Ordinal))
	rs := s.opts.Reads

	switch r.Outcome.Kind {
	case assign.Ambiguous:
		s.opts.Writers.Category(output.Ambiguous).Write(rs.Record(r.Ordinal))
		return s.opts.Reports.Ambiguous(r.ReadID, r.Outcome.Hits)
	case assign.Unique:
		if err := s.opts.Reports.Trim(r.ReadID, r.Outcome.Pattern, r.Result); err != nil {
			return err
		}
		switch {
		case r.Result.OK():
			w := s.opts.Writers.Barcode(r.Outcome.Pattern)
			if w == nil {
				return errors.E(errors.NotExist, fmt.Sprintf("no output for barcode %s", r.Outcome.Pattern))
			}
			w.Write(rs.Clear(r.Ordinal, r.Result.Start, r.Result.End))
		case r.Result.Reason.Kind == trim.BelowMinLength:
			s.opts.Writers.Category(output.Short).Write(rs.Record(r.Ordinal))
		default:
			log.Debug.Printf("untrimmable read %s: %s", r.ReadID, r.Result.Reason)
			s.opts.Writers.Category(output.Untrimmable).Write(rs.Record(r.Ordinal))
		}
	}
	return nil
}
