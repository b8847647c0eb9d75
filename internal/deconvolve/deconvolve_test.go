package deconvolve

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/jbloomlab/deconvolver-code/internal/assign"
	"github.com/jbloomlab/deconvolver-code/internal/barcode"
	"github.com/jbloomlab/deconvolver-code/internal/hit"
	"github.com/jbloomlab/deconvolver-code/internal/output"
	"github.com/jbloomlab/deconvolver-code/internal/reads"
	"github.com/jbloomlab/deconvolver-code/internal/trim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const read40 = "AAAAAAAAAACCCCCCCCCCGGGGGGGGGGTTTTTTTTTT"

func writeFile(t *testing.T, dir, name, content string) string {
	file := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
	return file
}

func readFile(t *testing.T, file string) string {
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	return string(data)
}

func hitAt(read, pattern string, lo, hi int, strand hit.Strand, mm int) hit.Hit {
	return hit.Hit{ReadID: read, Pattern: pattern, Min: lo, Max: hi, Strand: strand, Mismatches: mm}
}

type fixture struct {
	dir     string
	set     *barcode.Set
	reads   *reads.Index
	writers *output.Writers
	reports *output.Reports
}

func newFixture(t *testing.T) *fixture {
	dir := t.TempDir()
	var fasta strings.Builder
	for _, id := range []string{"r1", "r2", "r3", "r4", "r5"} {
		fasta.WriteString(">" + id + "\n" + read40 + "\n")
	}
	rs, err := reads.Load("", false, writeFile(t, dir, "reads.fasta", fasta.String()))
	require.NoError(t, err)

	set, err := barcode.NewSet([]barcode.Barcode{
		{Name: "BC01", Sequence: "ACGTACGT"},
		{Name: "BC02", Sequence: "TTGGCCAA"},
	}, barcode.Options{Clamp: 2})
	require.NoError(t, err)

	out := filepath.Join(dir, "out")
	ws, err := output.OpenWriters(output.Layout{Dir: out, Ext: ".fasta", CacheSize: 2}, set.Names())
	require.NoError(t, err)
	reps, err := output.OpenReports(out)
	require.NoError(t, err)
	return &fixture{dir: out, set: set, reads: rs, writers: ws, reports: reps}
}

func (f *fixture) options(threads int) Options {
	return Options{
		Barcodes:  f.set,
		Reads:     f.reads,
		Writers:   f.writers,
		Reports:   f.reports,
		MinLength: 20,
		Threads:   threads,
	}
}

func (f *fixture) close(t *testing.T) {
	require.NoError(t, f.writers.Close())
	require.NoError(t, f.reports.Close())
}

var runHits = []hit.Hit{
	// clear range [10, 40)
	hitAt("r1", "BC01", 0, 8, hit.Forward, 0),
	// two barcodes
	hitAt("r2", "BC01", 0, 8, hit.Forward, 0),
	hitAt("r2", "BC02", 30, 38, hit.Reverse, 1),
	// reverse then forward
	hitAt("r3", "BC01", 0, 8, hit.Reverse, 0),
	hitAt("r3", "BC01", 30, 38, hit.Forward, 0),
	// clear range [10, 28) is below the minimum
	hitAt("r4", "BC02", 0, 8, hit.Forward, 0),
	hitAt("r4", "BC02", 30, 38, hit.Reverse, 0),
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	progress := 0
	opts := f.options(2)
	opts.Progress = func(n int) { progress += n }

	stats, err := Run(context.Background(), opts, hit.NewSliceScanner(runHits))
	require.NoError(t, err)
	f.close(t)

	assert.Equal(t, 4, stats.Groups)
	assert.Equal(t, 1, stats.Assigned)
	assert.Equal(t, 1, stats.Ambiguous)
	assert.Equal(t, 1, stats.Untrimmable)
	assert.Equal(t, 1, stats.Short)
	assert.Equal(t, 1, stats.Unassigned)
	assert.Equal(t, &BarcodeStats{Reads: 1, Bases: 30}, stats.Barcodes["BC01"])
	assert.Equal(t, map[trim.ReasonKind]int{trim.MisorientedBarcodes: 1, trim.BelowMinLength: 1}, stats.Reasons)
	assert.Equal(t, 5, progress)

	assert.Equal(t, ">r1\n"+read40[10:]+"\n", readFile(t, filepath.Join(f.dir, "BC01.fasta")))
	assert.Equal(t, "", readFile(t, filepath.Join(f.dir, "BC02.fasta")))
	assert.Equal(t, ">r2\n"+read40+"\n", readFile(t, filepath.Join(f.dir, "multicoded.fasta")))
	assert.Equal(t, ">r3\n"+read40+"\n", readFile(t, filepath.Join(f.dir, "untrimmable.fasta")))
	assert.Equal(t, ">r4\n"+read40+"\n", readFile(t, filepath.Join(f.dir, "short.fasta")))
	assert.Equal(t, ">r5\n"+read40+"\n", readFile(t, filepath.Join(f.dir, "unassigned.fasta")))

	assert.Equal(t, "#read_id\tpattern\tstart\tend\treason\n"+
		"r1\tBC01\t10\t40\t-\n"+
		"r3\tBC01\t-\t40\tMISORIENTED_BARCODES BC01:0..8:-:0,BC01:30..38:+:0\n"+
		"r4\tBC02\t-\t28\tBELOW_MIN_LENGTH BC02:0..8:+:0,BC02:30..38:-:0\n",
		readFile(t, filepath.Join(f.dir, output.TrimReportFile)))
	assert.Equal(t, "#read_id\thits\nr2\tBC01:0..8:+:0,BC02:30..38:-:1\n",
		readFile(t, filepath.Join(f.dir, output.AmbiguousReportFile)))
}

func TestRunKeepsHitOrder(t *testing.T) {
	f := newFixture(t)
	var hits []hit.Hit
	for _, id := range []string{"r5", "r3", "r1", "r4", "r2"} {
		hits = append(hits, hitAt(id, "BC02", 0, 8, hit.Forward, 0))
	}
	stats, err := Run(context.Background(), f.options(4), hit.NewSliceScanner(hits))
	require.NoError(t, err)
	f.close(t)

	assert.Equal(t, 5, stats.Assigned)
	assert.Equal(t, 0, stats.Unassigned)
	var order []string
	for _, line := range strings.Split(readFile(t, filepath.Join(f.dir, "BC02.fasta")), "\n") {
		if strings.HasPrefix(line, ">") {
			order = append(order, line[1:])
		}
	}
	assert.Equal(t, []string{"r5", "r3", "r1", "r4", "r2"}, order)
}

func TestRunUnknownRead(t *testing.T) {
	f := newFixture(t)
	defer f.close(t)
	_, err := Run(context.Background(), f.options(1), hit.NewSliceScanner([]hit.Hit{
		hitAt("r1", "BC01", 0, 8, hit.Forward, 0),
		hitAt("nope", "BC01", 0, 8, hit.Forward, 0),
	}))
	require.Error(t, err)
	assert.True(t, errors.Is(errors.NotExist, err))
}

func TestRunCanceled(t *testing.T) {
	f := newFixture(t)
	defer f.close(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, f.options(1), hit.NewSliceScanner(runHits))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcess(t *testing.T) {
	f := newFixture(t)
	defer f.close(t)

	r, err := Process(hit.Group{ReadID: "r1", Hits: runHits[0:1]}, f.set, f.reads, 0)
	require.NoError(t, err)
	assert.Equal(t, assign.Unique, r.Outcome.Kind)
	assert.Equal(t, 0, r.Ordinal)
	assert.Equal(t, trim.Result{Start: 10, End: 40}, r.Result)

	r, err = Process(hit.Group{ReadID: "r2", Hits: runHits[1:3]}, f.set, f.reads, 0)
	require.NoError(t, err)
	assert.Equal(t, assign.Ambiguous, r.Outcome.Kind)
	assert.Equal(t, trim.Result{}, r.Result)

	_, err = Process(hit.Group{ReadID: "r1", Hits: []hit.Hit{hitAt("r1", "BC09", 0, 8, hit.Forward, 0)}}, f.set, f.reads, 0)
	assert.True(t, errors.Is(errors.NotExist, err))
}

func TestProcessInvalidHits(t *testing.T) {
	f := newFixture(t)
	defer f.close(t)

	tests := map[string][]hit.Hit{
		"empty range":    {hitAt("r2", "BC01", 8, 8, hit.Forward, 0)},
		"inverted range": {hitAt("r2", "BC01", 8, 0, hit.Forward, 0)},
		"bad strand":     {hitAt("r2", "BC01", 0, 8, hit.Strand('*'), 0)},
		// ambiguous groups are never trimmed
		"ambiguous": {
			hitAt("r2", "BC01", 0, 8, hit.Forward, 0),
			hitAt("r2", "BC02", 38, 30, hit.Reverse, 1),
		},
	}
	for name, hits := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Process(hit.Group{ReadID: "r2", Hits: hits}, f.set, f.reads, 0)
			require.Error(t, err)
			assert.True(t, errors.Is(errors.Invalid, err), "%v", err)
			assert.Contains(t, err.Error(), "read r2")
		})
	}
}

func TestStatsSummary(t *testing.T) {
	s := NewStats()
	s.Add(Report{Outcome: assign.Outcome{Kind: assign.Unique, Pattern: "BC02"}, Result: trim.Result{Start: 5, End: 25}})
	s.Add(Report{Outcome: assign.Outcome{Kind: assign.Ambiguous}})

	s.Add(Report{Outcome: assign.Outcome{Kind: assign.Unique, Pattern: "BC02"}, Result: trim.Result{Start: 0, End: 10}})
	s.Add(Report{Outcome: assign.Outcome{Kind: assign.Unique, Pattern: "BC03"},
		Result: trim.Result{Start: -1, End: 10, Reason: &trim.Reason{Kind: trim.TooManyHits}}})
	s.Unassigned = 3

	assert.Equal(t, 4, s.Groups)
	assert.Equal(t, &BarcodeStats{Reads: 2, Bases: 30}, s.Barcodes["BC02"])

	var buf bytes.Buffer
	require.NoError(t, s.WriteSummary(&buf, []string{"BC01", "BC02"}))
	assert.Equal(t, "#barcode\treads\tbases\n"+
		"BC01\t0\t0\n"+
		"BC02\t2\t30\n"+
		"#assigned\t2\n"+
		"#multicoded\t1\n"+
		"#untrimmable\t1\n"+
		"#short\t0\n"+
		"#unassigned\t3\n"+
		"#reason TOO_MANY_HITS\t1\n", buf.String())
}
