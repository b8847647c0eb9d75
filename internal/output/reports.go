package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/jbloomlab/deconvolver-code/internal/hit"
	"github.com/jbloomlab/deconvolver-code/internal/trim"
	"github.com/shenwei356/xopen"
)

// Report file names inside the output directory.
const (
	TrimReportFile      = "trim.tsv"
	AmbiguousReportFile = "multicoded.tsv"
)

// Reports writes the per-read trim report and the ambiguous-read log.
//
// The trim report has one line per read that reached the trimmer:
//
//	read_id	pattern	start	end	reason
//
// with "-" for a missing start or reason. The ambiguous log lists each
// multicoded read with all of its hits.
type Reports struct {
	trim      *xopen.Writer
	ambiguous *xopen.Writer
}

// OpenReports creates the report files in dir.
func OpenReports(dir string) (*Reports, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.E(fmt.Sprintf("create output directory %s", dir), err)
	}
	r := &Reports{}
	var err error
	if r.trim, err = xopen.Wopen(filepath.Join(dir, TrimReportFile)); err != nil {
		return nil, errors.E("create trim report", err)
	}
	if r.ambiguous, err = xopen.Wopen(filepath.Join(dir, AmbiguousReportFile)); err != nil {
		r.trim.Close()
		return nil, errors.E("create multicoded report", err)
	}
	if _, err = fmt.Fprintln(r.trim, "#read_id\tpattern\tstart\tend\treason"); err != nil {
		r.Close()
		return nil, err
	}
	if _, err = fmt.Fprintln(r.ambiguous, "#read_id\thits"); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Trim records the trimming result of a read assigned to pattern.
func (r *Reports) Trim(readID, pattern string, res trim.Result) error {
	start, reason := "-", "-"
	if res.OK() {
		start = fmt.Sprint(res.Start)
	} else {
		reason = res.Reason.String()
	}
	_, err := fmt.Fprintf(r.trim, "%s\t%s\t%s\t%d\t%s\n", readID, pattern, start, res.End, reason)
	return err
}

// Ambiguous records a read whose hits name several barcodes.
func (r *Reports) Ambiguous(readID string, hits []hit.Hit) error {
	_, err := fmt.Fprintf(r.ambiguous, "%s\t%s\n", readID, hit.Locations(hits))
	return err
}

// Close flushes and closes both reports.
func (r *Reports) Close() error {
	var once errors.Once
	once.Set(r.trim.Close())
	once.Set(r.ambiguous.Close())
	return once.Err()
}
