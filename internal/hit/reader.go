package hit

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/shenwei356/xopen"
)

// Reader scans the tabular ("excel") report of the fuzznuc pattern
// matcher:
//
//	SeqName	Start	End	Score	Strand	Pattern	Mismatch
//	read1	11	30	20	+	BC01	1
//
// Coordinates are converted from 1-based inclusive to 0-based half-open.
// Several inputs are read one after the other.
type Reader struct {
	inputs  []io.Reader
	names   []string
	closers []io.Closer
	sc      *bufio.Scanner
	line    int
	hit     Hit
	err     error
}

// NewReader returns a Reader over the given inputs, in order.
func NewReader(inputs ...io.Reader) *Reader {
	names := make([]string, len(inputs))
	for i := range names {
		names[i] = fmt.Sprintf("input %d", i)
	}
	return &Reader{inputs: inputs, names: names}
}

// Open opens the named fuzznuc reports (plain or compressed).
func Open(files ...string) (*Reader, error) {
	r := &Reader{names: files}
	for _, file := range files {
		fh, err := xopen.Ropen(file)
		if err != nil {
			r.Close()
			return nil, errors.E(errors.NotExist, fmt.Sprintf("open hits %s", file), err)
		}
		r.inputs = append(r.inputs, fh)
		r.closers = append(r.closers, fh)
	}
	return r, nil
}

// Close closes every file opened by Open.
func (r *Reader) Close() error {
	var once errors.Once
	for _, c := range r.closers {
		once.Set(c.Close())
	}
	r.closers = nil
	return once.Err()
}

func (r *Reader) Scan() bool {
	if r.err != nil {
		return false
	}
	for {
		if r.sc == nil {
			if len(r.inputs) == 0 {
				return false
			}
			r.sc = bufio.NewScanner(r.inputs[0])
			r.sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
			r.line = 0
		}
		if !r.sc.Scan() {
			if err := r.sc.Err(); err != nil {
				r.err = errors.E(fmt.Sprintf("reading %s", r.names[0]), err)
				return false
			}
			r.sc = nil
			r.inputs = r.inputs[1:]
			r.names = r.names[1:]
			continue
		}
		r.line++
		text := r.sc.Text()
		if skipLine(text) {
			continue
		}
		h, err := ParseLine(text)
		if err != nil {
			r.err = errors.E(fmt.Sprintf("%s line %d", r.names[0], r.line), err)
			return false
		}
		r.hit = h
		return true
	}
}

func (r *Reader) Hit() Hit { return r.hit }

func (r *Reader) Err() error { return r.err }

func skipLine(text string) bool {
	t := strings.TrimSpace(text)
	return t == "" || t[0] == '#' || strings.HasPrefix(t, "SeqName")
}

// ParseLine parses one data line of a fuzznuc excel report. The pattern
// column may carry space separated attributes after the name; only the
// name is kept. A "." mismatch count means an exact match.
func ParseLine(line string) (Hit, error) {
	cols := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	if len(cols) < 7 {
		return Hit{}, errors.E(errors.Invalid, fmt.Sprintf("expected 7 tab separated columns, got %d", len(cols)))
	}
	var (
		h   Hit
		err error
	)
	h.ReadID = cols[0]
	start, err := strconv.Atoi(strings.TrimSpace(cols[1]))
	if err != nil {
		return Hit{}, errors.E(errors.Invalid, "bad start", err)
	}
	h.Max, err = strconv.Atoi(strings.TrimSpace(cols[2]))
	if err != nil {
		return Hit{}, errors.E(errors.Invalid, "bad end", err)
	}
	h.Min = start - 1
	if h.Strand, err = ParseStrand(strings.TrimSpace(cols[4])); err != nil {
		return Hit{}, err
	}
	pattern := strings.Fields(cols[5])
	if len(pattern) == 0 {
		return Hit{}, errors.E(errors.Invalid, "empty pattern column")
	}
	h.Pattern = pattern[0]
	switch mm := strings.TrimSpace(cols[6]); mm {
	case ".", "":
		h.Mismatches = 0
	default:
		if h.Mismatches, err = strconv.Atoi(mm); err != nil {
			return Hit{}, errors.E(errors.Invalid, "bad mismatch count", err)
		}
	}
	if err := h.Validate(); err != nil {
		return Hit{}, err
	}
	return h, nil
}
