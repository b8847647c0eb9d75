// Package fuzznuc runs the EMBOSS fuzznuc pattern matcher over chunks of
// reads and hands back its reports as hits.
package fuzznuc

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/exascience/pargo/parallel"
	"github.com/google/uuid"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/jbloomlab/deconvolver-code/internal/hit"
	"github.com/shenwei356/xopen"
)

// DefaultPath is the executable looked up on PATH when Runner.Path is
// empty.
const DefaultPath = "fuzznuc"

// PatternFile is the name of the pattern file inside a work directory.
const PatternFile = "barcodes.pat"

// Chunker writes the reads to search as FASTA files in dir.
type Chunker interface {
	WriteChunks(dir string, perChunk int) ([]string, error)
}

// Patterns writes a fuzznuc pattern file.
type Patterns interface {
	WritePatterns(w io.Writer, mismatches int) error
}

// Runner runs fuzznuc.
type Runner struct {
	// Path to the fuzznuc executable.
	Path string
	// Threads bounds the concurrent fuzznuc processes; 0 means GOMAXPROCS.
	Threads int
	// ReadsPerChunk is the number of reads per fuzznuc invocation; 0 puts
	// all reads in one chunk.
	ReadsPerChunk int
	// WorkDir is where run directories are created; "" means os.TempDir.
	WorkDir string
	// Keep leaves the run directory in place after Cleanup.
	Keep bool
}

// Result holds the fuzznuc reports of one search, in chunk order.
type Result struct {
	Files []string
	dir   string
	keep  bool
}

func (r *Runner) path() string {
	if r.Path == "" {
		return DefaultPath
	}
	return r.Path
}

// Command builds the fuzznuc invocation searching seqFile for the
// patterns in patFile, on both strands, writing a tab separated report
// to outFile.
func (r *Runner) Command(ctx context.Context, seqFile, patFile, outFile string, mismatches int) *exec.Cmd {
	return exec.CommandContext(ctx, r.path(),
		"-sequence", seqFile,
		"-pattern", "@"+patFile,
		"-pmismatch", strconv.Itoa(mismatches),
		"-complement",
		"-rformat", "excel",
		"-outfile", outFile,
		"-auto",
	)
}

// Search writes the patterns and read chunks into a fresh run directory
// and runs fuzznuc on every chunk. The first failure stops the search and
// removes the run directory.
func (r *Runner) Search(ctx context.Context, reads Chunker, patterns Patterns, mismatches int) (*Result, error) {
	if mismatches < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("negative mismatch count %d", mismatches))
	}
	if _, err := exec.LookPath(r.path()); err != nil {
		return nil, errors.E(errors.Precondition, fmt.Sprintf("fuzznuc executable %s", r.path()), err)
	}
	workdir := r.WorkDir
	if workdir == "" {
		workdir = os.TempDir()
	}
	dir := filepath.Join(workdir, "deconvolve-"+uuid.New().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.E(fmt.Sprintf("create work directory %s", dir), err)
	}
	res := &Result{dir: dir, keep: r.Keep}
	files, err := r.search(ctx, dir, reads, patterns, mismatches)
	if err != nil {
		if cerr := res.Cleanup(); cerr != nil {
			log.Error.Printf("cleanup %s: %v", dir, cerr)
		}
		return nil, err
	}
	res.Files = files
	return res, nil
}

func (r *Runner) search(ctx context.Context, dir string, reads Chunker, patterns Patterns, mismatches int) ([]string, error) {
	patFile := filepath.Join(dir, PatternFile)
	if err := writePatterns(patFile, patterns, mismatches); err != nil {
		return nil, err
	}
	chunks, err := reads.WriteChunks(dir, r.ReadsPerChunk)
	if err != nil {
		return nil, err
	}
	outs := make([]string, len(chunks))
	for i, chunk := range chunks {
		outs[i] = strings.TrimSuffix(chunk, filepath.Ext(chunk)) + ".fuzznuc"
	}
	if len(chunks) == 0 {
		return outs, nil
	}

	threads := r.Threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	if threads > len(chunks) {
		threads = len(chunks)
	}
	log.Printf("searching %d read chunks with %d fuzznuc processes", len(chunks), threads)

	var once errors.Once
	parallel.Range(0, len(chunks), threads, func(low, high int) {
		for i := low; i < high; i++ {
			if once.Err() != nil {
				return
			}
			if err := ctx.Err(); err != nil {
				once.Set(err)
				return
			}
			cmd := r.Command(ctx, chunks[i], patFile, outs[i], mismatches)
			if output, err := cmd.CombinedOutput(); err != nil {
				once.Set(errors.E(fmt.Sprintf("fuzznuc on %s: %s", chunks[i], strings.TrimSpace(string(output))), err))
				return
			}
			log.Debug.Printf("fuzznuc done: %s", outs[i])
		}
	})
	if err := once.Err(); err != nil {
		return nil, err
	}
	return outs, nil
}

func writePatterns(file string, patterns Patterns, mismatches int) (err error) {
	w, err := xopen.Wopen(file)
	if err != nil {
		return errors.E(fmt.Sprintf("create %s", file), err)
	}
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return patterns.WritePatterns(w, mismatches)
}

// Dir is the run directory.
func (r *Result) Dir() string {
	return r.dir
}

// Open returns a reader over all reports in chunk order. Hits of one read
// stay together since every read is in exactly one chunk.
func (r *Result) Open() (*hit.Reader, error) {
	return hit.Open(r.Files...)
}

// Cleanup removes the run directory unless it is kept.
func (r *Result) Cleanup() error {
	if r.keep {
		log.Printf("keeping fuzznuc work directory %s", r.dir)
		return nil
	}
	return os.RemoveAll(r.dir)
}
