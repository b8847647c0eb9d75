package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/grailbio/base/errors"
)

// Category names the non-barcode sequence outputs.
type Category string

const (
	Unassigned  Category = "unassigned"
	Ambiguous   Category = "multicoded"
	Untrimmable Category = "untrimmable"
	Short       Category = "short"
)

// Categories lists every Category in report order.
var Categories = []Category{Unassigned, Ambiguous, Untrimmable, Short}

// Layout decides where sequences go.
type Layout struct {
	// Dir receives every file without an explicit destination.
	Dir string
	// Ext is appended to generated file names, e.g. ".fastq.gz".
	Ext string
	// Destinations maps barcode patterns to file names. Patterns sharing a
	// file name share a writer.
	Destinations map[string]string
	// CacheSize is the number of records each writer buffers.
	CacheSize int
	// Fasta drops qualities from FASTQ records.
	Fasta bool
}

// Writers holds one RecordWriter per barcode and per Category.
type Writers struct {
	byPattern map[string]*RecordWriter
	byFile    map[string]*RecordWriter
	special   map[Category]*RecordWriter
	order     []*RecordWriter
}

// OpenWriters creates the output directory and opens a writer for every
// pattern and Category.
func OpenWriters(layout Layout, patterns []string) (*Writers, error) {
	if err := os.MkdirAll(layout.Dir, 0o755); err != nil {
		return nil, errors.E(fmt.Sprintf("create output directory %s", layout.Dir), err)
	}
	ws := &Writers{
		byPattern: make(map[string]*RecordWriter),
		byFile:    make(map[string]*RecordWriter),
		special:   make(map[Category]*RecordWriter),
	}
	for _, pattern := range patterns {
		filename, ok := layout.Destinations[pattern]
		if !ok {
			filename = pattern + layout.Ext
		}
		if !filepath.IsAbs(filename) {
			filename = filepath.Join(layout.Dir, filename)
		}
		fh, err := ws.open(filename, layout)
		if err != nil {
			ws.Close()
			return nil, err
		}
		ws.byPattern[pattern] = fh
	}
	for _, c := range Categories {
		fh, err := ws.open(filepath.Join(layout.Dir, string(c)+layout.Ext), layout)
		if err != nil {
			ws.Close()
			return nil, err
		}
		ws.special[c] = fh
	}
	return ws, nil
}

func (ws *Writers) open(filename string, layout Layout) (*RecordWriter, error) {
	// Check if it's already open!
	if fh, opened := ws.byFile[filename]; opened {
		return fh, nil
	}
	fh, err := NewRecordWriter(filename, layout.CacheSize)
	if err != nil {
		return nil, errors.E(fmt.Sprintf("create %s", filename), err)
	}
	if layout.Fasta {
		fh.StripQualities()
	}
	ws.byFile[filename] = fh
	ws.order = append(ws.order, fh)
	return fh, nil
}

// Barcode returns the writer for pattern, or nil if there is none.
func (ws *Writers) Barcode(pattern string) *RecordWriter {
	return ws.byPattern[pattern]
}

// Category returns the writer for c.
func (ws *Writers) Category(c Category) *RecordWriter {
	return ws.special[c]
}

// Files lists the open file names in opening order.
func (ws *Writers) Files() []string {
	files := make([]string, len(ws.order))
	for i, fh := range ws.order {
		files[i] = fh.Filename()
	}
	return files
}

// Close closes every writer and returns the first error.
func (ws *Writers) Close() error {
	var once errors.Once
	for _, fh := range ws.order {
		once.Set(fh.Close())
	}
	ws.order = nil
	return once.Err()
}
