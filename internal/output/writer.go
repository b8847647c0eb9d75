// Package output writes trimmed reads and the deconvolution reports.
package output

import (
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/xopen"
)

// lineWidth wraps FASTA sequence lines; FASTQ records are never wrapped.
const lineWidth = 60

// RecordWriter writes records in an async fashion
// Call Close() when you're done!
type RecordWriter struct {
	filename  string
	writer    *xopen.Writer
	cache     []*fastx.Record
	cachesize int
	records   chan []*fastx.Record
	errors    chan error
	count     int
	fasta     bool
}

// NewRecordWriter creates a writer for filename, compressed if the name
// ends in .gz.
// cachesize: How many records to buffer at a time
func NewRecordWriter(filename string, cachesize int) (*RecordWriter, error) {
	writer, err := xopen.Wopen(filename)
	if err != nil {
		return nil, err
	}
	if cachesize < 1 {
		cachesize = 1
	}

	w := RecordWriter{
		filename:  filename,
		cache:     make([]*fastx.Record, 0, cachesize),
		cachesize: cachesize,
		records:   make(chan []*fastx.Record), // unbuffered
		errors:    make(chan error, 1),
		writer:    writer,
	}

	go func(w *RecordWriter) {
		writer := w.writer
		for records := range w.records {
			for _, record := range records {
				record.FormatToWriter(writer, lineWidth)
			}
		}
		w.errors <- writer.Close()
		close(w.errors)
	}(&w)
	return &w, nil
}

// Filename is the file being written.
func (w *RecordWriter) Filename() string {
	return w.filename
}

// Count is the number of records written so far.
func (w *RecordWriter) Count() int {
	return w.count
}

// StripQualities makes the writer drop qualities, writing FASTA.
func (w *RecordWriter) StripQualities() {
	w.fasta = true
}

func (w *RecordWriter) Write(record *fastx.Record) {
	if w.fasta && len(record.Seq.Qual) > 0 {
		record = record.Clone()
		record.Seq.Qual = nil
	}
	w.cache = append(w.cache, record)
	w.count++
	if len(w.cache) == w.cachesize {
		w.Flush()
	}
}

// Flush hands the cached records to the writing goroutine.
func (w *RecordWriter) Flush() {
	if len(w.cache) == 0 {
		return
	}
	w.records <- w.cache
	// the goroutine owns the old slice now
	w.cache = make([]*fastx.Record, 0, w.cachesize)
}

// Close flushes and waits for everything to be written.
func (w *RecordWriter) Close() error {
	w.Flush()
	close(w.records)
	return <-w.errors
}
