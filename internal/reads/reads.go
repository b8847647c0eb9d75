// Package reads indexes the input reads so hits can be resolved to
// sequences, and writes the sequence chunks the matcher searches.
package reads

import (
	"fmt"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/xopen"
)

const (
	readBufSize   = 10
	readChunkSize = 1000
)

// Index holds every read in input order, addressable by id and ordinal.
type Index struct {
	records   []*fastx.Record
	ordinal   map[string]int
	key       []byte
	prepended bool
	fastq     bool
}

// Load reads all records of the given FASTA/FASTQ files. key is the
// shared 5' key sequence; when prepended is set the matcher searches the
// reads with key in front of them.
func Load(key string, prepended bool, files ...string) (*Index, error) {
	x := &Index{
		ordinal:   make(map[string]int),
		key:       []byte(key),
		prepended: prepended,
		fastq:     true,
	}
	for _, file := range files {
		if err := x.add(file); err != nil {
			return nil, err
		}
	}
	if len(x.records) == 0 {
		x.fastq = false
	}
	return x, nil
}

func (x *Index) add(file string) error {
	fq, err := fastx.NewDefaultReader(file)
	if err != nil {
		return errors.E(errors.NotExist, fmt.Sprintf("open reads %s", file), err)
	}
	defer fq.Close()

	for chunk := range fq.ChunkChan(readBufSize, readChunkSize) {
		if chunk.Err != nil {
			return errors.E(fmt.Sprintf("read %s", file), chunk.Err)
		}
		for _, record := range chunk.Data {
			id := string(record.ID)
			if _, dup := x.ordinal[id]; dup {
				return errors.E(errors.Invalid, fmt.Sprintf("%s: duplicate read id %s", file, id))
			}
			x.ordinal[id] = len(x.records)
			x.records = append(x.records, record.Clone())
			if len(record.Seq.Qual) == 0 {
				x.fastq = false
			}
		}
	}
	return nil
}

// Len is the number of reads.
func (x *Index) Len() int {
	return len(x.records)
}

// IsFastq reports whether every read carries qualities.
func (x *Index) IsFastq() bool {
	return x.fastq
}

// Ordinal returns the position of read id in input order.
func (x *Index) Ordinal(id string) (int, bool) {
	i, ok := x.ordinal[id]
	return i, ok
}

// Record returns the read at ordinal i.
func (x *Index) Record(i int) *fastx.Record {
	return x.records[i]
}

// SearchLength is the length of read i as the matcher saw it.
func (x *Index) SearchLength(i int) int {
	n := len(x.records[i].Seq.Seq)
	if x.prepended {
		n += len(x.key)
	}
	return n
}

// Clear returns a copy of read i cut to a clear range [start, end) given
// in raw read coordinates. When a key is configured, raw coordinates
// count the key in front of the stored sequence, whether the key was
// prepended for the search or is virtual.
func (x *Index) Clear(i, start, end int) *fastx.Record {
	record := x.records[i].Clone()
	n := len(record.Seq.Seq)
	s, e := clip(start-len(x.key), n), clip(end-len(x.key), n)
	if e < s {
		e = s
	}
	record.Seq.Seq = record.Seq.Seq[s:e]
	if len(record.Seq.Qual) > 0 {
		record.Seq.Qual = record.Seq.Qual[s:e]
	}
	return record
}

func clip(v, n int) int {
	if v < 0 {
		return 0
	}
	if v > n {
		return n
	}
	return v
}

// WriteChunks writes the reads as FASTA files of at most perChunk records
// into dir, with the key in front of each sequence when it is prepended.
// It returns the chunk file names in read order.
func (x *Index) WriteChunks(dir string, perChunk int) (files []string, err error) {
	if perChunk <= 0 {
		perChunk = len(x.records)
	}
	for lo := 0; lo < len(x.records); lo += perChunk {
		hi := lo + perChunk
		if hi > len(x.records) {
			hi = len(x.records)
		}
		file := filepath.Join(dir, fmt.Sprintf("reads.%04d.fasta", len(files)))
		if err := x.writeChunk(file, lo, hi); err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

func (x *Index) writeChunk(file string, lo, hi int) (err error) {
	w, err := xopen.Wopen(file)
	if err != nil {
		return errors.E(fmt.Sprintf("create %s", file), err)
	}
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	for _, record := range x.records[lo:hi] {
		if _, err = fmt.Fprintf(w, ">%s\n", record.ID); err != nil {
			return err
		}
		if x.prepended {
			if _, err = w.Write(x.key); err != nil {
				return err
			}
		}
		if _, err = w.Write(record.Seq.Seq); err != nil {
			return err
		}
		if _, err = w.Write([]byte{'\n'}); err != nil {
			return err
		}
	}
	return nil
}
