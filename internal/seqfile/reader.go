package seqfile

import (
	"bytes"
	"context"
	"io"

	"github.com/biogo/biogo/alphabet"
	bioseqio "github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/io/seqio/fastq"
	"github.com/biogo/biogo/seq"
	"github.com/biogo/biogo/seq/linear"
	"github.com/pkg/errors"
)

// Record is one sequence read from an input file.
// Index is the 0-based position of the record in the file.
type Record struct {
	Index int
	ID    string
	Desc  string
	Seq   []byte
	Qual  []byte // phred scores, FASTQ only

	// Err is set for a record that could not be parsed (it wraps ErrMalformed).
	// ID is then taken from the header line, when there is one.
	Err error
}

// Len returns the number of symbols in the record.
func (r Record) Len() int { return len(r.Seq) }

func template(f Format) bioseqio.SequenceAppender {
	if f == FASTQ {
		return linear.NewQSeq("", nil, alphabet.DNA, alphabet.Sanger)
	}
	return linear.NewSeq("", nil, alphabet.DNA)
}

func newReader(f Format, rc io.Reader) bioseqio.Reader {
	if f == FASTQ {
		return fastq.NewReader(rc, template(f))
	}
	return fasta.NewReader(rc, template(f))
}

func toRecord(idx int, s seq.Sequence) Record {
	rec := Record{Index: idx, ID: s.Name(), Desc: s.Description()}
	switch v := s.(type) {
	case *linear.Seq:
		rec.Seq = make([]byte, len(v.Seq))
		for i, l := range v.Seq {
			rec.Seq[i] = byte(l)
		}
	case *linear.QSeq:
		rec.Seq = make([]byte, len(v.Seq))
		rec.Qual = make([]byte, len(v.Seq))
		for i, ql := range v.Seq {
			rec.Seq[i] = byte(ql.L)
			rec.Qual[i] = byte(ql.Q)
		}
	}
	return rec
}

// ReadPathCtx opens path, parses it as format f, and calls emit for every record
// in file order. Cancellation via ctx is checked between records.
// Return a non-nil error from emit to stop early.
//
// A malformed record does not stop the read: it is emitted with Err set and
// parsing resumes at the next record. Only read errors are returned.
func ReadPathCtx(ctx context.Context, path string, f Format, emit func(Record) error) error {
	rc, err := openReader(path)
	if err != nil {
		return err
	}
	defer rc.Close()

	fr := newFramer(rc, f)
	idx := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		b, ok := fr.next()
		if !ok {
			break
		}
		if err := emit(parse(idx, f, b)); err != nil {
			return err
		}
		idx++
	}
	if err := fr.Err(); err != nil {
		return errors.Wrapf(err, "%s read %q (record %d)", f, path, idx)
	}
	return nil
}

// parse hands one framed record to the biogo reader.
func parse(idx int, f Format, b block) Record {
	if b.bad != nil {
		return Record{Index: idx, ID: b.name(), Err: b.bad}
	}
	s, err := newReader(f, bytes.NewReader(b.raw)).Read()
	if err != nil {
		return Record{Index: idx, ID: b.name(), Err: errors.Wrap(ErrMalformed, err.Error())}
	}
	return toRecord(idx, s)
}

// StreamCtxPath is the channel wrapper around ReadPathCtx. The record channel is closed
// when the file is exhausted, on error, or when ctx is done; the error channel then
// receives exactly one value (nil on success).
//
// Open errors are reported immediately.
func StreamCtxPath(ctx context.Context, path string, f Format) (<-chan Record, <-chan error, error) {
	rc, err := openReader(path)
	if err != nil {
		return nil, nil, err
	}
	_ = rc.Close()

	out := make(chan Record, 8)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		errCh <- ReadPathCtx(ctx, path, f, func(r Record) error {
			select {
			case out <- r:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return out, errCh, nil
}
