package seqfile

import (
	"io"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/io/seqio/fastq"
	"github.com/biogo/biogo/seq/linear"
	"github.com/pkg/errors"
)

// LineWidth is the FASTA line wrap used for all written sequences.
const LineWidth = 60

// Writer serialises Records in one Format.
type Writer struct {
	format Format
	fa     *fasta.Writer
	fq     *fastq.Writer
}

// NewWriter returns a Writer emitting records to w. FASTQ output requires Qual on
// every record; records without qualities are written as FASTA lines instead.
func NewWriter(w io.Writer, f Format) *Writer {
	sw := &Writer{format: f}
	if f == FASTQ {
		sw.fq = fastq.NewWriter(w)
	}
	sw.fa = fasta.NewWriter(w, LineWidth)
	return sw
}

// Format reports the writer's output format.
func (w *Writer) Format() Format { return w.format }

// Write serialises one record.
func (w *Writer) Write(r Record) error {
	if w.format == FASTQ && len(r.Qual) == len(r.Seq) {
		ql := make([]alphabet.QLetter, len(r.Seq))
		for i := range r.Seq {
			ql[i] = alphabet.QLetter{L: alphabet.Letter(r.Seq[i]), Q: alphabet.Qphred(r.Qual[i])}
		}
		qs := linear.NewQSeq(r.ID, ql, alphabet.DNA, alphabet.Sanger)
		qs.Desc = r.Desc
		if _, err := w.fq.Write(qs); err != nil {
			return errors.Wrapf(err, "write fastq record %q", r.ID)
		}
		return nil
	}
	letters := make([]alphabet.Letter, len(r.Seq))
	for i, b := range r.Seq {
		letters[i] = alphabet.Letter(b)
	}
	ls := linear.NewSeq(r.ID, letters, alphabet.DNA)
	ls.Desc = r.Desc
	if _, err := w.fa.Write(ls); err != nil {
		return errors.Wrapf(err, "write fasta record %q", r.ID)
	}
	return nil
}
