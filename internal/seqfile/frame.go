package seqfile

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// ErrMalformed marks a record that could not be parsed. Such records are reported
// through Record.Err and reading continues with the next record.
var ErrMalformed = errors.New("malformed record")

// block is the raw text of one record. FASTA blocks run from a '>' line to the
// next one; FASTQ blocks are the four lines header, sequence, '+' and quality.
type block struct {
	raw    []byte
	header []byte
	bad    error
}

// name returns the record id from the header line, if there is one.
func (b block) name() string {
	if len(b.header) < 2 {
		return ""
	}
	h := b.header[1:]
	if i := bytes.IndexAny(h, " \t"); i >= 0 {
		h = h[:i]
	}
	return string(h)
}

// framer splits a sequence stream into per-record blocks. Blank lines are ignored.
// After a framing error it resynchronizes at the next header-like line.
type framer struct {
	br   *bufio.Reader
	f    Format
	back [][]byte
	err  error
}

func newFramer(r io.Reader, f Format) *framer {
	return &framer{br: bufio.NewReaderSize(r, 1<<16), f: f}
}

// line returns the next non-blank line without its line terminator.
func (fr *framer) line() ([]byte, bool) {
	if n := len(fr.back); n > 0 {
		l := fr.back[n-1]
		fr.back = fr.back[:n-1]
		return l, true
	}
	for fr.err == nil {
		l, err := fr.br.ReadBytes('\n')
		if err != nil {
			fr.err = err
		}
		if l = bytes.TrimSpace(l); len(l) > 0 {
			return l, true
		}
	}
	return nil, false
}

func (fr *framer) unread(lines ...[]byte) {
	for i := len(lines) - 1; i >= 0; i-- {
		fr.back = append(fr.back, lines[i])
	}
}

// Err returns the first read error other than io.EOF.
func (fr *framer) Err() error {
	if fr.err == io.EOF {
		return nil
	}
	return fr.err
}

func (fr *framer) next() (block, bool) {
	if fr.f == FASTQ {
		return fr.nextFASTQ()
	}
	return fr.nextFASTA()
}

func (fr *framer) nextFASTA() (block, bool) {
	first, ok := fr.line()
	if !ok {
		return block{}, false
	}
	b := block{raw: join(nil, first)}
	if first[0] == '>' {
		b.header = first
	} else {
		b.bad = errors.Wrap(ErrMalformed, "sequence data before the first header line")
	}
	for {
		l, ok := fr.line()
		if !ok {
			break
		}
		if l[0] == '>' {
			fr.unread(l)
			break
		}
		b.raw = join(b.raw, l)
	}
	return b, true
}

func (fr *framer) nextFASTQ() (block, bool) {
	h, ok := fr.line()
	if !ok {
		return block{}, false
	}
	if h[0] != '@' {
		b := block{raw: join(nil, h), bad: errors.Wrapf(ErrMalformed, "expected a '@' header line, found %q", clip(h))}
		for {
			l, ok := fr.line()
			if !ok {
				break
			}
			if l[0] == '@' {
				fr.unread(l)
				break
			}
		}
		return b, true
	}

	b := block{header: h}
	s, ok := fr.line()
	if !ok {
		b.bad = errors.Wrap(ErrMalformed, "truncated record")
		return b, true
	}
	if s[0] == '+' {
		// Empty read: the blank sequence and quality lines were skipped.
		b.raw = join(join(join(nil, h), nil), s)
		return b, true
	}
	p, okP := fr.line()
	q, okQ := fr.line()
	switch {
	case !okP || !okQ:
		b.bad = errors.Wrap(ErrMalformed, "truncated record")
		fr.unread(resync(s, p, q)...)
	case p[0] != '+':
		b.bad = errors.Wrapf(ErrMalformed, "expected a '+' separator line, found %q", clip(p))
		fr.unread(resync(s, p, q)...)
	default:
		b.raw = join(join(join(join(nil, h), s), p), q)
	}
	return b, true
}

// resync returns the lines from the first header-like one on.
func resync(lines ...[]byte) [][]byte {
	for i, l := range lines {
		if len(l) > 0 && l[0] == '@' {
			var out [][]byte
			for _, r := range lines[i:] {
				if len(r) > 0 {
					out = append(out, r)
				}
			}
			return out
		}
	}
	return nil
}

func join(dst, line []byte) []byte {
	dst = append(dst, line...)
	return append(dst, '\n')
}

func clip(l []byte) []byte {
	if len(l) > 32 {
		return l[:32]
	}
	return l
}
