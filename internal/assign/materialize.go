package assign

import (
	"bufio"
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"lrbinner/internal/seqfile"
)

// BinFile is the name of the materialized file for bin in format f.
func BinFile(bin int, f seqfile.Format) string {
	if bin < 0 {
		return Unbinned + "." + f.Ext()
	}
	return "bin-" + Label(bin) + "." + f.Ext()
}

type binOut struct {
	file *os.File
	buf  *bufio.Writer
	w    *seqfile.Writer
}

// Materialize re-reads src once and writes every record into the file of its bin
// under dir, keeping the input format. Records not in the table and malformed
// records are dropped. The unbinned file is always created, even when empty. It
// returns the number of records written.
func Materialize(ctx context.Context, src string, f seqfile.Format, t Table, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.Wrapf(err, "create %q", dir)
	}
	bins := t.Lookup()
	outs := map[int]*binOut{}
	closeAll := func() error {
		var first error
		for _, o := range outs {
			if err := o.buf.Flush(); err != nil && first == nil {
				first = err
			}
			if err := o.file.Close(); err != nil && first == nil {
				first = err
			}
		}
		outs = map[int]*binOut{}
		return first
	}

	outFor := func(bin int) (*binOut, error) {
		if o := outs[bin]; o != nil {
			return o, nil
		}
		file, err := os.Create(filepath.Join(dir, BinFile(bin, f)))
		if err != nil {
			return nil, errors.Wrap(err, "create bin file")
		}
		buf := bufio.NewWriter(file)
		o := &binOut{file: file, buf: buf, w: seqfile.NewWriter(buf, f)}
		outs[bin] = o
		return o, nil
	}
	if _, err := outFor(-1); err != nil {
		return 0, err
	}

	n := 0
	err := seqfile.ReadPathCtx(ctx, src, f, func(r seqfile.Record) error {
		bin, ok := bins[r.ID]
		if !ok || r.Err != nil {
			return nil
		}
		o, err := outFor(bin)
		if err != nil {
			return err
		}
		// Duplicate ids were skipped during profiling; only the first copy is written.
		delete(bins, r.ID)
		n++
		return o.w.Write(r)
	})
	if cerr := closeAll(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "write bin files")
	}
	return n, err
}
