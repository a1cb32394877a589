// Package refine holds the contig-mode refinement collaborator: it fragments
// contigs for external marker-gene annotation, reads the annotations back and turns
// marker multiplicity into re-partition requests for the cluster search.
package refine

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/pkg/errors"

	"lrbinner/internal/seqfile"
)

// FragmentsFile is the name of the fragment FASTA inside the fragments directory.
const FragmentsFile = "fragments.fasta"

// FragmentStats summarizes a fragmentation pass.
type FragmentStats struct {
	Contigs   int // contigs fragmented
	Fragments int // fragments written
	Short     int // contigs below the length cut-off
	Malformed int // records that could not be parsed
}

// Spans returns the half-open fragment ranges of a contig of the given length.
// Contigs shorter than two windows are kept whole; longer ones are cut into
// window-sized pieces with the remainder merged into the last piece, so every
// piece satisfies window <= len < 2*window.
func Spans(length, window int) [][2]int {
	if length < 2*window {
		return [][2]int{{0, length}}
	}
	q := length / window
	out := make([][2]int, 0, q)
	for i := 0; i < q-1; i++ {
		out = append(out, [2]int{i * window, (i + 1) * window})
	}
	return append(out, [2]int{(q - 1) * window, length})
}

// FragmentID names the fragment [start,end) of contig id.
func FragmentID(id string, start, end int) string {
	return fmt.Sprintf("%s_%d-%d", id, start, end)
}

var fragmentSuffix = regexp.MustCompile(`_\d+-\d+$`)

// ContigOf strips a FragmentID suffix. Names without one are returned unchanged.
func ContigOf(name string) string {
	return fragmentSuffix.ReplaceAllString(name, "")
}

// WriteFragments reads contigs from src and writes the fragments of every contig
// at least minLen long to dir/fragments.fasta.
func WriteFragments(ctx context.Context, src string, f seqfile.Format, dir string, window, minLen int) (FragmentStats, error) {
	var st FragmentStats
	if window < 1 {
		return st, errors.Errorf("fragment size must be >= 1 (got %d)", window)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return st, errors.Wrapf(err, "create fragments directory %q", dir)
	}
	path := filepath.Join(dir, FragmentsFile)
	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return st, errors.Wrap(err, "create fragments file")
	}
	defer func() {
		_ = out.Close()
		_ = os.Remove(tmp)
	}()

	bw := bufio.NewWriter(out)
	w := seqfile.NewWriter(bw, seqfile.FASTA)
	err = seqfile.ReadPathCtx(ctx, src, f, func(r seqfile.Record) error {
		if r.Err != nil {
			st.Malformed++
			return nil
		}
		if r.Len() < minLen || r.Len() == 0 {
			st.Short++
			return nil
		}
		st.Contigs++
		for _, sp := range Spans(r.Len(), window) {
			frag := seqfile.Record{ID: FragmentID(r.ID, sp[0], sp[1]), Seq: r.Seq[sp[0]:sp[1]]}
			if err := w.Write(frag); err != nil {
				return err
			}
			st.Fragments++
		}
		return nil
	})
	if err != nil {
		return st, err
	}
	if err := bw.Flush(); err != nil {
		return st, errors.Wrap(err, "write fragments file")
	}
	if err := out.Close(); err != nil {
		return st, errors.Wrap(err, "close fragments file")
	}
	return st, errors.Wrap(os.Rename(tmp, path), "commit fragments file")
}
