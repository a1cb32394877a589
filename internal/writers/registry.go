package writers

import (
	"io"
	"sort"

	"github.com/pkg/errors"

	"lrbinner/internal/assign"
)

// Meta carries run facts that some formats embed next to the table.
type Meta struct {
	Mode  string
	RunID string
}

// Func writes t to w.
type Func func(w io.Writer, t assign.Table, m Meta) error

type entry struct {
	file string
	fn   Func
}

// Assignment writer registry (format → handler). Register in init() blocks.
var assignmentWriters = map[string]entry{}

// Register adds a format written to file under the output root (idempotent,
// last wins).
func Register(format, file string, fn Func) {
	assignmentWriters[format] = entry{file: file, fn: fn}
}

// Formats returns the registered format names, sorted.
func Formats() []string {
	out := make([]string, 0, len(assignmentWriters))
	for f := range assignmentWriters {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// FileName returns the output file of format.
func FileName(format string) (string, error) {
	e, ok := assignmentWriters[format]
	if !ok {
		return "", errors.Errorf("unknown assignment format %q (no writer registered)", format)
	}
	return e.file, nil
}

// Write dispatches to the handler of format.
func Write(format string, w io.Writer, t assign.Table, m Meta) error {
	e, ok := assignmentWriters[format]
	if !ok {
		return errors.Errorf("unknown assignment format %q (no writer registered)", format)
	}
	return e.fn(w, t, m)
}
