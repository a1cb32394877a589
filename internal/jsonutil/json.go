// internal/jsonutil/json.go
package jsonutil

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// EncodePretty writes v as indented JSON to w.
func EncodePretty(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteFile stores v as indented JSON at path. The file is written under a
// temporary name in the same directory and renamed, so readers see either the old
// or the new document.
func WriteFile(path string, v any) error {
	return WriteAtomic(path, func(w io.Writer) error { return EncodePretty(w, v) })
}

// WriteAtomic fills a temporary file next to path with fill and renames it to path.
// On error the temporary file is removed and path is left untouched.
func WriteAtomic(path string, fill func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory of %q", path)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(err, "create %q", path)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := fill(bw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "write %q", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "write %q", path)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "commit %q", path)
}

// ReadFile decodes the JSON document at path into v.
func ReadFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(data, v), "decode %q", path)
}
