package seqfile

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Format is the on-disk layout of a sequence file.
type Format int

const (
	FASTA Format = iota + 1
	FASTQ
)

func (f Format) String() string {
	switch f {
	case FASTA:
		return "fasta"
	case FASTQ:
		return "fastq"
	}
	return "unknown"
}

// Ext is the file extension used when writing records in this format.
func (f Format) Ext() string {
	if f == FASTQ {
		return "fastq"
	}
	return "fasta"
}

// ErrUnknownFormat is returned by DetectFormat for unrecognised extensions.
var ErrUnknownFormat = errors.New("unrecognised sequence file extension")

// DetectFormat maps a file name to its Format by extension. A trailing .gz is ignored.
func DetectFormat(path string) (Format, error) {
	name := strings.ToLower(filepath.Base(path))
	name = strings.TrimSuffix(name, ".gz")
	switch filepath.Ext(name) {
	case ".fa", ".fasta", ".fna", ".fas":
		return FASTA, nil
	case ".fq", ".fastq":
		return FASTQ, nil
	}
	return 0, errors.Wrapf(ErrUnknownFormat, "%q (use FASTA or FASTQ)", path)
}
