package cli

import (
	"flag"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"lrbinner/internal/version"
)

const banner = `%s: binning of metagenomic long reads and assemblies

Profiles every sequence by k-mer composition and a k-mer coverage histogram,
embeds the profiles with a variational autoencoder and clusters the embeddings.

Version: %s

`

// NewFlagSet returns a FlagSet with ContinueOnError and the usage text of mode.
func NewFlagSet(name, mode string) *flag.FlagSet {
	fs := flag.NewFlagSet(name+" "+mode, flag.ContinueOnError)
	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, banner, name, version.Version)
		fmt.Fprintf(out, "Usage of %s %s:\n", name, mode)
		fs.PrintDefaults()
	}
	return fs
}

// TopUsage prints the mode overview shown for bare or unknown invocations.
func TopUsage(out io.Writer, name string) {
	fmt.Fprintf(out, banner, name, version.Version)
	fmt.Fprintf(out, "Usage:\n  %s <mode> [flags]\n\nModes:\n", name)
	fmt.Fprintf(out, "  %-10s bin long reads\n", ModeReads)
	fmt.Fprintf(out, "  %-10s bin contigs of a long-read assembly\n", ModeContigs)
	fmt.Fprintf(out, "\nRun '%s <mode> -h' for the flags of a mode, '%s --version' for the version.\n", name, name)
}

// ErrExamples is returned by ParseArgs when --examples was given. Callers print
// Examples and exit 0.
var ErrExamples = errors.New("examples requested")

// Examples prints a quickstart for mode.
func Examples(out io.Writer, name, mode string) {
	fmt.Fprintf(out, "%s %s: quickstart\n\n", name, mode)
	switch mode {
	case ModeContigs:
		fmt.Fprintf(out, "  # first pass: profile, cluster and write contig fragments for annotation\n")
		fmt.Fprintf(out, "  %s contigs -r reads.fq.gz -c assembly.fasta -o out\n\n", name)
		fmt.Fprintf(out, "  # annotate out/fragments/fragments.fasta, put <sequence>\\t<marker> tables in\n")
		fmt.Fprintf(out, "  # out/marker_genes/*.tsv, then refine the bins\n")
		fmt.Fprintf(out, "  %s contigs -r reads.fq.gz -c assembly.fasta -o out --resume --separate\n", name)
	default:
		fmt.Fprintf(out, "  %s reads -r reads.fq.gz -o out -t 16\n", name)
		fmt.Fprintf(out, "  %s reads -r reads.fasta -o out -k 4 -mbs 5000 --plot --separate\n", name)
		fmt.Fprintf(out, "  %s reads -r reads.fasta -o out --resume   # after an interruption\n", name)
	}
	fmt.Fprintf(out, "\nTip: run '%s %s -h' for all flags.\n", name, mode)
}
