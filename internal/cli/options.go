// internal/cli/options.go
package cli

import (
	"flag"
	"os"

	"github.com/pkg/errors"

	"lrbinner/internal/cluster"
	"lrbinner/internal/encoder"
	"lrbinner/internal/profile"
	"lrbinner/internal/seqfile"
)

// Run modes
const (
	ModeReads   = "reads"
	ModeContigs = "contigs"
)

// ErrFatalInput marks unusable input: missing or unreadable files, unknown
// extensions, invalid settings.
var ErrFatalInput = errors.New("fatal input error")

type inputError struct{ err error }

func (e inputError) Error() string        { return e.err.Error() }
func (e inputError) Unwrap() error        { return e.err }
func (e inputError) Is(target error) bool { return target == ErrFatalInput }

func fatal(err error) error { return inputError{err} }

// Fatal marks err as unusable input. It returns nil for a nil err.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return inputError{err}
}

func fatalf(format string, args ...any) error { return inputError{errors.Errorf(format, args...)} }

// Options holds all CLI flags of one mode.
type Options struct {
	Mode string

	// Input
	ReadsPath     string
	ReadsFormat   seqfile.Format
	ContigsPath   string // contigs mode
	ContigsFormat seqfile.Format

	// Profiles
	K        int
	BinSize  int
	BinCount int

	// Latent encoder
	Epochs     int
	Dims       int
	HiddenSpec string
	Hidden     []int
	Seed       uint64 // 0 = fresh seed per run

	// Clustering
	MinBinSize       int
	Iterations       int
	ClusterNeighbors int
	ClusterRadius    float64
	ClusterDensity   float64

	// Contig refinement
	FragmentSize    int
	MinContigLength int

	// Run
	Threads   int
	Cuda      bool
	Resume    bool
	Separate  bool
	Output    string
	Plot      bool
	Quiet     bool
	Verbosity int
}

// Input returns the sequences that get binned: reads in reads mode, contigs in
// contigs mode.
func (o Options) Input() (string, seqfile.Format) {
	if o.Mode == ModeContigs {
		return o.ContigsPath, o.ContigsFormat
	}
	return o.ReadsPath, o.ReadsFormat
}

// ProfileParams returns the profile schema.
func (o Options) ProfileParams() profile.Params {
	return profile.Params{K: o.K, BinSize: o.BinSize, BinCount: o.BinCount}
}

// ClusterConfig returns the search calibration.
func (o Options) ClusterConfig() cluster.Config {
	return cluster.Config{
		Iterations:    o.Iterations,
		MinBinSize:    o.MinBinSize,
		Neighbors:     o.ClusterNeighbors,
		RadiusScale:   o.ClusterRadius,
		DensityCutoff: o.ClusterDensity,
	}
}

// EncoderConfig returns the training configuration without the data-dependent
// fields.
func (o Options) EncoderConfig() encoder.Config {
	cfg := encoder.DefaultConfig()
	cfg.Hidden = o.Hidden
	cfg.LatentDim = o.Dims
	cfg.Epochs = o.Epochs
	cfg.Seed = o.Seed
	return cfg
}

// contig-mode clustering defaults; assemblies hold far fewer sequences than read sets.
const (
	contigMinBinSize = 5
	contigIterations = 0
)

// ParseArgs registers the flags of mode on fs, parses argv and validates. The
// second result lists non-fatal adjustments the caller should log.
func ParseArgs(mode string, fs *flag.FlagSet, argv []string) (Options, []string, error) {
	opt := Options{Mode: mode}
	var help, examples bool

	if mode != ModeReads && mode != ModeContigs {
		return opt, nil, fatalf("unknown mode %q (use %s or %s)", mode, ModeReads, ModeContigs)
	}

	// Input
	strVar(fs, &opt.ReadsPath, "", "reads file (FASTA/FASTQ, optionally gzipped) [*]", "reads-path", "r")
	if mode == ModeContigs {
		strVar(fs, &opt.ContigsPath, "", "contigs file (FASTA/FASTQ, optionally gzipped) [*]", "contigs", "c")
	}

	// Profiles
	intVar(fs, &opt.K, 3, "k-mer size: 3, 4 or 5", "k-size", "k")
	intVar(fs, &opt.BinSize, 10, "coverage histogram bin width", "bin-size", "bs")
	intVar(fs, &opt.BinCount, 32, "coverage histogram bin count", "bin-count", "bc")

	// Latent encoder
	intVar(fs, &opt.Epochs, 200, "training epochs", "ae-epochs")
	intVar(fs, &opt.Dims, 8, "latent dimensions", "ae-dims")
	strVar(fs, &opt.HiddenSpec, "128,128", "hidden layer sizes, comma separated", "ae-hidden")
	fs.Uint64Var(&opt.Seed, "seed", 0, "random seed for training (0 = fresh seed)")

	// Clustering
	if mode == ModeReads {
		intVar(fs, &opt.MinBinSize, 10000, "minimum sequences per bin", "min-bin-size", "mbs")
		intVar(fs, &opt.Iterations, 1000, "cluster search rounds (0 = exhaustive)", "bin-iterations", "bit")
	} else {
		opt.MinBinSize, opt.Iterations = contigMinBinSize, contigIterations
		intVar(fs, &opt.FragmentSize, 5000, "contig fragment window (bp)", "fragment-size")
		intVar(fs, &opt.MinContigLength, 1000, "shortest contig to fragment (bp)", "min-contig-length")
	}
	def := cluster.DefaultConfig()
	intVar(fs, &opt.ClusterNeighbors, 0, "neighbours for the density estimate (0 = auto)", "cluster-neighbors")
	fs.Float64Var(&opt.ClusterRadius, "cluster-radius", def.RadiusScale, "absorption radius as a multiple of the k-NN distance")
	fs.Float64Var(&opt.ClusterDensity, "cluster-density", def.DensityCutoff, "growth stops below this share of the seed density (0-1]")

	// Run
	intVar(fs, &opt.Threads, 8, "worker threads", "threads", "t")
	boolVar(fs, &opt.Separate, "write per-bin sequence files under binned/", "separate", "sep")
	fs.BoolVar(&opt.Cuda, "cuda", false, "use the accelerated compute backend when available")
	fs.BoolVar(&opt.Resume, "resume", false, "skip stages completed by an earlier run")
	strVar(fs, &opt.Output, "", "output directory [*]", "output", "o")
	fs.BoolVar(&opt.Plot, "plot", false, "write latent.png")
	boolVar(fs, &opt.Quiet, "hide progress bars", "quiet", "q")
	fs.IntVar(&opt.Verbosity, "v", 0, "log verbosity")
	boolVar(fs, &help, "show this help message", "help", "h")
	fs.BoolVar(&examples, "examples", false, "show usage examples")

	if err := fs.Parse(argv); err != nil {
		return opt, nil, err
	}
	if help {
		return opt, nil, flag.ErrHelp
	}
	if examples {
		return opt, nil, ErrExamples
	}
	if fs.NArg() > 0 {
		return opt, nil, errors.Errorf("unexpected arguments: %v", fs.Args())
	}
	return validate(opt)
}

func validate(opt Options) (Options, []string, error) {
	var warns []string
	var err error

	if opt.Output == "" {
		return opt, nil, errors.New("--output is required")
	}
	if opt.ReadsFormat, err = checkInput("--reads-path", opt.ReadsPath); err != nil {
		return opt, nil, err
	}
	if opt.Mode == ModeContigs {
		if opt.ContigsFormat, err = checkInput("--contigs", opt.ContigsPath); err != nil {
			return opt, nil, err
		}
	}
	if err := opt.ProfileParams().Validate(); err != nil {
		return opt, nil, fatal(err)
	}
	if opt.Hidden, err = encoder.ParseHidden(opt.HiddenSpec); err != nil {
		return opt, nil, fatal(errors.Wrap(err, "--ae-hidden"))
	}
	switch {
	case opt.Epochs < 1:
		return opt, nil, fatalf("--ae-epochs must be >= 1 (got %d)", opt.Epochs)
	case opt.Dims < 1:
		return opt, nil, fatalf("--ae-dims must be >= 1 (got %d)", opt.Dims)
	case opt.FragmentSize < 0 || (opt.Mode == ModeContigs && opt.FragmentSize == 0):
		return opt, nil, fatalf("--fragment-size must be >= 1 (got %d)", opt.FragmentSize)
	case opt.MinContigLength < 0:
		return opt, nil, fatalf("--min-contig-length must be >= 0 (got %d)", opt.MinContigLength)
	}
	if err := opt.ClusterConfig().Validate(); err != nil {
		return opt, nil, fatal(err)
	}
	if opt.Threads < 1 {
		warns = append(warns, "minimum number of threads is 1; using 1")
		opt.Threads = 1
	}
	return opt, warns, nil
}

// checkInput verifies that path names a readable sequence file and returns its format.
func checkInput(flagName, path string) (seqfile.Format, error) {
	if path == "" {
		return 0, errors.Errorf("%s is required", flagName)
	}
	f, err := seqfile.DetectFormat(path)
	if err != nil {
		return 0, fatal(err)
	}
	st, err := os.Stat(path)
	if err != nil {
		return 0, fatalf("%s: %v", flagName, err)
	}
	if st.IsDir() {
		return 0, fatalf("%s: %q is a directory", flagName, path)
	}
	fh, err := os.Open(path)
	if err != nil {
		return 0, fatalf("%s: %v", flagName, err)
	}
	_ = fh.Close()
	return f, nil
}

func strVar(fs *flag.FlagSet, p *string, def, usage string, names ...string) {
	for _, n := range names {
		fs.StringVar(p, n, def, usage)
	}
}

func intVar(fs *flag.FlagSet, p *int, def int, usage string, names ...string) {
	for _, n := range names {
		fs.IntVar(p, n, def, usage)
	}
}

func boolVar(fs *flag.FlagSet, p *bool, usage string, names ...string) {
	for _, n := range names {
		fs.BoolVar(p, n, false, usage)
	}
}
