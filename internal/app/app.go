// internal/app/app.go
package app

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"lrbinner/internal/appcore"
	"lrbinner/internal/cli"
	"lrbinner/internal/cmdutil"
	"lrbinner/internal/profilestore"
	"lrbinner/internal/runctx"
	"lrbinner/internal/version"
	"lrbinner/internal/writers"
)

const name = "lrbinner"

// Exit codes
const (
	ExitOK        = 0
	ExitInput     = 2
	ExitRuntime   = 3
	ExitCancelled = 130
)

// ExitCode classifies the error a run ended with.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitCancelled
	case errors.Is(err, cli.ErrFatalInput), errors.Is(err, profilestore.ErrConfigMismatch):
		return ExitInput
	default:
		return ExitRuntime
	}
}

// RunContext runs one invocation: argv[0] is the mode, the rest its flags.
func RunContext(parent context.Context, argv []string, stdout, stderr io.Writer) int {
	outw := bufio.NewWriter(stdout)
	flush := func(code int) int {
		if err := outw.Flush(); writers.IsBrokenPipe(err) {
			return code
		} else if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return ExitRuntime
		}
		return code
	}

	if len(argv) == 0 {
		cli.TopUsage(outw, name)
		return flush(ExitOK)
	}
	switch argv[0] {
	case "-h", "-help", "--help", "help":
		cli.TopUsage(outw, name)
		return flush(ExitOK)
	case "-version", "--version", "version":
		_, _ = fmt.Fprintf(outw, "%s version %s\n", name, version.Version)
		return flush(ExitOK)
	case cli.ModeReads, cli.ModeContigs:
	default:
		_, _ = fmt.Fprintf(stderr, "unknown mode %q\n\n", argv[0])
		cli.TopUsage(stderr, name)
		return ExitInput
	}

	mode := argv[0]
	fs := cli.NewFlagSet(name, mode)
	fs.SetOutput(io.Discard)
	opts, warns, err := cli.ParseArgs(mode, fs, argv[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(outw)
			fs.Usage()
			return flush(ExitOK)
		}
		if errors.Is(err, cli.ErrExamples) {
			cli.Examples(outw, name, mode)
			return flush(ExitOK)
		}
		_, _ = fmt.Fprintf(stderr, "%s %s: %v\nRun '%s %s -h' for usage.\n", name, mode, err, name, mode)
		return ExitInput
	}

	start := time.Now()
	layout := runctx.NewLayout(opts.Output)
	var outputs []string
	for _, f := range writers.Formats() {
		file, err := writers.FileName(f)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return ExitRuntime
		}
		outputs = append(outputs, file)
	}
	if err := layout.Prepare(mode, opts.Resume, outputs...); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return ExitRuntime
	}
	done, err := runctx.SetupLogging(layout.Log, opts.Verbosity)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return ExitRuntime
	}
	defer done()

	log := klog.LoggerWithName(klog.Background(), mode)
	cmdutil.Warnings(log, warns)

	r := &runctx.Run{Log: log, Start: start, Layout: layout, Opts: opts}
	if !opts.Quiet {
		r.Progress = stderr
	}
	err = appcore.Run(parent, r, outw)
	code := ExitCode(err)
	switch code {
	case ExitOK:
	case ExitCancelled:
		log.Info("interrupted", "resume_with", "--resume")
	default:
		log.Error(err, "run failed", "exit", code)
	}
	return flush(code)
}

// Run is RunContext without cancellation.
func Run(argv []string, stdout, stderr io.Writer) int {
	return RunContext(context.Background(), argv, stdout, stderr)
}
