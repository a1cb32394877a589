// Package runctx carries the per-run context handed to every stage: the logger,
// the start time, the output layout and the parsed options.
package runctx

import (
	"flag"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"lrbinner/internal/cli"
)

// Run is the explicit context of one invocation.
type Run struct {
	Log    klog.Logger
	Start  time.Time
	Layout Layout
	Opts   cli.Options
	// Progress receives progress bars; nil when they are disabled.
	Progress io.Writer
}

// Elapsed returns the wall-clock time since the run started.
func (r *Run) Elapsed() time.Duration { return time.Since(r.Start) }

// SetupLogging sends klog records to stderr and to the file at logPath at the
// given verbosity. Console and file receive the same records. The returned
// function flushes klog and detaches the file; call it before exit.
func SetupLogging(logPath string, verbosity int) (func(), error) {
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open run log")
	}
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	for _, kv := range [][2]string{
		{"logtostderr", "false"},
		{"alsologtostderr", "true"},
		{"one_output", "true"},
		{"v", strconv.Itoa(verbosity)},
	} {
		if err := fs.Set(kv[0], kv[1]); err != nil {
			_ = f.Close()
			return nil, errors.Wrapf(err, "configure logging (%s=%s)", kv[0], kv[1])
		}
	}
	klog.SetOutput(f)
	return func() {
		klog.Flush()
		klog.SetOutput(io.Discard)
		_ = f.Close()
	}, nil
}
