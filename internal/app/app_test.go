package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"lrbinner/internal/cli"
	"lrbinner/internal/profilestore"
	"lrbinner/internal/version"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitInput, ExitCode(cli.Fatal(errors.New("no such file"))))
	assert.Equal(t, ExitInput, ExitCode(errors.Wrap(profilestore.ErrConfigMismatch, "k")))
	assert.Equal(t, ExitCancelled, ExitCode(errors.Wrap(context.Canceled, "profiling")))
	assert.Equal(t, ExitRuntime, ExitCode(errors.New("disk full")))
}

func TestUsageAndVersion(t *testing.T) {
	for _, argv := range [][]string{nil, {"-h"}, {"--help"}} {
		var out, errBuf bytes.Buffer
		assert.Equal(t, ExitOK, Run(argv, &out, &errBuf), "%v", argv)
		assert.Contains(t, out.String(), "Modes:")
		assert.Contains(t, out.String(), cli.ModeContigs)
	}

	var out, errBuf bytes.Buffer
	assert.Equal(t, ExitOK, Run([]string{"--version"}, &out, &errBuf))
	assert.Equal(t, "lrbinner version "+version.Version+"\n", out.String())
}

func TestModeHelp(t *testing.T) {
	var out, errBuf bytes.Buffer
	assert.Equal(t, ExitOK, Run([]string{cli.ModeContigs, "-h"}, &out, &errBuf))
	assert.Contains(t, out.String(), "Usage of lrbinner contigs:")
	assert.Contains(t, out.String(), "fragment-size")
	assert.Empty(t, errBuf.String())

	out.Reset()
	assert.Equal(t, ExitOK, Run([]string{cli.ModeContigs, "--examples"}, &out, &errBuf))
	assert.Contains(t, out.String(), "marker_genes")
}

func TestBadInvocations(t *testing.T) {
	var out, errBuf bytes.Buffer
	assert.Equal(t, ExitInput, Run([]string{"assemble"}, &out, &errBuf))
	assert.Contains(t, errBuf.String(), `unknown mode "assemble"`)

	errBuf.Reset()
	assert.Equal(t, ExitInput, Run([]string{cli.ModeReads, "-o", t.TempDir()}, &out, &errBuf))
	assert.Contains(t, errBuf.String(), "--reads-path is required")

	errBuf.Reset()
	assert.Equal(t, ExitInput, Run([]string{cli.ModeReads, "--no-such-flag"}, &out, &errBuf))
	assert.Contains(t, errBuf.String(), "no-such-flag")
}
