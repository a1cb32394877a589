package appcore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2/ktesting"

	"lrbinner/internal/cli"
	"lrbinner/internal/cluster"
	"lrbinner/internal/jsonutil"
	"lrbinner/internal/profilestore"
	"lrbinner/internal/runctx"
)

func TestResultRoundTrip(t *testing.T) {
	res := cluster.Result{
		Bins: []cluster.Bin{
			{ID: 0, Members: []int{0, 2}, Centroid: []float64{0.25, -1}, Density: 3, Seed: 2},
		},
		Unassigned: []int{1},
		Rounds:     2,
	}
	path := filepath.Join(t.TempDir(), "clusters.json")
	require.NoError(t, jsonutil.WriteFile(path, res))

	got, err := loadResult(path)
	require.NoError(t, err)
	assert.Equal(t, res, got)
	assert.Equal(t, 3, got.Assigned()+len(got.Unassigned))

	_, err = loadResult(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, jsonutil.WriteFile(filepath.Join(dir, "a.json"), 1))
	assert.True(t, fileExists(dir, "a.json"))
	assert.False(t, fileExists(dir, "b.json"))
	assert.False(t, fileExists(filepath.Dir(dir), filepath.Base(dir)))
}

func TestVanishedInputLeavesStoreIncomplete(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "reads.fa")
	require.NoError(t, os.WriteFile(in, []byte(">a\nACGTACGT\n"), 0o644))
	out := filepath.Join(dir, "out")
	opts, _, err := cli.ParseArgs(cli.ModeReads, cli.NewFlagSet("lrbinner", cli.ModeReads),
		[]string{"-r", in, "-o", out, "-q"})
	require.NoError(t, err)
	require.NoError(t, os.Remove(in))

	layout := runctx.NewLayout(out)
	r := &runctx.Run{Log: ktesting.NewLogger(t, ktesting.NewConfig()), Start: time.Now(), Layout: layout, Opts: opts}
	err = Run(context.Background(), r, io.Discard)
	require.ErrorIs(t, err, cli.ErrFatalInput)
	assert.False(t, profilestore.Exists(layout.Profiles))
}
