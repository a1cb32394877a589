package profilestore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lrbinner/internal/profile"
)

var params = profile.Params{K: 3, BinSize: 10, BinCount: 4}

func vec(seed float64) []float64 {
	return []float64{seed, seed + 0.5, -seed, 1e-300}
}

func TestCreatePutOpenRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "profiles")
	require.False(t, Exists(dir))

	s, err := Create(dir, params, 4)
	require.NoError(t, err)
	require.False(t, Exists(dir), "store must not look complete before Close")
	for i := 0; i < 100; i++ {
		require.NoError(t, s.Put(fmt.Sprintf("read_%03d", i), vec(float64(i))))
	}
	require.NoError(t, s.Close())
	require.True(t, Exists(dir))

	r, err := Open(dir, params)
	require.NoError(t, err)
	require.Equal(t, 100, r.Len())
	entries, err := r.GetAll()
	require.NoError(t, err)
	require.Len(t, entries, 100)
	for i, e := range entries {
		require.Equal(t, fmt.Sprintf("read_%03d", i), e.ID)
		require.Equal(t, vec(float64(i)), e.Vector)
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	s, err := Create(t.TempDir(), params, 4)
	require.NoError(t, err)
	require.NoError(t, s.Put("a", vec(1)))
	require.ErrorIs(t, s.Put("a", vec(2)), ErrDuplicateID)
	require.Error(t, s.Put("b", []float64{1}))
	require.NoError(t, s.Close())

	entries, err := s.GetAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestConcurrentPut(t *testing.T) {
	dir := t.TempDir()
	s, err := Create(dir, params, 4)
	require.NoError(t, err)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				assert.NoError(t, s.Put(fmt.Sprintf("w%d_%d", w, i), vec(float64(i))))
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, s.Close())

	r, err := Open(dir, params)
	require.NoError(t, err)
	entries, err := r.GetAll()
	require.NoError(t, err)
	require.Len(t, entries, 400)
}

func TestOpenConfigMismatch(t *testing.T) {
	dir := t.TempDir()
	s, err := Create(dir, params, 4)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	other := params
	other.K = 4
	_, err = Open(dir, other)
	require.ErrorIs(t, err, ErrConfigMismatch)
}

func TestOpenIncomplete(t *testing.T) {
	dir := t.TempDir()
	_, err := Create(dir, params, 4)
	require.NoError(t, err)
	_, err = Open(dir, params)
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestTruncatedDataFails(t *testing.T) {
	dir := t.TempDir()
	s, err := Create(dir, params, 4)
	require.NoError(t, err)
	require.NoError(t, s.Put("a", vec(1)))
	require.NoError(t, s.Close())

	fn := filepath.Join(dir, fileData)
	data, err := os.ReadFile(fn)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(fn, data[:len(data)-3], 0o644))

	r, err := Open(dir, params)
	require.NoError(t, err)
	_, err = r.GetAll()
	require.Error(t, err)
}

func TestAbortLeavesStoreIncomplete(t *testing.T) {
	dir := t.TempDir()
	s, err := Create(dir, params, 4)
	require.NoError(t, err)
	require.NoError(t, s.Put("a", vec(1)))
	require.NoError(t, s.Abort())
	require.NoError(t, s.Abort())

	assert.False(t, Exists(dir))
	_, err = Open(dir, params)
	assert.ErrorIs(t, err, ErrIncomplete)
}
