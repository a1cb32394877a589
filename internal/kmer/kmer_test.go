package kmer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexSizes(t *testing.T) {
	want := map[int]int{1: 2, 2: 10, 3: 32, 4: 136, 5: 512}
	for k, size := range want {
		x, err := NewIndex(k)
		require.NoError(t, err)
		assert.Equal(t, size, x.Size(), "k=%d", k)
	}
	_, err := NewIndex(0)
	require.Error(t, err)
	_, err = NewIndex(MaxK + 1)
	require.Error(t, err)
}

func TestRevComp(t *testing.T) {
	assert.Equal(t, "ACGT", string(revComp([]byte("ACGT"))))
	assert.Equal(t, "NCAAT", string(revComp([]byte("ATTGX"))))
	assert.Equal(t, "tgca", string(revComp([]byte("tgca"))))
	assert.Nil(t, revComp(nil))
}

func TestCanonicalFoldsReverseComplement(t *testing.T) {
	x, err := NewIndex(3)
	require.NoError(t, err)
	for i := 0; i < x.Size(); i++ {
		w := []byte(x.word(i))
		assert.Equal(t, i, x.canonical(w))
		assert.Equal(t, i, x.canonical(revComp(w)))
		assert.LessOrEqual(t, string(w), string(revComp(w)))
	}
	assert.Equal(t, x.canonical([]byte("AAA")), x.canonical([]byte("ttt")))
	assert.Equal(t, -1, x.canonical([]byte("ANA")))
	assert.Equal(t, -1, x.canonical([]byte("AA")))
	assert.Equal(t, "AAA", x.word(0))
}

func TestScanSkipsInvalidWindows(t *testing.T) {
	x, err := NewIndex(3)
	require.NoError(t, err)

	var got []int
	n := x.Scan([]byte("ACGTNACG"), func(c int) { got = append(got, c) })
	// ACG, CGT, then the N resets the window; ACG again.
	require.Equal(t, 3, n)
	require.Equal(t, []int{
		x.canonical([]byte("ACG")),
		x.canonical([]byte("CGT")),
		x.canonical([]byte("ACG")),
	}, got)

	assert.Zero(t, x.Scan([]byte("AC"), func(int) {}))
}

func TestScanMatchesCanonical(t *testing.T) {
	x, err := NewIndex(5)
	require.NoError(t, err)
	seq := []byte("ACGTTGCAAGGCTTAACCGGTAGCTAGGATCCA")
	i := 0
	x.Scan(seq, func(c int) {
		assert.Equal(t, x.canonical(seq[i:i+5]), c, "window %d", i)
		i++
	})
	assert.Equal(t, len(seq)-4, i)
}
