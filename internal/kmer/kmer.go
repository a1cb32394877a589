// Package kmer encodes DNA k-mers as 2-bit integers and folds every k-mer onto its
// canonical form, the lexicographically smaller of itself and its reverse complement.
package kmer

import "github.com/pkg/errors"

// MaxK bounds the table size (4^MaxK entries).
const MaxK = 12

var (
	complement [256]byte
	code       [256]int8
)

func init() {
	complement['A'] = 'T'
	complement['C'] = 'G'
	complement['G'] = 'C'
	complement['T'] = 'A'
	complement['a'] = 't'
	complement['c'] = 'g'
	complement['g'] = 'c'
	complement['t'] = 'a'
	complement['N'] = 'N'
	complement['n'] = 'n'

	for i := range code {
		code[i] = -1
	}
	code['A'], code['a'] = 0, 0
	code['C'], code['c'] = 1, 1
	code['G'], code['g'] = 2, 2
	code['T'], code['t'] = 3, 3
}

// revComp returns the reverse complement of seq. Unknown symbols become 'N'.
func revComp(seq []byte) []byte {
	n := len(seq)
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		c := complement[seq[n-1-i]]
		if c == 0 {
			c = 'N'
		}
		out[i] = c
	}
	return out
}

// Index is the canonical k-mer table for one k.
type Index struct {
	k     int
	mask  uint32
	canon []int32 // 2-bit code -> dense canonical index
	words []uint32
}

// NewIndex builds the canonical table for k. Dense indices follow the
// lexicographic order of the canonical k-mers.
func NewIndex(k int) (*Index, error) {
	if k < 1 || k > MaxK {
		return nil, errors.Errorf("k-mer size %d out of range [1,%d]", k, MaxK)
	}
	n := uint32(1) << (2 * uint(k))
	x := &Index{k: k, mask: n - 1, canon: make([]int32, n)}
	dense := make(map[uint32]int32, n/2+1)
	for c := uint32(0); c < n; c++ {
		rc := revCompCode(c, k)
		if c <= rc {
			dense[c] = int32(len(x.words))
			x.words = append(x.words, c)
		}
	}
	for c := uint32(0); c < n; c++ {
		m := c
		if rc := revCompCode(c, k); rc < m {
			m = rc
		}
		x.canon[c] = dense[m]
	}
	return x, nil
}

// K returns the k-mer length.
func (x *Index) K() int { return x.k }

// Size is the number of canonical k-mers.
func (x *Index) Size() int { return len(x.words) }

// word decodes the canonical k-mer with dense index i.
func (x *Index) word(i int) string {
	return decode(x.words[i], x.k)
}

// canonical returns the dense canonical index of a k-mer, or -1 if it contains a
// symbol outside ACGT or has the wrong length.
func (x *Index) canonical(kmer []byte) int {
	if len(kmer) != x.k {
		return -1
	}
	var c uint32
	for _, b := range kmer {
		v := code[b]
		if v < 0 {
			return -1
		}
		c = c<<2 | uint32(v)
	}
	return int(x.canon[c])
}

// Scan slides a window of length k over seq and calls fn with the canonical index of
// every window made only of ACGT symbols. It returns the number of such windows.
func (x *Index) Scan(seq []byte, fn func(canon int)) int {
	var (
		fwd   uint32
		valid int
		n     int
	)
	for _, b := range seq {
		v := code[b]
		if v < 0 {
			valid = 0
			fwd = 0
			continue
		}
		fwd = (fwd<<2 | uint32(v)) & x.mask
		valid++
		if valid >= x.k {
			fn(int(x.canon[fwd]))
			n++
		}
	}
	return n
}

func revCompCode(c uint32, k int) uint32 {
	var rc uint32
	for i := 0; i < k; i++ {
		rc = rc<<2 | (3 - c&3)
		c >>= 2
	}
	return rc
}

// decode renders a 2-bit code of length k as ACGT text.
func decode(c uint32, k int) string {
	const letters = "ACGT"
	out := make([]byte, k)
	for i := k - 1; i >= 0; i-- {
		out[i] = letters[c&3]
		c >>= 2
	}
	return string(out)
}
