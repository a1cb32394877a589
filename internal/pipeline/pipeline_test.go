package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2/ktesting"

	"lrbinner/internal/profile"
	"lrbinner/internal/profilestore"
	"lrbinner/internal/seqfile"
)

type memSink struct {
	mu   sync.Mutex
	ids  []string
	seen map[string]bool
	fail string
}

func (m *memSink) Put(id string, vec []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == m.fail {
		return errors.New("disk full")
	}
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	if m.seen[id] {
		return errors.Wrapf(profilestore.ErrDuplicateID, "%q", id)
	}
	m.seen[id] = true
	m.ids = append(m.ids, id)
	return nil
}

func feed(recs []seqfile.Record) <-chan seqfile.Record {
	ch := make(chan seqfile.Record, len(recs))
	for _, r := range recs {
		ch <- r
	}
	close(ch)
	return ch
}

func records(n int) []seqfile.Record {
	out := make([]seqfile.Record, n)
	for i := range out {
		seq := strings.Repeat("ACGTTGCA", 10+i%7)
		out[i] = seqfile.Record{Index: i, ID: fmt.Sprintf("r%03d", i), Seq: []byte(seq)}
	}
	return out
}

func TestProfile_PreservesInputOrder(t *testing.T) {
	pr, err := profile.New(profile.Params{K: 3, BinSize: 2, BinCount: 4})
	require.NoError(t, err)
	recs := records(200)

	var want []string
	for _, threads := range []int{1, 3, 16} {
		sink := &memSink{}
		st, err := Profile(context.Background(), ktesting.NewLogger(t, ktesting.NewConfig()),
			Config{Threads: threads}, feed(recs), pr, sink)
		require.NoError(t, err)
		assert.Equal(t, 200, st.Sequences)
		if want == nil {
			want = sink.ids
			continue
		}
		assert.Equal(t, want, sink.ids, "threads=%d", threads)
	}
	assert.Equal(t, "r000", want[0])
	assert.Equal(t, "r199", want[199])
}

func TestProfile_SkipsBadRecords(t *testing.T) {
	pr, err := profile.New(profile.Params{K: 4, BinSize: 1, BinCount: 3})
	require.NoError(t, err)
	recs := []seqfile.Record{
		{Index: 0, ID: "a", Seq: []byte("ACGTACGTAA")},
		{Index: 1, ID: "", Seq: []byte("ACGTACGTAA")},
		{Index: 2, ID: "a", Seq: []byte("GGGGCCCC")},
		{Index: 3, ID: "tiny", Seq: []byte("AC")},
		{Index: 4, ID: "n", Seq: []byte("NNNNNNNN")},
		{Index: 5, ID: "late", Err: errors.Wrap(seqfile.ErrMalformed, "sequence/quality length mismatch")},
		{Index: 6, ID: "late", Seq: []byte("ACGTACGTAA")},
	}
	sink := &memSink{}
	st, err := Profile(context.Background(), ktesting.NewLogger(t, ktesting.NewConfig()),
		Config{Threads: 2}, feed(recs), pr, sink)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "tiny", "n", "late"}, sink.ids)
	assert.Equal(t, Stats{Sequences: 4, Bases: 30, Short: 2, Skipped: 3}, st)
}

func TestProfile_SinkErrorStops(t *testing.T) {
	pr, err := profile.New(profile.Params{K: 3, BinSize: 2, BinCount: 4})
	require.NoError(t, err)
	sink := &memSink{fail: "r010"}
	_, err = Profile(context.Background(), ktesting.NewLogger(t, ktesting.NewConfig()),
		Config{Threads: 4}, feed(records(100)), pr, sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, sink.ids, 10)
}

func TestProfile_Cancelled(t *testing.T) {
	pr, err := profile.New(profile.Params{K: 3, BinSize: 2, BinCount: 4})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Profile(ctx, ktesting.NewLogger(t, ktesting.NewConfig()),
		Config{Threads: 2}, feed(records(50)), pr, &memSink{})
	assert.ErrorIs(t, err, context.Canceled)
}
