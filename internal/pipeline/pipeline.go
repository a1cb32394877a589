package pipeline

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"lrbinner/internal/cmdutil"
	"lrbinner/internal/profilestore"
	"lrbinner/internal/seqfile"
)

// Config controls the profiling pool.
type Config struct {
	Threads  int       // number of worker goroutines (>=1)
	Progress io.Writer // spinner destination; nil disables it
}

// Stats summarizes one profiling pass.
type Stats struct {
	Sequences int   // profiles handed to the sink
	Bases     int64 // bases across those sequences
	Short     int   // sequences without a single valid k-mer window
	Skipped   int   // records rejected (malformed, empty or duplicate id)
}

type result struct {
	index int
	id    string
	bases int
	vec   []float64
	short bool
	bad   error
}

// Profile drains records, profiles each on one of cfg.Threads workers, and calls
// sink.Put in record index order. Malformed records and records with an empty or
// duplicate id are skipped with a warning. It returns the first error encountered (including context
// cancellation); the sink is not closed.
func Profile(
	ctx context.Context,
	log klog.Logger,
	cfg Config,
	records <-chan seqfile.Record,
	vz Vectorizer,
	sink Sink,
) (Stats, error) {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan seqfile.Record, cfg.Threads*2)
	results := make(chan result, cfg.Threads*2)

	// Workers
	var wg sync.WaitGroup
	wg.Add(cfg.Threads)
	for w := 0; w < cfg.Threads; w++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case rec, ok := <-jobs:
					if !ok {
						return
					}
					r := result{index: rec.Index, id: rec.ID, bad: rec.Err}
					if rec.Err == nil {
						v := vz.Profile(rec.Seq)
						r.bases, r.vec, r.short = rec.Len(), v.Values, v.Windows == 0
					}
					select {
					case results <- r:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	// Collector: results arrive in any order and are released by index.
	var (
		st   Stats
		cerr error
		cwg  sync.WaitGroup
	)
	bar := newSpinner(cfg.Progress)
	cwg.Add(1)
	go func() {
		defer cwg.Done()
		pending := make(map[int]result, cfg.Threads*4)
		next := 0
		for r := range results {
			pending[r.index] = r
			for {
				cur, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				if cerr != nil {
					continue
				}
				if err := put(log, sink, cur, &st); err != nil {
					cerr = err
					cancel()
				}
				if bar != nil {
					_ = bar.Add(1)
				}
			}
		}
	}()

	// Feed work
feed:
	for rec := range records {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- rec:
		}
	}

	close(jobs)
	go func() {
		for range records {
		}
	}()
	wg.Wait()
	close(results)
	cwg.Wait()
	if bar != nil {
		_ = bar.Finish()
	}

	if st.Short > 0 {
		cmdutil.Warn(log, "sequences too short to profile; stored as zero vectors", "count", st.Short)
	}
	if st.Skipped > 0 {
		cmdutil.Warn(log, "records skipped", "count", st.Skipped)
	}
	if cerr != nil {
		return st, cerr
	}
	return st, ctx.Err()
}

func put(log klog.Logger, sink Sink, r result, st *Stats) error {
	if r.bad != nil {
		cmdutil.Warn(log, "skipping malformed record", "index", r.index, "id", r.id, "err", r.bad.Error())
		st.Skipped++
		return nil
	}
	if r.id == "" {
		log.V(2).Info("skipping record without id", "index", r.index)
		st.Skipped++
		return nil
	}
	if err := sink.Put(r.id, r.vec); errors.Is(err, profilestore.ErrDuplicateID) {
		log.V(2).Info("skipping duplicate record id", "id", r.id, "index", r.index)
		st.Skipped++
		return nil
	} else if err != nil {
		return errors.Wrapf(err, "store profile %q", r.id)
	}
	if r.short {
		log.V(2).Info("no valid k-mer window", "id", r.id, "length", r.bases)
		st.Short++
	}
	st.Sequences++
	st.Bases += int64(r.bases)
	return nil
}

func newSpinner(w io.Writer) *progressbar.ProgressBar {
	if w == nil {
		return nil
	}
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("profiling"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionClearOnFinish(),
	)
}
