// internal/appcore/core.go
package appcore

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"lrbinner/internal/assign"
	"lrbinner/internal/cli"
	"lrbinner/internal/cluster"
	"lrbinner/internal/cmdutil"
	"lrbinner/internal/compute"
	"lrbinner/internal/encoder"
	"lrbinner/internal/pipeline"
	"lrbinner/internal/profile"
	"lrbinner/internal/profilestore"
	"lrbinner/internal/refine"
	"lrbinner/internal/runctx"
	"lrbinner/internal/runstate"
	"lrbinner/internal/seqfile"
)

// job is the working set passed between stages.
type job struct {
	r     *runctx.Run
	state *runstate.State

	profiledNow bool
	ids         []string
	data        *mat.Dense
	compDim     int

	backend compute.Backend
	snap    *encoder.Snapshot
	emb     *mat.Dense
	result  cluster.Result
}

// Run executes every stage of r, skipping stages an earlier run completed when
// r.Opts.Resume is set. The bin summary is printed to stdout.
func Run(ctx context.Context, r *runctx.Run, stdout io.Writer) error {
	log := r.Log
	var (
		st  *runstate.State
		err error
	)
	if r.Opts.Resume {
		if st, err = runstate.Load(r.Layout.State, r.Opts.Mode); err != nil {
			return cli.Fatal(err)
		}
		log.Info("resuming", "run", st.RunID, "completed", st.Stage)
	} else {
		st = runstate.New(r.Layout.State, r.Opts.Mode)
	}
	log.Info("run started", "run", st.RunID, "mode", r.Opts.Mode, "output", r.Layout.Root)
	j := &job{r: r, state: st}

	if err := j.profile(ctx); err != nil {
		return err
	}
	if r.Opts.Mode == cli.ModeContigs {
		if err := j.fragments(ctx); err != nil {
			return err
		}
	}
	if len(j.ids) == 0 {
		cmdutil.Warn(log, "no sequences were profiled; every output will be empty")
	} else {
		if err := j.train(ctx); err != nil {
			return err
		}
		if err := j.cluster(); err != nil {
			return err
		}
	}
	table, err := j.assign(ctx)
	if err != nil {
		return err
	}
	if r.Opts.Plot {
		j.plot(table)
	}

	fmt.Fprintln(stdout, assign.SummaryTable(table))
	log.Info("finished", "elapsed", r.Elapsed().Round(time.Millisecond),
		"sequences", humanize.Comma(int64(len(table.Rows))), "bins", len(table.Bins), "output", r.Layout.Root)
	return nil
}

func (j *job) save() error {
	return errors.Wrap(j.state.Save(), "save run state")
}

// profile computes or reuses the profile store and loads it into memory.
func (j *job) profile(ctx context.Context) error {
	log := j.r.Log
	params := j.r.Opts.ProfileParams()
	pr, err := profile.New(params)
	if err != nil {
		return err
	}
	j.compDim = pr.CompositionDim()
	dir := j.r.Layout.Profiles
	fp := params.String()

	var store *profilestore.Store
	if j.r.Opts.Resume && profilestore.Exists(dir) {
		if store, err = profilestore.Open(dir, params); err != nil {
			return err
		}
		if j.state.Done(runstate.Profiled, fp) {
			log.Info("profiles found; skipping profiling", "count", store.Len(), "params", fp)
		} else {
			log.Info("re-profiling", "reason", "run state does not record the stored profiles")
			store = nil
		}
	}
	if store == nil {
		if store, err = j.runProfiling(ctx, pr); err != nil {
			return err
		}
		j.profiledNow = true
		j.state.Complete(runstate.Profiled, fp)
	}
	if err := j.save(); err != nil {
		return err
	}

	entries, err := store.GetAll()
	if err != nil {
		return err
	}
	j.ids = make([]string, len(entries))
	if len(entries) == 0 {
		return nil
	}
	dim := store.Meta().Dim
	flat := make([]float64, 0, len(entries)*dim)
	for i, e := range entries {
		j.ids[i] = e.ID
		flat = append(flat, e.Vector...)
	}
	j.data = mat.NewDense(len(entries), dim, flat)
	return nil
}

func (j *job) runProfiling(ctx context.Context, pr *profile.Profiler) (*profilestore.Store, error) {
	log := j.r.Log
	path, format := j.r.Opts.Input()
	log.Info("profiling", "input", path, "format", format, "params", pr.Params(), "threads", j.r.Opts.Threads)

	store, err := profilestore.Create(j.r.Layout.Profiles, pr.Params(), pr.Dim())
	if err != nil {
		return nil, err
	}
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	recs, readErr, err := seqfile.StreamCtxPath(sctx, path, format)
	if err != nil {
		_ = store.Abort()
		return nil, cli.Fatal(err)
	}
	stats, perr := pipeline.Profile(ctx, log, pipeline.Config{Threads: j.r.Opts.Threads, Progress: j.r.Progress}, recs, pr, store)
	if perr != nil {
		cancel()
	}
	rerr := <-readErr
	if perr != nil || rerr != nil {
		_ = store.Abort()
		switch {
		case perr != nil:
			return nil, perr
		case ctx.Err() == nil:
			return nil, cli.Fatal(rerr)
		default:
			return nil, rerr
		}
	}
	if err := store.Close(); err != nil {
		return nil, err
	}
	log.Info("profiling finished", "sequences", humanize.Comma(int64(stats.Sequences)),
		"bases", humanize.Comma(stats.Bases), "short", stats.Short, "skipped", stats.Skipped)
	return store, nil
}

// fragments writes the contig fragments that marker-gene annotation runs on.
func (j *job) fragments(ctx context.Context) error {
	log := j.r.Log
	o := j.r.Opts
	dst := j.r.Layout.Fragments
	if o.Resume && fileExists(dst, refine.FragmentsFile) {
		log.Info("fragments found; skipping fragmentation", "dir", dst)
		return nil
	}
	st, err := refine.WriteFragments(ctx, o.ContigsPath, o.ContigsFormat, dst, o.FragmentSize, o.MinContigLength)
	if err != nil {
		return err
	}
	log.Info("contig fragments written", "contigs", st.Contigs, "fragments", st.Fragments,
		"below_min_length", st.Short, "window", o.FragmentSize)
	if st.Malformed > 0 {
		cmdutil.Warn(log, "malformed contig records not fragmented", "count", st.Malformed)
	}
	return nil
}

// train reuses a compatible snapshot or trains a new model, then encodes.
func (j *job) train(ctx context.Context) error {
	log := j.r.Log
	o := j.r.Opts

	sel, err := compute.Select(o.Cuda, o.Threads)
	if err != nil {
		return cli.Fatal(err)
	}
	switch {
	case sel.Degraded:
		cmdutil.Warn(log, "accelerated compute unavailable; using the default backend", "reason", sel.Reason)
	case sel.Reason != "":
		log.Info("compute backend overridden", "backend", sel.Backend.Name(), "by", sel.Reason)
	}
	j.backend = sel.Backend

	_, inputDim := j.data.Dims()
	if o.Resume && !j.profiledNow {
		if reason := j.reuseSnapshot(inputDim); reason != "" {
			log.Info("retraining model", "reason", reason)
		}
	}

	if j.snap == nil {
		cfg := o.EncoderConfig()
		cfg.CompositionDim = j.compDim
		cfg.Progress = j.r.Progress
		if cfg.Seed == 0 {
			cfg.Seed = rand.Uint64()
			log.Info("using a fresh training seed", "seed", cfg.Seed)
		}
		snap, err := encoder.Train(ctx, log, j.backend, j.data, cfg)
		if err != nil {
			return err
		}
		if err := snap.Save(j.r.Layout.Model); err != nil {
			return err
		}
		j.snap = snap
	}
	if fp := trainFingerprint(j.snap.Meta); !j.state.Done(runstate.Trained, fp) {
		j.state.Complete(runstate.Trained, fp)
	}
	if err := j.save(); err != nil {
		return err
	}

	if j.emb, err = encoder.Encode(j.backend, j.snap, j.data); err != nil {
		return err
	}
	return nil
}

// reuseSnapshot loads the snapshot the run state records as trained. It returns
// why the snapshot cannot be used, or "" once j.snap is set.
func (j *job) reuseSnapshot(inputDim int) string {
	o := j.r.Opts
	fp, ok := j.state.Fingerprint(runstate.Trained)
	switch {
	case !ok:
		return "run state records no trained model"
	case !encoder.Exists(j.r.Layout.Model):
		return "model snapshot missing"
	}
	snap, err := encoder.LoadSnapshot(j.r.Layout.Model)
	if err == nil {
		err = snap.Reusable(inputDim, o.Hidden, o.Dims, o.Epochs)
	}
	if err == nil && trainFingerprint(snap.Meta) != fp {
		err = errors.New("snapshot differs from the one the run state records")
	}
	if err != nil {
		return err.Error()
	}
	j.r.Log.Info("trained model found; skipping training", "epochs", snap.Meta.Epochs, "loss", snap.Meta.FinalLoss)
	j.snap = snap
	return ""
}

func trainFingerprint(m encoder.Meta) string {
	return fmt.Sprintf("input=%d hidden=%s latent=%d epochs=%d seed=%d",
		m.InputDim, encoder.FormatHidden(m.Hidden), m.LatentDim, m.Epochs, m.Seed)
}
