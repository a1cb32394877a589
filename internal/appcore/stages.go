package appcore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"lrbinner/internal/assign"
	"lrbinner/internal/cli"
	"lrbinner/internal/cluster"
	"lrbinner/internal/cmdutil"
	"lrbinner/internal/jsonutil"
	"lrbinner/internal/latentplot"
	"lrbinner/internal/refine"
	"lrbinner/internal/runstate"
	"lrbinner/internal/writers"
)

// minMarkers is the number of distinct marker genes a bin needs before its
// genome estimate is used.
const minMarkers = 3

// cluster runs the density search, refines it with marker genes in contigs mode
// and persists the result. A result saved under the same fingerprint is reused.
func (j *job) cluster() error {
	log := j.r.Log
	o := j.r.Opts
	cfg := o.ClusterConfig()

	var markers refine.Markers
	var used []string
	if o.Mode == cli.ModeContigs {
		var err error
		if markers, used, err = refine.LoadMarkers(j.r.Layout.MarkerGenes); err != nil {
			return cli.Fatal(err)
		}
		if len(used) == 0 {
			cmdutil.Warn(log, "no marker gene annotations found; bins are not refined",
				"dir", j.r.Layout.MarkerGenes, "fragments", filepath.Join(j.r.Layout.Fragments, refine.FragmentsFile))
		} else {
			log.Info("marker genes loaded", "files", strings.Join(used, ","), "contigs", len(markers), "hits", markers.Hits())
		}
	}
	fp := fmt.Sprintf("%s iterations=%d min=%d neighbors=%d radius=%g density=%g markers=%s",
		j.state.Fingerprints[runstate.Trained], cfg.Iterations, cfg.MinBinSize, cfg.Neighbors,
		cfg.RadiusScale, cfg.DensityCutoff, strings.Join(used, ","))

	if o.Resume && j.state.Done(runstate.Clustered, fp) {
		res, err := loadResult(j.r.Layout.Clusters)
		if err == nil && res.Assigned()+len(res.Unassigned) == len(j.ids) {
			log.Info("clusters found; skipping clustering", "bins", len(res.Bins))
			j.result = res
			return nil
		}
		log.Info("re-running clustering", "reason", "saved clusters unreadable or stale")
	}

	res, err := cluster.Search(j.emb, cfg)
	if err != nil {
		return cli.Fatal(err)
	}
	log.Info("density search finished", "bins", len(res.Bins), "assigned", res.Assigned(),
		"unassigned", len(res.Unassigned), "rounds", res.Rounds)

	if len(used) > 0 {
		var r refine.Refiner = refine.MarkerRefiner{Markers: markers, MinMarkers: minMarkers}
		if reqs := r.Refine(res, j.ids); len(reqs) > 0 {
			var split int
			res, split = cluster.Repartition(j.emb, res, reqs, cfg.MinBinSize)
			log.Info("bins refined with marker genes", "requested", len(reqs), "split", split, "bins", len(res.Bins))
		}
	}
	if len(res.Bins) == 0 {
		cmdutil.Warn(log, "no bin reached the minimum size; every sequence is unbinned", "min_bin_size", cfg.MinBinSize)
	}

	if err := jsonutil.WriteFile(j.r.Layout.Clusters, res); err != nil {
		return errors.Wrap(err, "save clusters")
	}
	j.result = res
	j.state.Complete(runstate.Clustered, fp)
	return j.save()
}

func loadResult(path string) (cluster.Result, error) {
	var res cluster.Result
	err := jsonutil.ReadFile(path, &res)
	return res, err
}

// assign writes every assignment format and, when asked, one sequence file per bin.
func (j *job) assign(ctx context.Context) (assign.Table, error) {
	log := j.r.Log
	o := j.r.Opts
	t := assign.Assign(j.ids, j.result)
	meta := writers.Meta{Mode: o.Mode, RunID: j.state.RunID}

	for _, format := range writers.Formats() {
		name, err := writers.FileName(format)
		if err != nil {
			return t, err
		}
		path := j.r.Layout.File(name)
		if err := jsonutil.WriteAtomic(path, func(w io.Writer) error {
			return writers.Write(format, w, t, meta)
		}); err != nil {
			return t, errors.Wrapf(err, "write %s assignments", format)
		}
		log.V(1).Info("assignments written", "format", format, "path", path)
	}

	if o.Separate {
		if err := os.RemoveAll(j.r.Layout.Binned); err != nil {
			return t, errors.Wrap(err, "clear binned sequences")
		}
		path, format := o.Input()
		n, err := assign.Materialize(ctx, path, format, t, j.r.Layout.Binned)
		if err != nil {
			return t, err
		}
		log.Info("bin sequence files written", "records", n, "dir", j.r.Layout.Binned)
	}

	j.state.Complete(runstate.Assigned, fmt.Sprintf("bins=%d binned=%d", len(t.Bins), t.Binned()))
	return t, j.save()
}

// plot failures are logged and do not fail the run.
func (j *job) plot(t assign.Table) {
	log := j.r.Log
	if j.emb == nil {
		cmdutil.Warn(log, "nothing to plot")
		return
	}
	if err := latentplot.Save(j.r.Layout.Plot, j.emb, j.result.Labels(len(j.ids))); err != nil {
		cmdutil.Warn(log, "latent plot not written", "err", err)
		return
	}
	log.Info("latent plot written", "path", j.r.Layout.Plot, "bins", len(t.Bins))
}

func fileExists(dir, name string) bool {
	st, err := os.Stat(filepath.Join(dir, name))
	return err == nil && st.Mode().IsRegular()
}
