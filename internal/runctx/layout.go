package runctx

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Layout is the set of paths under an output root.
type Layout struct {
	Root        string
	Profiles    string // profile store
	Model       string // model snapshot
	MarkerGenes string // contig mode: externally produced marker annotations
	Fragments   string // contig mode: contig fragments for annotation
	Binned      string // per-bin sequence files
	Clusters    string // search result
	State       string // run state
	Log         string // run log
	Plot        string // latent scatter plot
}

// NewLayout returns the layout rooted at root.
func NewLayout(root string) Layout {
	return Layout{
		Root:        root,
		Profiles:    filepath.Join(root, "profiles"),
		Model:       filepath.Join(root, "model"),
		MarkerGenes: filepath.Join(root, "marker_genes"),
		Fragments:   filepath.Join(root, "fragments"),
		Binned:      filepath.Join(root, "binned"),
		Clusters:    filepath.Join(root, "clusters.json"),
		State:       filepath.Join(root, "state.json"),
		Log:         filepath.Join(root, "lrbinner.log"),
		Plot:        filepath.Join(root, "latent.png"),
	}
}

// File returns the path of name directly under the root.
func (l Layout) File(name string) string { return filepath.Join(l.Root, name) }

// Prepare creates the directories a run of mode needs. Unless resuming, artifacts
// of an earlier run are removed first; the marker_genes directory is external input
// and is kept. outputs lists extra file names under the root to clear.
func (l Layout) Prepare(mode string, resume bool, outputs ...string) error {
	if !resume {
		stale := []string{l.Profiles, l.Model, l.Fragments, l.Binned, l.Clusters, l.State, l.Log, l.Plot}
		for _, o := range outputs {
			stale = append(stale, l.File(o))
		}
		for _, p := range stale {
			if err := os.RemoveAll(p); err != nil {
				return errors.Wrapf(err, "remove earlier output %q", p)
			}
		}
	}
	dirs := []string{l.Root, l.Profiles}
	if mode == "contigs" {
		dirs = append(dirs, l.MarkerGenes, l.Fragments)
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return errors.Wrapf(err, "create %q", d)
		}
	}
	return nil
}
