// Package runstate records which pipeline stages of a run have completed, so an
// interrupted run can resume where it stopped.
package runstate

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"lrbinner/internal/jsonutil"
)

// Stage is a pipeline step. Stages complete in increasing order.
type Stage int

const (
	None Stage = iota
	Profiled
	Trained
	Clustered
	Assigned
)

var stageNames = [...]string{"none", "profiled", "trained", "clustered", "assigned"}

func (s Stage) String() string {
	if s < None || s > Assigned {
		return "unknown"
	}
	return stageNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(b []byte) error {
	for i, n := range stageNames {
		if n == string(b) {
			*s = Stage(i)
			return nil
		}
	}
	return errors.Errorf("unknown stage %q", b)
}

// State is the persisted progress of a run.
type State struct {
	RunID        string           `json:"run_id"`
	Mode         string           `json:"mode"`
	Stage        Stage            `json:"stage"`
	Fingerprints map[Stage]string `json:"fingerprints"`
	Updated      time.Time        `json:"updated"`

	path string
}

// New returns a fresh state that will be saved at path.
func New(path, mode string) *State {
	return &State{
		RunID:        uuid.NewString(),
		Mode:         mode,
		Fingerprints: map[Stage]string{},
		path:         path,
	}
}

// Load reads the state at path. A missing file yields a fresh state.
func Load(path, mode string) (*State, error) {
	s := &State{}
	if err := jsonutil.ReadFile(path, s); errors.Is(err, os.ErrNotExist) {
		return New(path, mode), nil
	} else if err != nil {
		return nil, errors.Wrap(err, "read run state")
	}
	if s.Mode != mode {
		return nil, errors.Errorf("run state %q belongs to a %s run, not %s", path, s.Mode, mode)
	}
	if s.Fingerprints == nil {
		s.Fingerprints = map[Stage]string{}
	}
	if s.RunID == "" {
		s.RunID = uuid.NewString()
	}
	s.path = path
	return s, nil
}

// Done reports whether stage completed with the same fingerprint.
func (s *State) Done(stage Stage, fingerprint string) bool {
	return s.Stage >= stage && s.Fingerprints[stage] == fingerprint
}

// Fingerprint returns the fingerprint stage completed with, if it has.
func (s *State) Fingerprint(stage Stage) (string, bool) {
	fp, ok := s.Fingerprints[stage]
	return fp, ok && s.Stage >= stage
}

// Complete records stage as the latest completed one. Later stages are forgotten,
// since they were derived from an earlier version of this one.
func (s *State) Complete(stage Stage, fingerprint string) {
	for st := range s.Fingerprints {
		if st > stage {
			delete(s.Fingerprints, st)
		}
	}
	s.Fingerprints[stage] = fingerprint
	s.Stage = stage
	s.Updated = time.Now().UTC()
}

// Path is where Save writes.
func (s *State) Path() string { return s.path }

// Save writes the state atomically.
func (s *State) Save() error {
	return errors.Wrap(jsonutil.WriteFile(s.path, s), "save run state")
}
