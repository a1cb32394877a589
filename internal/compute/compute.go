// Package compute provides the matrix backends the latent encoder runs on.
//
// Backends register a constructor under a name, the way plugin tables do; the run
// queries capability once and picks the accelerated backend when it is usable,
// degrading to the default one otherwise.
package compute

import (
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Backend multiplies matrices. Implementations must be safe for sequential reuse;
// the encoder never calls a backend from more than one goroutine.
type Backend interface {
	Name() string
	// Mul returns a·b as a new matrix.
	Mul(a, b mat.Matrix) *mat.Dense
}

// Constructor builds a backend for a thread budget. It returns an error if the
// backend cannot run on this host.
type Constructor func(threads int) (Backend, error)

const (
	Default     = "default"
	Accelerated = "accelerated"

	// EnvBackend overrides backend selection by name.
	EnvBackend = "LRBINNER_BACKEND"
)

var (
	registryMu sync.Mutex
	registry   = map[string]Constructor{}

	// ErrUnknownBackend is returned by New for names not in the registry.
	ErrUnknownBackend = errors.New("unknown compute backend")
	// ErrUnavailable is returned by constructors whose backend cannot run here.
	ErrUnavailable = errors.New("compute backend unavailable")
)

// Register makes a backend constructor available under name. Registering a name
// twice replaces the earlier constructor.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

// List returns the registered backend names, sorted.
func List() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New constructs the named backend.
func New(name string, threads int) (Backend, error) {
	registryMu.Lock()
	ctor, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownBackend, "%q (known: %v)", name, List())
	}
	return ctor(threads)
}

// Selection is the outcome of Select.
type Selection struct {
	Backend  Backend
	Degraded bool   // accelerated was requested but unavailable
	Reason   string // why the selection degraded or was overridden
}

// Select picks a backend. When wantAccelerated is set and the accelerated backend
// cannot run, it falls back to the default backend and reports Degraded. A non-empty
// EnvBackend variable names the backend to use instead.
func Select(wantAccelerated bool, threads int) (Selection, error) {
	if name := os.Getenv(EnvBackend); name != "" {
		b, err := New(name, threads)
		if err != nil {
			return Selection{}, err
		}
		return Selection{Backend: b, Reason: EnvBackend + "=" + name}, nil
	}
	if wantAccelerated {
		b, err := New(Accelerated, threads)
		if err == nil {
			return Selection{Backend: b}, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return Selection{}, err
		}
		d, derr := New(Default, threads)
		if derr != nil {
			return Selection{}, derr
		}
		return Selection{Backend: d, Degraded: true, Reason: err.Error()}, nil
	}
	b, err := New(Default, threads)
	return Selection{Backend: b}, err
}

// usableCPUs is swapped in tests.
var usableCPUs = runtime.NumCPU

// Available reports whether the accelerated backend can run with threads.
func Available(threads int) bool {
	return threads > 1 && usableCPUs() > 1
}

func init() {
	Register(Default, func(int) (Backend, error) { return serial{}, nil })
	Register(Accelerated, func(threads int) (Backend, error) {
		if !Available(threads) {
			return nil, errors.Wrapf(ErrUnavailable, "%s needs more than one thread and CPU (threads=%d, cpus=%d)",
				Accelerated, threads, usableCPUs())
		}
		return newParallel(threads), nil
	})
}

type serial struct{}

func (serial) Name() string { return Default }

func (serial) Mul(a, b mat.Matrix) *mat.Dense {
	r, _ := a.Dims()
	_, c := b.Dims()
	out := mat.NewDense(r, c, nil)
	out.Mul(a, b)
	return out
}
