// Package profilestore persists per-sequence profile vectors so a resumed run can skip
// profiling.
//
// A store is a directory holding meta.json and profiles.bin. profiles.bin is a flat
// sequence of length-prefixed items (big-endian uint32 length, then payload); every
// entry is two items, the sequence id and the vector as big-endian float64 bits.
// meta.json is rewritten with complete=true only after every entry is flushed, so a
// killed profiling pass never looks finished.
package profilestore

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"lrbinner/internal/profile"
)

const (
	fileMeta = "meta.json"
	fileData = "profiles.bin"

	formatVersion = 1
)

var (
	// ErrConfigMismatch means the stored profiles were computed with different parameters.
	ErrConfigMismatch = errors.New("stored profiles were computed with a different configuration")
	// ErrDuplicateID is returned by Put for an id that was already written.
	ErrDuplicateID = errors.New("duplicate sequence id")
	// ErrIncomplete is returned by Open when the profiling pass never finished.
	ErrIncomplete = errors.New("profile store is incomplete")
)

// Meta describes a store.
type Meta struct {
	Version  int            `json:"version"`
	Params   profile.Params `json:"params"`
	Dim      int            `json:"dim"`
	Count    int            `json:"count"`
	Complete bool           `json:"complete"`
}

// Entry is one stored profile.
type Entry struct {
	ID     string
	Vector []float64
}

// Store is either a writer (from Create) or a reader (from Open).
type Store struct {
	dir  string
	meta Meta

	// Writing.
	mu          sync.Mutex
	seen        map[string]struct{}
	file        *os.File
	buf         *bufio.Writer
	entryChan   chan Entry
	writingDone chan error

	// Reading.
	readOnce sync.Once
	entries  []Entry
	readErr  error
}

// Exists reports whether dir holds a completed store.
func Exists(dir string) bool {
	m, err := ReadMeta(dir)
	return err == nil && m.Complete
}

// ReadMeta loads dir/meta.json.
func ReadMeta(dir string) (Meta, error) {
	var m Meta
	data, err := os.ReadFile(filepath.Join(dir, fileMeta))
	if err != nil {
		return m, errors.Wrap(err, "read profile store meta")
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, errors.Wrap(err, "decode profile store meta")
	}
	return m, nil
}

// Create starts a new store in dir, truncating any previous contents.
//
// When you're finished adding entries, you must call Close.
func Create(dir string, params profile.Params, dim int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create profile store %q", dir)
	}
	s := &Store{
		dir:         dir,
		meta:        Meta{Version: formatVersion, Params: params, Dim: dim},
		seen:        make(map[string]struct{}),
		entryChan:   make(chan Entry, 64),
		writingDone: make(chan error, 1),
	}
	// An incomplete meta first: a crash from here on leaves a store Exists rejects.
	if err := s.writeMeta(); err != nil {
		return nil, err
	}
	f, err := os.Create(filepath.Join(dir, fileData))
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", fileData)
	}
	s.file = f
	s.buf = bufio.NewWriterSize(f, 1<<20)

	// A single goroutine owns the file; Put only hands entries over.
	go func() {
		var werr error
		for e := range s.entryChan {
			if werr != nil {
				continue
			}
			werr = s.write(e)
		}
		s.writingDone <- werr
	}()
	return s, nil
}

// Put queues one profile for writing. It is safe to call from multiple goroutines;
// entries are stored in the order Put is called.
func (s *Store) Put(id string, vec []float64) error {
	if s.entryChan == nil {
		return errors.New("profile store opened read-only")
	}
	if len(vec) != s.meta.Dim {
		return errors.Errorf("profile %q has dimension %d, store expects %d", id, len(vec), s.meta.Dim)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[id]; dup {
		return errors.Wrapf(ErrDuplicateID, "%q", id)
	}
	s.seen[id] = struct{}{}
	s.meta.Count++
	s.entryChan <- Entry{ID: id, Vector: vec}
	return nil
}

// Close flushes all entries and marks the store complete.
func (s *Store) Close() error {
	if s.entryChan == nil {
		return nil
	}
	close(s.entryChan)
	werr := <-s.writingDone
	s.entryChan = nil
	if werr == nil {
		werr = s.buf.Flush()
	}
	if werr == nil {
		werr = s.file.Sync()
	}
	if cerr := s.file.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return errors.Wrapf(werr, "write %s", fileData)
	}
	s.meta.Complete = true
	return s.writeMeta()
}

// Abort stops writing and leaves the store incomplete.
func (s *Store) Abort() error {
	if s.entryChan == nil {
		return nil
	}
	close(s.entryChan)
	<-s.writingDone
	s.entryChan = nil
	return s.file.Close()
}

// Open opens a completed store for reading and checks its parameters.
func Open(dir string, params profile.Params) (*Store, error) {
	m, err := ReadMeta(dir)
	if err != nil {
		return nil, err
	}
	if m.Params != params {
		return nil, errors.Wrapf(ErrConfigMismatch, "stored %s, requested %s", m.Params, params)
	}
	if !m.Complete {
		return nil, errors.Wrapf(ErrIncomplete, "%q", dir)
	}
	return &Store{dir: dir, meta: m}, nil
}

// Meta returns the store description.
func (s *Store) Meta() Meta { return s.meta }

// Len returns the number of entries.
func (s *Store) Len() int { return s.meta.Count }

// GetAll reads every entry in write order. Entries are read from disk once.
func (s *Store) GetAll() ([]Entry, error) {
	if s.entryChan != nil {
		return nil, errors.New("profile store is still being written")
	}
	s.readOnce.Do(func() {
		s.entries, s.readErr = s.readAll()
	})
	return s.entries, s.readErr
}

func (s *Store) readAll() ([]Entry, error) {
	f, err := os.Open(filepath.Join(s.dir, fileData))
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", fileData)
	}
	defer f.Close()
	r := bufio.NewReaderSize(f, 1<<20)

	entries := make([]Entry, 0, s.meta.Count)
	pool := make([]float64, s.meta.Count*s.meta.Dim)
	var item []byte
	for {
		if item, err = readItem(r, item); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		id := string(item)
		if item, err = readItem(r, item); err != nil {
			return nil, errors.Wrapf(err, "vector for %q", id)
		}
		if len(item) != 8*s.meta.Dim {
			return nil, errors.Errorf("vector for %q has %d bytes, expected %d", id, len(item), 8*s.meta.Dim)
		}
		var vec []float64
		if len(pool) >= s.meta.Dim {
			vec, pool = pool[:s.meta.Dim:s.meta.Dim], pool[s.meta.Dim:]
		} else {
			vec = make([]float64, s.meta.Dim)
		}
		for i := range vec {
			vec[i] = math.Float64frombits(binary.BigEndian.Uint64(item[8*i:]))
		}
		entries = append(entries, Entry{ID: id, Vector: vec})
	}
	if len(entries) != s.meta.Count {
		return nil, errors.Errorf("profile store holds %d entries, meta says %d", len(entries), s.meta.Count)
	}
	return entries, nil
}

func (s *Store) write(e Entry) error {
	if err := writeItem(s.buf, []byte(e.ID)); err != nil {
		return err
	}
	payload := make([]byte, 8*len(e.Vector))
	for i, x := range e.Vector {
		binary.BigEndian.PutUint64(payload[8*i:], math.Float64bits(x))
	}
	return writeItem(s.buf, payload)
}

func (s *Store) writeMeta() error {
	data, err := json.MarshalIndent(s.meta, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode profile store meta")
	}
	tmp := filepath.Join(s.dir, fileMeta+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write profile store meta")
	}
	return errors.Wrap(os.Rename(tmp, filepath.Join(s.dir, fileMeta)), "commit profile store meta")
}

func writeItem(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "write item size")
	}
	if _, err := w.Write(payload); err != nil {
		return errors.Wrap(err, "write item")
	}
	return nil
}

// readItem reads one length-prefixed item into buf (grown as needed).
// A clean end of file before the length prefix returns io.EOF.
func readItem(r io.Reader, buf []byte) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err == io.EOF {
		return nil, io.EOF
	} else if err != nil {
		return nil, errors.Wrap(err, "read item size")
	}
	n := int(binary.BigEndian.Uint32(hdr[:]))
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrapf(err, "expected item with length %d", n)
	}
	return buf, nil
}
