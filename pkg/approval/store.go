package approval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/windoliver/ThreatWeaver/pkg/finding"
	"github.com/windoliver/ThreatWeaver/pkg/jsonutil"
)

// Store is the durable backing for approval records. Implementations
// must make Transition atomic: exactly one caller wins the single
// transition out of pending, concurrent callers get ErrAlreadyDecided.
type Store interface {
	Put(ctx context.Context, r Request) error
	Get(ctx context.Context, id string) (Request, error)
	List(ctx context.Context, status Status) ([]Request, error)

	// Transition applies mutate to the record iff its status is still
	// pending, persists the result, and returns it. mutate must set a
	// terminal status.
	Transition(ctx context.Context, id string, mutate func(*Request)) (Request, error)
}

// ErrNotFound reports an unknown request id.
var ErrNotFound = fmt.Errorf("approval: request not found")

// FileStore keeps one JSON document per request under a directory,
// published with a temp-file rename so a crash never leaves a torn
// record. A process-wide mutex serializes transitions, which combined
// with the pending check gives the exactly-once guarantee.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates (if needed) and opens a store at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: approval store: %v", finding.ErrUnavailable, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) write(r Request) error {
	data, err := jsonutil.MarshalIndent(r, "  ")
	if err != nil {
		return fmt.Errorf("approval: encode %s: %w", r.ID, err)
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: approval write: %v", finding.ErrUnavailable, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("%w: approval write: %v", finding.ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("%w: approval write: %v", finding.ErrUnavailable, err)
	}
	if err := os.Rename(name, s.path(r.ID)); err != nil {
		os.Remove(name)
		return fmt.Errorf("%w: approval publish: %v", finding.ErrUnavailable, err)
	}
	return nil
}

func (s *FileStore) read(id string) (Request, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Request{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Request{}, fmt.Errorf("%w: approval read: %v", finding.ErrUnavailable, err)
	}
	var r Request
	if err := jsonutil.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("approval: decode %s: %w", id, err)
	}
	return r, nil
}

// Put persists a new record.
func (s *FileStore) Put(ctx context.Context, r Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(r)
}

// Get returns the record for id.
func (s *FileStore) Get(ctx context.Context, id string) (Request, error) {
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

// List returns records, newest first, optionally filtered by status
// (empty status means all).
func (s *FileStore) List(ctx context.Context, status Status) ([]Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: approval list: %v", finding.ErrUnavailable, err)
	}
	var out []Request
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		r, err := s.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

// Transition applies the single transition out of pending.
func (s *FileStore) Transition(ctx context.Context, id string, mutate func(*Request)) (Request, error) {
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.read(id)
	if err != nil {
		return Request{}, err
	}
	if r.Status != StatusPending {
		return r, fmt.Errorf("%w: %s is %s", finding.ErrAlreadyDecided, id, r.Status)
	}
	mutate(&r)
	if !r.Status.Terminal() {
		return Request{}, fmt.Errorf("approval: transition for %s did not set a terminal status", id)
	}
	if r.DecidedAt.IsZero() {
		r.DecidedAt = time.Now().UTC()
	}
	if err := s.write(r); err != nil {
		return Request{}, err
	}
	return r, nil
}
