package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/windoliver/ThreatWeaver/pkg/finding"
)

// versionDir is the reserved directory name holding a path's generations.
// Logical paths may not contain it.
const versionDir = ".versions"

// FSStore is a filesystem-backed Store. Each logical path maps to a
// directory holding one file per generation; writes go through a
// temporary file plus rename so a crash never leaves a torn generation.
//
// Safe for concurrent use within a process; concurrent writers in
// separate processes stay safe because generation names embed a
// nanosecond timestamp and writes never overwrite an existing name.
type FSStore struct {
	base string
	mu   sync.Mutex
	seq  uint64
}

var _ Store = (*FSStore)(nil)

// NewFSStore creates (if needed) and opens a store rooted at base.
func NewFSStore(base string) (*FSStore, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create store root: %v", finding.ErrUnavailable, err)
	}
	return &FSStore{base: base}, nil
}

// Base returns the store's root directory.
func (s *FSStore) Base() string { return s.base }

func (s *FSStore) dirFor(p string) (string, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	if strings.Contains(clean, versionDir) {
		return "", fmt.Errorf("%w: reserved path segment %q", finding.ErrConfiguration, versionDir)
	}
	return filepath.Join(s.base, filepath.FromSlash(clean), versionDir), nil
}

// Write stores data as a new generation of p.
func (s *FSStore) Write(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.dirFor(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", finding.ErrUnavailable, p, err)
	}

	// Timestamp plus per-process sequence keeps names unique even on
	// coarse clocks and across concurrent processes.
	s.seq++
	name := fmt.Sprintf("%020d-%06d", time.Now().UnixNano(), s.seq)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: temp file for %s: %v", finding.ErrUnavailable, p, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", finding.ErrUnavailable, p, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %v", finding.ErrUnavailable, p, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: publish %s: %v", finding.ErrUnavailable, p, err)
	}
	return nil
}

// Read returns the newest generation of p.
func (s *FSStore) Read(ctx context.Context, p string) ([]byte, error) {
	versions, err := s.Versions(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.ReadVersion(ctx, p, versions[len(versions)-1])
}

// ReadVersion returns one specific generation of p.
func (s *FSStore) ReadVersion(ctx context.Context, p, version string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.dirFor(p)
	if err != nil {
		return nil, err
	}
	if strings.ContainsAny(version, `/\`) {
		return nil, fmt.Errorf("%w: malformed version %q", finding.ErrConfiguration, version)
	}
	data, err := os.ReadFile(filepath.Join(dir, version))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s@%s", ErrNotFound, p, version)
		}
		return nil, fmt.Errorf("%w: read %s: %v", finding.ErrUnavailable, p, err)
	}
	return data, nil
}

// Versions returns the generation ids of p, oldest first.
func (s *FSStore) Versions(ctx context.Context, p string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.dirFor(p)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("%w: list versions of %s: %v", finding.ErrUnavailable, p, err)
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		versions = append(versions, e.Name())
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	sort.Strings(versions)
	return versions, nil
}

// List returns all logical paths under prefix, sorted.
func (s *FSStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := CleanPath(prefix)
	if err != nil {
		return nil, err
	}
	root := filepath.Join(s.base, filepath.FromSlash(clean))
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var paths []string
	err = filepath.WalkDir(root, func(fp string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == versionDir {
			rel, rerr := filepath.Rel(s.base, filepath.Dir(fp))
			if rerr != nil {
				return rerr
			}
			paths = append(paths, filepath.ToSlash(rel))
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", finding.ErrUnavailable, prefix, err)
	}
	sort.Strings(paths)
	return paths, nil
}
