package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/windoliver/ThreatWeaver/pkg/duration"
	"github.com/windoliver/ThreatWeaver/pkg/finding"
)

// LocalProvider runs tools as host subprocesses, each confined to a
// per-invocation scratch directory with a scrubbed environment. It is
// the development and CI provider; production deployments substitute a
// container-backed Provider through the same interface.
type LocalProvider struct {
	baseDir string
	grace   time.Duration
	logger  *slog.Logger
}

var _ Provider = (*LocalProvider)(nil)

// NewLocalProvider creates a provider whose scratch directories live
// under baseDir (the system temp dir when empty).
func NewLocalProvider(baseDir string, logger *slog.Logger) *LocalProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalProvider{baseDir: baseDir, grace: duration.TeardownGrace, logger: logger}
}

// Create makes a scratch directory and returns a box over it. The
// image in spec is advisory here: the host must already have the tool
// on PATH.
func (p *LocalProvider) Create(_ context.Context, spec Spec) (Box, error) {
	dir, err := os.MkdirTemp(p.baseDir, "box-")
	if err != nil {
		return nil, fmt.Errorf("%w: scratch dir: %v", finding.ErrUnavailable, err)
	}
	return &localBox{
		id:     filepath.Base(dir),
		dir:    dir,
		env:    scrubEnv(spec.Env),
		grace:  p.grace,
		logger: p.logger,
	}, nil
}

// scrubEnv builds the complete child environment: the declared
// variables plus PATH so the executable resolves. Nothing else from the
// host leaks in.
func scrubEnv(declared map[string]string) []string {
	env := make([]string, 0, len(declared)+1)
	for k, v := range declared {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	if _, ok := declared["PATH"]; !ok {
		env = append(env, "PATH="+os.Getenv("PATH"))
	}
	return env
}

type localBox struct {
	id     string
	dir    string
	env    []string
	grace  time.Duration
	logger *slog.Logger

	mu        sync.Mutex
	proc      *os.Process
	destroyed bool
}

func (b *localBox) ID() string { return b.id }

func (b *localBox) Run(ctx context.Context, cmd []string, stdout, stderr io.Writer) (int, error) {
	if len(cmd) == 0 {
		return -1, fmt.Errorf("%w: empty command", finding.ErrConfiguration)
	}
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return -1, fmt.Errorf("%w: box %s destroyed", finding.ErrUnavailable, b.id)
	}
	c := exec.Command(cmd[0], cmd[1:]...)
	c.Dir = b.dir
	c.Env = b.env
	c.Stdout = stdout
	c.Stderr = stderr
	// Own process group so teardown reaches grandchildren too.
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := c.Start(); err != nil {
		b.mu.Unlock()
		return -1, fmt.Errorf("start %s: %w", cmd[0], err)
	}
	b.proc = c.Process
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			b.killGroup()
		case <-done:
		}
	}()

	err := c.Wait()
	close(done)

	b.mu.Lock()
	b.proc = nil
	b.mu.Unlock()

	if err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			if ctx.Err() != nil {
				return exit.ExitCode(), fmt.Errorf("%s terminated: %w", cmd[0], ctx.Err())
			}
			return exit.ExitCode(), nil
		}
		return -1, fmt.Errorf("wait %s: %w", cmd[0], err)
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	return 0, nil
}

// killGroup terminates the process group: SIGTERM, a grace period,
// then SIGKILL.
func (b *localBox) killGroup() {
	b.mu.Lock()
	proc := b.proc
	b.mu.Unlock()
	if proc == nil {
		return
	}
	pgid := -proc.Pid
	_ = syscall.Kill(pgid, syscall.SIGTERM)

	deadline := time.After(b.grace)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			_ = syscall.Kill(pgid, syscall.SIGKILL)
			return
		case <-tick.C:
			// Signal 0 probes for liveness.
			if syscall.Kill(pgid, 0) != nil {
				return
			}
		}
	}
}

func (b *localBox) path(rel string) (string, error) {
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: path %q escapes the box", finding.ErrConfiguration, rel)
	}
	return filepath.Join(b.dir, rel), nil
}

func (b *localBox) ReadFile(_ context.Context, rel string) ([]byte, error) {
	p, err := b.path(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

func (b *localBox) WriteFile(_ context.Context, rel string, data []byte) error {
	p, err := b.path(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("%w: stage dir: %v", finding.ErrUnavailable, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("%w: stage file: %v", finding.ErrUnavailable, err)
	}
	return nil
}

func (b *localBox) Destroy(_ context.Context) error {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return nil
	}
	b.destroyed = true
	b.mu.Unlock()

	b.killGroup()
	if err := os.RemoveAll(b.dir); err != nil {
		return fmt.Errorf("remove scratch dir %s: %w", b.dir, err)
	}
	b.logger.Debug("box destroyed", "box", b.id)
	return nil
}
