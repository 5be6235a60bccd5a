package localstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mediabatch/internal/core/ports"
)

// LocalStorage implements ports.Storage for the local filesystem.
type LocalStorage struct {
	BaseDir string
	logger  *slog.Logger
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(baseDir string, logger *slog.Logger) *LocalStorage {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LocalStorage{BaseDir: baseDir, logger: logger}
}

// InitJob creates the job staging directory. The directory must not exist yet.
func (s *LocalStorage) InitJob(ctx context.Context, jobID string) (ports.StagingArea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return nil, fmt.Errorf("invalid job id %q", jobID)
	}
	if err := os.MkdirAll(s.jobsRoot(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging root %s: %w", s.jobsRoot(), err)
	}
	root := s.GetJobPath(jobID)
	if err := os.Mkdir(root, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create job directory %s: %w", root, err)
	}
	items := filepath.Join(root, "items")
	if err := os.Mkdir(items, 0o700); err != nil {
		_ = os.RemoveAll(root)
		return nil, fmt.Errorf("failed to create items directory %s: %w", items, err)
	}
	return &StagingArea{
		root:    root,
		dir:     items,
		archive: root + ".zip",
		files:   make(map[string]struct{}),
		logger:  s.logger.With(slog.String("job_id", jobID)),
	}, nil
}

// GetJobPath returns the path for a job directory.
func (s *LocalStorage) GetJobPath(jobID string) string {
	return filepath.Join(s.jobsRoot(), jobID)
}

func (s *LocalStorage) jobsRoot() string {
	return filepath.Join(s.BaseDir, "jobs")
}

// CleanStale removes job directories and archives older than maxAge, left
// behind by a process that died mid-job. It returns the removed paths.
func (s *LocalStorage) CleanStale(maxAge time.Duration) ([]string, error) {
	entries, err := os.ReadDir(s.jobsRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read staging root: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	var removed []string
	var errs []error
	for _, entry := range entries {
		path := filepath.Join(s.jobsRoot(), entry.Name())
		info, err := entry.Info()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("failed to remove stale staging entry",
				slog.String("path", path), slog.String("error", err.Error()))
			errs = append(errs, err)
			continue
		}
		s.logger.Info("removed stale staging entry",
			slog.String("path", path), slog.Duration("age", time.Since(info.ModTime())))
		removed = append(removed, path)
	}
	return removed, errors.Join(errs...)
}

// StagingArea is one job's scratch directory plus its archive path.
// Every file it creates is registered and removed by Close.
type StagingArea struct {
	root    string
	dir     string
	archive string
	logger  *slog.Logger

	mu     sync.Mutex
	files  map[string]struct{}
	closed bool
}

// Dir returns the directory holding staged item files.
func (a *StagingArea) Dir() string { return a.dir }

// ArchivePath returns the reserved archive location. It sits outside Dir.
func (a *StagingArea) ArchivePath() string { return a.archive }

// Create creates name inside Dir and registers it for cleanup.
func (a *StagingArea) Create(name string) (*os.File, error) {
	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid staged file name %q", name)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, fmt.Errorf("staging area %s is closed", a.root)
	}
	path := filepath.Join(a.dir, name)
	a.files[path] = struct{}{}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create staged file %s: %w", path, err)
	}
	return file, nil
}

// Discard removes one staged file.
func (a *StagingArea) Discard(path string) error {
	a.mu.Lock()
	delete(a.files, path)
	a.mu.Unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to discard %s: %w", path, err)
	}
	return nil
}

// Close removes every registered file, the directory tree and the archive.
// It is safe to call more than once.
func (a *StagingArea) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	files := make([]string, 0, len(a.files))
	for path := range a.files {
		files = append(files, path)
	}
	a.files = nil
	a.mu.Unlock()

	var errs []error
	for _, path := range files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(a.root); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(a.archive); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("staging cleanup failed", slog.String("path", a.root), slog.String("error", err.Error()))
		return err
	}
	return nil
}
