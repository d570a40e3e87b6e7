package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ProjectLock serializes orchestrator processes per project directory:
// at most one runner mutates a project's tasks at a time.
type ProjectLock struct {
	flock *flock.Flock
	path  string
}

// AcquireProjectLock takes the project lock without blocking. A held
// lock means another drover process is already running this project.
func AcquireProjectLock(projectRoot string) (*ProjectLock, error) {
	dir := filepath.Join(projectRoot, ".drover")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create .drover dir: %w", err)
	}

	path := filepath.Join(dir, "run.lock")
	fl := flock.New(path)
	acquired, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire project lock %s: %w", path, err)
	}
	if !acquired {
		return nil, fmt.Errorf("project %s is locked by another drover process", projectRoot)
	}
	return &ProjectLock{flock: fl, path: path}, nil
}

// Release drops the lock.
func (l *ProjectLock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release project lock %s: %w", l.path, err)
	}
	return nil
}
