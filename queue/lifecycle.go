package queue

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	qerrors "github.com/fluxorio/flowqueue/internal/errors"
	"github.com/fluxorio/flowqueue/internal/segment"
	"github.com/fluxorio/flowqueue/internal/sysvsem"
)

// CleanupAll removes a queue's semaphore set, lock file, and every segment
// file under dir (spec §4.8 Cleanup). It requires exclusive access the
// same way a Publisher.Open does: if another publisher currently holds
// dir's lock, CleanupAll fails with AlreadyOpen rather than racing it.
func CleanupAll(dir string) error {
	lockPath := filepath.Join(dir, lockFileName)

	sem, err := sysvsem.Open(lockPath, sysvsem.DefaultThrottle, zerolog.Nop())
	if err != nil {
		return err
	}
	if err := sem.CleanupAll(); err != nil {
		return err
	}

	sd := segment.Dir{Path: dir}
	names, err := sd.List()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return qerrors.Wrap(qerrors.IoFailed, "queue.CleanupAll", "remove segment "+name, err)
		}
	}
	return nil
}
