// Package lockfile wraps gofrs/flock for the per-thread append lock
// that serializes sequence assignment (spec §4.5). Hand-mode
// exclusivity (spec §4.8) does not use it: the peasant package enforces
// that by probing the pids of recorded hand-* sessions.
package lockfile

import (
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/jbohnslav/kingdom/internal/kderrors"
)

// Lock is a held advisory file lock. Release unlocks and closes it.
type Lock struct {
	fl *flock.Flock
}

// Acquire blocks until it obtains an exclusive lock on a lockfile named
// ".lock" inside dir. dir must already exist; Acquire does not create it.
func Acquire(dir string) (*Lock, error) {
	path := filepath.Join(dir, ".lock")
	fl := flock.New(path)
	if err := fl.Lock(); err != nil {
		return nil, kderrors.Wrap(kderrors.IO, err, "acquire lock %s", path)
	}
	return &Lock{fl: fl}, nil
}

// Release unlocks the lock. Safe to call once; callers typically defer it.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
