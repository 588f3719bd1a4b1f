package session

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"delegate/internal/services"
)

// LockTurn takes the per-session file lock guarding one in-flight turn.
// Concurrent sends against the same session id are rejected rather than
// queued: the second caller fails fast instead of racing the first at the
// transcript and metadata level. The returned release function must be called
// once the turn ends.
func (s *Store) LockTurn(id string) (func(), error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	lock := flock.New(s.lockPath(id))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock session %s: %w", id, err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrValidation, "session", "lock",
			fmt.Sprintf("session %q already has a turn in flight", id), nil)
	}
	return func() { _ = lock.Unlock() }, nil
}

func (s *Store) lockPath(id string) string {
	return filepath.Join(s.dir, id+".lock")
}
