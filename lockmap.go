package bridge

import (
	"fmt"
	"sync"
)

// Lockable hands out per-key critical sections.
type Lockable interface {
	// Do runs fn while holding the exclusive lock for key, creating the
	// lock on first reference. The lock is released when fn returns, on
	// every path.
	Do(key string, fn func() error) error
}

// LockMapper maps keys to mutexes, created lazily and kept for the mapper's
// lifetime. The key set only grows, so an unbounded key space keeps its lock
// entries around for as long as the mapper lives. Locks are not re-entrant:
// calling Do for a key from inside that key's fn deadlocks.
type LockMapper struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ Lockable = (*LockMapper)(nil)

func NewLockMapper() *LockMapper {
	return &LockMapper{locks: make(map[string]*sync.Mutex)}
}

// Do runs fn under key's lock. Distinct keys never contend.
func (m *LockMapper) Do(key string, fn func() error) error {
	lock := m.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

func (m *LockMapper) lockFor(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}

// Locked wraps action so that every invocation of the returned function runs
// under key's lock on l. Two invocations sharing a key never overlap;
// invocations under distinct keys run independently. An action failure is
// wrapped in ErrLockActionFailed and returned; the lock is released
// regardless, including on panic unwind. No timeout is applied, so an action
// that never returns stalls every caller sharing its key.
func Locked[I, R any](l Lockable, key string, action func(I) (R, error)) func(I) (R, error) {
	return func(input I) (R, error) {
		var out R
		err := l.Do(key, func() error {
			v, err := action(input)
			if err != nil {
				return err
			}
			out = v
			return nil
		})
		if err != nil {
			var zero R
			return zero, fmt.Errorf("%w: key %q: %w", ErrLockActionFailed, key, err)
		}
		return out, nil
	}
}
