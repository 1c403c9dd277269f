package ledger

import (
	"context"
	"fmt"
	"sync"

	apperrors "familybudget/internal/errors"
)

// UserLocks serializes aggregate updates per user. Entries are
// reference-counted and dropped once nobody holds or waits for them.
type UserLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	sem  chan struct{}
	refs int
}

func NewUserLocks() *UserLocks {
	return &UserLocks{locks: make(map[string]*userLock)}
}

// Lock blocks until the lock for userID is held or ctx is done. A ctx that
// ends first yields a CONCURRENCY error. The returned unlock is safe to
// call more than once.
func (l *UserLocks) Lock(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{sem: make(chan struct{}, 1)}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	select {
	case ul.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-ul.sem
				l.release(userID, ul)
			})
		}, nil
	case <-ctx.Done():
		l.release(userID, ul)
		return nil, apperrors.Concurrency(fmt.Errorf("wait for lock of user %s: %w", userID, ctx.Err()))
	}
}

func (l *UserLocks) release(userID string, ul *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ul.refs--
	if ul.refs == 0 {
		delete(l.locks, userID)
	}
}

// Len returns the number of users with a held or awaited lock.
func (l *UserLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
