package lock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
)

// Locker serializes work on a key. Acquire blocks until the lock is held or
// ctx is done; the returned release is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// --- MemoryLocker ---

// MemoryLocker is a keyed mutex for single-process deployments and tests.
// Entries are dropped once nobody holds or waits for them.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*memoryEntry
}

type memoryEntry struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*memoryEntry)}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &memoryEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, entry)
		return nil, fmt.Errorf("acquire lock for %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			l.unref(key, entry)
		})
	}, nil
}

func (l *MemoryLocker) unref(key string, entry *memoryEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}

// --- PGAdvisoryLocker ---

// PGAdvisoryLocker uses pg_advisory_lock so that every process sharing the
// database serializes on the same key. The key is hashed to int64.
type PGAdvisoryLocker struct {
	db *sql.DB
}

func NewPGAdvisoryLocker(db *sql.DB) *PGAdvisoryLocker {
	return &PGAdvisoryLocker{db: db}
}

func (l *PGAdvisoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lockID := hashToInt64(key)

	// The advisory lock belongs to the session, so hold one connection.
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection for %s: %w", key, err)
	}
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		conn.Close()
		return nil, fmt.Errorf("acquire lock for %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", lockID)
			conn.Close()
		})
	}, nil
}

func hashToInt64(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}
