// Package memory is a process-local implementation of the repository
// interfaces. It keeps the locking contract of the PostgreSQL store: row
// locks are exclusive and held until the unit of work ends, and an
// idempotency key insert waits for a concurrent insert of the same key.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Xausdorf/vaultpay/internal/domain/entity"
	"github.com/Xausdorf/vaultpay/internal/domain/repository"
)

type idemKey struct {
	accountID uuid.UUID
	key       string
}

type Store struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]*entity.Account
	transactions []*entity.Transaction
	idempotency  map[idemKey]*entity.IdempotencyRecord

	rows        *lockTable[uuid.UUID]
	keys        *lockTable[idemKey]
	lockTimeout time.Duration
}

type Option func(*Store)

// WithLockTimeout bounds how long a unit of work waits for a lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.lockTimeout = d
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		accounts:    make(map[uuid.UUID]*entity.Account),
		idempotency: make(map[idemKey]*entity.IdempotencyRecord),
		rows:        newLockTable[uuid.UUID](),
		keys:        newLockTable[idemKey](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) acquireRow(ctx context.Context, id uuid.UUID) error {
	return s.rows.acquire(ctx, id, s.lockTimeout)
}

func (s *Store) acquireKey(ctx context.Context, k idemKey) error {
	return s.keys.acquire(ctx, k, s.lockTimeout)
}

// lockTable hands out one exclusive lock per key. A lock is a buffered
// channel of capacity one so that waiting can be abandoned on ctx. An entry
// lives only while someone holds or waits for it.
type lockTable[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

func newLockTable[K comparable]() *lockTable[K] {
	return &lockTable[K]{locks: make(map[K]*lockEntry)}
}

func (t *lockTable[K]) ref(k K) *lockEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.locks[k]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		t.locks[k] = e
	}
	e.refs++
	return e
}

func (t *lockTable[K]) unref(k K, e *lockEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(t.locks, k)
	}
}

func (t *lockTable[K]) acquire(ctx context.Context, k K, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	e := t.ref(k)
	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		t.unref(k, e)
		return fmt.Errorf("%w: lock wait: %w", repository.ErrTransient, ctx.Err())
	}
}

// release must follow a successful acquire of k; the holder's reference keeps
// the entry in the table until then.
func (t *lockTable[K]) release(k K) {
	t.mu.Lock()
	e := t.locks[k]
	t.mu.Unlock()

	<-e.ch
	t.unref(k, e)
}

func (t *lockTable[K]) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
