package repositories

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

const attemptStoreShards = 32

// AttemptEntry is the per-identifier rate limit state held by the store
type AttemptEntry struct {
	Record *models.AttemptRecord
	Lock   *models.LockEntry
}

type attemptShard struct {
	mu      sync.Mutex
	entries map[string]*AttemptEntry
}

// AttemptStore is an in-memory, sharded map of attempt records and locks.
// Every read-modify-write for one identifier runs under that identifier's
// shard lock, so concurrent failures cannot lose updates.
type AttemptStore struct {
	shards [attemptStoreShards]*attemptShard
}

// NewAttemptStore creates an empty AttemptStore
func NewAttemptStore() *AttemptStore {
	s := &AttemptStore{}
	for i := range s.shards {
		s.shards[i] = &attemptShard{entries: make(map[string]*AttemptEntry)}
	}
	return s
}

func (s *AttemptStore) shardFor(identifier string) *attemptShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identifier))
	return s.shards[h.Sum32()%attemptStoreShards]
}

// Update runs fn with the identifier's entry under its shard lock. fn receives
// an empty entry when the identifier is unknown; the entry is removed again if
// fn leaves both the record and the lock nil.
func (s *AttemptStore) Update(identifier string, fn func(entry *AttemptEntry)) {
	shard := s.shardFor(identifier)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.entries[identifier]
	if !ok {
		entry = &AttemptEntry{}
	}

	fn(entry)

	if entry.Record == nil && entry.Lock == nil {
		delete(shard.entries, identifier)
		return
	}
	shard.entries[identifier] = entry
}

// Get returns copies of the identifier's record and lock. Absence is not an error.
func (s *AttemptStore) Get(identifier string) (*models.AttemptRecord, *models.LockEntry) {
	shard := s.shardFor(identifier)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.entries[identifier]
	if !ok {
		return nil, nil
	}
	return copyRecord(entry.Record), copyLock(entry.Lock)
}

// Delete removes every trace of the identifier and reports whether anything existed
func (s *AttemptStore) Delete(identifier string) bool {
	shard := s.shardFor(identifier)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	_, ok := shard.entries[identifier]
	delete(shard.entries, identifier)
	return ok
}

// Locks returns a snapshot of the locks still active at now
func (s *AttemptStore) Locks(now time.Time) []models.LockEntry {
	locks := make([]models.LockEntry, 0)
	for _, shard := range s.shards {
		shard.mu.Lock()
		for _, entry := range shard.entries {
			if entry.Lock != nil && entry.Lock.Active(now) {
				locks = append(locks, *entry.Lock)
			}
		}
		shard.mu.Unlock()
	}
	return locks
}

// Prune lets fn rewrite or drop each entry, one shard at a time, and returns
// how many identifiers were removed.
func (s *AttemptStore) Prune(fn func(identifier string, entry *AttemptEntry)) int {
	removed := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		for identifier, entry := range shard.entries {
			fn(identifier, entry)
			if entry.Record == nil && entry.Lock == nil {
				delete(shard.entries, identifier)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked identifiers
func (s *AttemptStore) Len() int {
	n := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		n += len(shard.entries)
		shard.mu.Unlock()
	}
	return n
}

func copyRecord(r *models.AttemptRecord) *models.AttemptRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.LockUntil != nil {
		until := *r.LockUntil
		c.LockUntil = &until
	}
	return &c
}

func copyLock(l *models.LockEntry) *models.LockEntry {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}
