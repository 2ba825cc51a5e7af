package querycache

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hazelgrove/moodsync/internal/logging"
)

// Key identifies a query: a scope plus its arguments, e.g.
// {Scope: "mood_logs", Args: ["user-1"]}.
type Key struct {
	Scope string
	Args  []string
}

func (key Key) String() string {
	if len(key.Args) == 0 {
		return key.Scope
	}
	return key.Scope + "|" + strings.Join(key.Args, "|")
}

type entryStatus string

const (
	statusSuccess entryStatus = "success"
	statusError   entryStatus = "error"
)

type entry struct {
	Status    entryStatus
	UpdatedAt time.Time
	Data      json.RawMessage
}

type persistedEntry struct {
	Key       string          `json:"key"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type persistedSnapshot struct {
	Version int              `json:"version"`
	Entries []persistedEntry `json:"entries"`
}

const snapshotVersion = 1

// SnapshotStore persists the serialized cache across process restarts.
type SnapshotStore interface {
	QueryCacheSnapshot() []byte
	SaveQueryCacheSnapshot(blob []byte)
}

// FetchFunc re-runs a live query; implementations are expected to write their
// result back into the cache.
type FetchFunc func(ctx context.Context) error

// Cache is a generic request/response cache keyed by query identity, made
// durable by writing a whole-blob snapshot of its successful entries to the
// snapshot store on every mutation and on backgrounding. It has no eviction
// policy beyond time-based staleness.
type Cache struct {
	store  SnapshotStore
	ttl    time.Duration
	logger *logging.Logger
	clock  func() time.Time

	mu       sync.Mutex
	entries  map[string]entry
	fetchers map[string]FetchFunc
}

func New(store SnapshotStore, ttl time.Duration, logger *logging.Logger) *Cache {
	return &Cache{
		store:    store,
		ttl:      ttl,
		logger:   logger,
		clock:    time.Now,
		entries:  make(map[string]entry),
		fetchers: make(map[string]FetchFunc),
	}
}

// Restore loads the persisted snapshot, installing each entry only when no
// fresher live entry already exists for its key: stale persisted data never
// overwrites live data.
func (cache *Cache) Restore() {
	blob := cache.store.QueryCacheSnapshot()
	if len(blob) == 0 {
		return
	}

	snapshot := persistedSnapshot{}
	if err := json.Unmarshal(blob, &snapshot); err != nil {
		cache.logger.Warn("persisted query cache unreadable, ignoring", "error", err)
		return
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()

	restored := 0
	for _, persisted := range snapshot.Entries {
		if live, exists := cache.entries[persisted.Key]; exists && !live.UpdatedAt.Before(persisted.Timestamp) {
			continue
		}
		cache.entries[persisted.Key] = entry{
			Status:    statusSuccess,
			UpdatedAt: persisted.Timestamp,
			Data:      persisted.Data,
		}
		restored++
	}
	cache.logger.Debug("query cache restored", "entries", restored)
}

// Set records a successful result and persists the snapshot.
func (cache *Cache) Set(key Key, data json.RawMessage) {
	cache.mu.Lock()
	cache.entries[key.String()] = entry{
		Status:    statusSuccess,
		UpdatedAt: cache.clock(),
		Data:      data,
	}
	cache.persistLocked()
	cache.mu.Unlock()
}

// SetError records a failed query. Failed entries are never persisted.
func (cache *Cache) SetError(key Key) {
	cache.mu.Lock()
	cache.entries[key.String()] = entry{
		Status:    statusError,
		UpdatedAt: cache.clock(),
	}
	cache.persistLocked()
	cache.mu.Unlock()
}

// Get returns the cached data for the key if a successful entry exists,
// fresh or stale.
func (cache *Cache) Get(key Key) (json.RawMessage, bool) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	stored, exists := cache.entries[key.String()]
	if !exists || stored.Status != statusSuccess {
		return nil, false
	}
	return stored.Data, true
}

// Fresh reports whether a successful entry exists that is within the
// staleness window.
func (cache *Cache) Fresh(key Key) bool {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	stored, exists := cache.entries[key.String()]
	if !exists || stored.Status != statusSuccess {
		return false
	}
	return cache.clock().Sub(stored.UpdatedAt) <= cache.ttl
}

// Invalidate drops the entry for the key and persists the snapshot.
func (cache *Cache) Invalidate(key Key) {
	cache.mu.Lock()
	delete(cache.entries, key.String())
	cache.persistLocked()
	cache.mu.Unlock()
}

// NotifyBackground persists the snapshot; called when the consuming app moves
// to the background.
func (cache *Cache) NotifyBackground() {
	cache.mu.Lock()
	cache.persistLocked()
	cache.mu.Unlock()
}

// RegisterFetcher marks a query as active so RefetchAll can re-run it.
func (cache *Cache) RegisterFetcher(key Key, fetch FetchFunc) {
	cache.mu.Lock()
	cache.fetchers[key.String()] = fetch
	cache.mu.Unlock()
}

func (cache *Cache) UnregisterFetcher(key Key) {
	cache.mu.Lock()
	delete(cache.fetchers, key.String())
	cache.mu.Unlock()
}

// RefetchAll re-runs every active query; triggered when network reachability
// transitions from offline to online. Fetch failures are logged and skipped.
func (cache *Cache) RefetchAll(ctx context.Context) {
	cache.mu.Lock()
	keys := make([]string, 0, len(cache.fetchers))
	fetchers := make([]FetchFunc, 0, len(cache.fetchers))
	for key, fetch := range cache.fetchers {
		keys = append(keys, key)
		fetchers = append(fetchers, fetch)
	}
	cache.mu.Unlock()

	for index, fetch := range fetchers {
		if err := fetch(ctx); err != nil {
			cache.logger.Warn("refetch failed", "key", keys[index], "error", err)
		}
	}
}

// persistLocked replaces the stored blob wholesale with the currently
// successful entries. Callers must hold the mutex.
func (cache *Cache) persistLocked() {
	snapshot := persistedSnapshot{Version: snapshotVersion}
	for key, stored := range cache.entries {
		if stored.Status != statusSuccess {
			continue
		}
		snapshot.Entries = append(snapshot.Entries, persistedEntry{
			Key:       key,
			Timestamp: stored.UpdatedAt,
			Data:      stored.Data,
		})
	}
	sort.Slice(snapshot.Entries, func(i, j int) bool {
		return snapshot.Entries[i].Key < snapshot.Entries[j].Key
	})

	blob, err := json.Marshal(snapshot)
	if err != nil {
		cache.logger.Warn("encode query cache snapshot failed", "error", err)
		return
	}
	cache.store.SaveQueryCacheSnapshot(blob)
}
