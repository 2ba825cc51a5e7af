package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hazelgrove/moodsync/internal/logging"
)

type fakeSnapshotStore struct {
	mu    sync.Mutex
	blob  []byte
	saves int
}

func (store *fakeSnapshotStore) QueryCacheSnapshot() []byte {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.blob
}

func (store *fakeSnapshotStore) SaveQueryCacheSnapshot(blob []byte) {
	store.mu.Lock()
	store.blob = blob
	store.saves++
	store.mu.Unlock()
}

func newTestCache(store *fakeSnapshotStore) *Cache {
	return New(store, time.Minute, logging.NewNop())
}

func TestSetPersistsSnapshotOnEveryMutation(t *testing.T) {
	store := &fakeSnapshotStore{}
	cache := newTestCache(store)

	cache.Set(Key{Scope: "mood_logs", Args: []string{"user-1"}}, json.RawMessage(`[1]`))
	if store.saves != 1 {
		t.Fatalf("expected snapshot persisted on Set, got %d saves", store.saves)
	}

	cache.Invalidate(Key{Scope: "mood_logs", Args: []string{"user-1"}})
	if store.saves != 2 {
		t.Fatalf("expected snapshot persisted on Invalidate, got %d saves", store.saves)
	}
}

func TestRestoreInstallsPersistedEntries(t *testing.T) {
	store := &fakeSnapshotStore{}
	first := newTestCache(store)
	key := Key{Scope: "mood_logs", Args: []string{"user-1"}}
	first.Set(key, json.RawMessage(`{"entries":3}`))

	second := newTestCache(store)
	second.Restore()

	data, ok := second.Get(key)
	if !ok {
		t.Fatalf("expected restored entry")
	}
	if string(data) != `{"entries":3}` {
		t.Fatalf("unexpected restored data %q", data)
	}
}

func TestRestoreNeverOverwritesFresherLiveEntry(t *testing.T) {
	store := &fakeSnapshotStore{}
	stale := newTestCache(store)
	staleClock := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	stale.clock = func() time.Time { return staleClock }
	key := Key{Scope: "mood_logs", Args: []string{"user-1"}}
	stale.Set(key, json.RawMessage(`"stale"`))
	staleBlob := store.QueryCacheSnapshot()

	liveStore := &fakeSnapshotStore{}
	cache := newTestCache(liveStore)
	cache.Set(key, json.RawMessage(`"live"`))

	// Simulate an older snapshot still sitting on disk.
	liveStore.blob = staleBlob
	cache.Restore()

	data, _ := cache.Get(key)
	if string(data) != `"live"` {
		t.Fatalf("expected live entry to survive restore, got %q", data)
	}
}

func TestSnapshotContainsOnlySuccessfulEntries(t *testing.T) {
	store := &fakeSnapshotStore{}
	cache := newTestCache(store)
	cache.Set(Key{Scope: "mood_logs", Args: []string{"user-1"}}, json.RawMessage(`[1]`))
	cache.SetError(Key{Scope: "mood_logs", Args: []string{"user-2"}})

	snapshot := persistedSnapshot{}
	if err := json.Unmarshal(store.blob, &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snapshot.Entries) != 1 {
		t.Fatalf("expected one persisted entry, got %d", len(snapshot.Entries))
	}
	if snapshot.Entries[0].Key != "mood_logs|user-1" {
		t.Fatalf("unexpected persisted key %q", snapshot.Entries[0].Key)
	}
}

func TestRestoreIgnoresCorruptBlob(t *testing.T) {
	store := &fakeSnapshotStore{blob: []byte("{broken")}
	cache := newTestCache(store)

	cache.Restore()

	if _, ok := cache.Get(Key{Scope: "anything"}); ok {
		t.Fatalf("expected empty cache after corrupt restore")
	}
}

func TestFreshReflectsStaleness(t *testing.T) {
	store := &fakeSnapshotStore{}
	cache := newTestCache(store)
	key := Key{Scope: "mood_logs", Args: []string{"user-1"}}

	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }
	cache.Set(key, json.RawMessage(`[1]`))

	if !cache.Fresh(key) {
		t.Fatalf("expected entry fresh immediately after Set")
	}

	cache.clock = func() time.Time { return now.Add(2 * time.Minute) }
	if cache.Fresh(key) {
		t.Fatalf("expected entry stale after ttl elapsed")
	}
	if _, ok := cache.Get(key); !ok {
		t.Fatalf("expected stale entry still readable")
	}
}

func TestRefetchAllRunsRegisteredFetchers(t *testing.T) {
	cache := newTestCache(&fakeSnapshotStore{})

	calls := 0
	cache.RegisterFetcher(Key{Scope: "mood_logs", Args: []string{"user-1"}}, func(context.Context) error {
		calls++
		return nil
	})
	cache.RegisterFetcher(Key{Scope: "mood_logs", Args: []string{"user-2"}}, func(context.Context) error {
		calls++
		return errors.New("still offline")
	})

	cache.RefetchAll(context.Background())

	if calls != 2 {
		t.Fatalf("expected both fetchers to run, got %d calls", calls)
	}
}

func TestKeyStringIsCanonical(t *testing.T) {
	key := Key{Scope: "mood_logs", Args: []string{"user-1", "2024-03"}}
	if key.String() != "mood_logs|user-1|2024-03" {
		t.Fatalf("unexpected key string %q", key.String())
	}
	if (Key{Scope: "mood_logs"}).String() != "mood_logs" {
		t.Fatalf("expected bare scope for argless key")
	}
}
