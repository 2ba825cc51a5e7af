package moodlogs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazelgrove/moodsync/internal/logging"
	"github.com/hazelgrove/moodsync/internal/models"
	"github.com/hazelgrove/moodsync/internal/querycache"
)

type RemoteStore interface {
	PutMoodLog(ctx context.Context, userID string, entry models.MoodLogEntry) error
	MoodLogs(ctx context.Context, userID string) ([]models.MoodLogEntry, error)
	DeleteMoodLogs(ctx context.Context, userID string, dates []string) error
}

// Service manages the per-day mood entries (the 1-5 rating model), reading
// through the durable query cache so entries stay available offline. Remote
// failures on the read and write paths are logged and absorbed; only the
// destructive DeleteAll propagates errors, because its caller has to report
// the outcome.
type Service struct {
	remote RemoteStore
	cache  *querycache.Cache
	logger *logging.Logger
	clock  func() time.Time
}

func NewService(remote RemoteStore, cache *querycache.Cache, logger *logging.Logger) *Service {
	return &Service{
		remote: remote,
		cache:  cache,
		logger: logger,
		clock:  time.Now,
	}
}

func entriesKey(userID string) querycache.Key {
	return querycache.Key{Scope: "mood_logs", Args: []string{userID}}
}

// RegisterRefetch marks the user's entry list as an active query so an
// offline-to-online transition refreshes it.
func (service *Service) RegisterRefetch(userID string) {
	service.cache.RegisterFetcher(entriesKey(userID), func(ctx context.Context) error {
		return service.refetch(ctx, userID)
	})
}

// UnregisterRefetch removes the user's entry list from the active query set,
// e.g. when the session ends.
func (service *Service) UnregisterRefetch(userID string) {
	service.cache.UnregisterFetcher(entriesKey(userID))
}

func (service *Service) refetch(ctx context.Context, userID string) error {
	entries, err := service.remote.MoodLogs(ctx, userID)
	if err != nil {
		return fmt.Errorf("refetch mood logs: %w", err)
	}
	service.cacheEntries(userID, entries)
	return nil
}

// Entries returns the user's mood entries: the cached list while it is fresh,
// otherwise the remote list. When the remote store is unreachable, whatever
// the cache holds (possibly stale, possibly nothing) is served instead of an
// error.
func (service *Service) Entries(ctx context.Context, userID string) []models.MoodLogEntry {
	key := entriesKey(userID)
	if service.cache.Fresh(key) {
		if entries, ok := service.cachedEntries(userID); ok {
			return entries
		}
	}

	remote, err := service.remote.MoodLogs(ctx, userID)
	if err != nil {
		service.logger.Warn("list mood logs failed, serving cached entries", "userId", userID, "error", err)
		if entries, ok := service.cachedEntries(userID); ok {
			return entries
		}
		return []models.MoodLogEntry{}
	}

	service.cacheEntries(userID, remote)
	return remote
}

// Upsert validates and writes one entry, overwriting any previous entry for
// the same date. The cache is updated optimistically; a remote write failure
// is logged, not returned.
//
// The write merges into the full entry list: on a cache miss the list is
// fetched from the remote store first, so a cold cache never ends up holding
// just the written entry, and an overwrite keeps the remote record's original
// CreatedAt.
func (service *Service) Upsert(ctx context.Context, userID string, entry models.MoodLogEntry) (models.MoodLogEntry, error) {
	entry.Normalize()
	if err := entry.Validate(); err != nil {
		return models.MoodLogEntry{}, err
	}

	base, haveBase := service.cachedEntries(userID)
	if !haveBase {
		remote, err := service.remote.MoodLogs(ctx, userID)
		if err != nil {
			service.logger.Warn("list mood logs before upsert failed, writing entry without a base list", "userId", userID, "error", err)
		} else {
			base = remote
			haveBase = true
		}
	}

	now := service.clock()
	entry.UpdatedAt = now
	entry.CreatedAt = now
	for _, existing := range base {
		if existing.Date == entry.Date && !existing.CreatedAt.IsZero() {
			entry.CreatedAt = existing.CreatedAt
			break
		}
	}

	if err := service.remote.PutMoodLog(ctx, userID, entry); err != nil {
		service.logger.Warn("put mood log failed, keeping local copy", "userId", userID, "date", entry.Date, "error", err)
	}

	if haveBase {
		service.cacheEntries(userID, mergeEntry(base, entry))
	} else {
		// Both the cache and the remote list are unavailable: cache the lone
		// entry so it survives offline. The next reachability refetch replaces
		// the list wholesale.
		service.cacheEntries(userID, []models.MoodLogEntry{entry})
	}
	return entry, nil
}

// DeleteAll removes every entry the user has, remote first. This is the one
// operation that propagates failures: the debug caller needs to know whether
// the wipe happened.
func (service *Service) DeleteAll(ctx context.Context, userID string) error {
	entries, err := service.remote.MoodLogs(ctx, userID)
	if err != nil {
		return fmt.Errorf("list mood logs for delete: %w", err)
	}

	dates := make([]string, 0, len(entries))
	for _, entry := range entries {
		dates = append(dates, entry.Date)
	}

	if len(dates) > 0 {
		if err := service.remote.DeleteMoodLogs(ctx, userID, dates); err != nil {
			return fmt.Errorf("delete mood logs: %w", err)
		}
	}

	service.cache.Invalidate(entriesKey(userID))
	return nil
}

func (service *Service) cachedEntries(userID string) ([]models.MoodLogEntry, bool) {
	data, ok := service.cache.Get(entriesKey(userID))
	if !ok {
		return nil, false
	}

	entries := make([]models.MoodLogEntry, 0)
	if err := json.Unmarshal(data, &entries); err != nil {
		service.logger.Warn("cached mood logs unreadable", "userId", userID, "error", err)
		return nil, false
	}
	return entries, true
}

func (service *Service) cacheEntries(userID string, entries []models.MoodLogEntry) {
	data, err := json.Marshal(entries)
	if err != nil {
		service.logger.Warn("encode mood logs for cache failed", "userId", userID, "error", err)
		return
	}
	service.cache.Set(entriesKey(userID), data)
}

func mergeEntry(entries []models.MoodLogEntry, entry models.MoodLogEntry) []models.MoodLogEntry {
	merged := make([]models.MoodLogEntry, 0, len(entries)+1)
	inserted := false
	for _, existing := range entries {
		switch {
		case existing.Date == entry.Date:
			merged = append(merged, entry)
			inserted = true
		case !inserted && existing.Date > entry.Date:
			merged = append(merged, entry, existing)
			inserted = true
		default:
			merged = append(merged, existing)
		}
	}
	if !inserted {
		merged = append(merged, entry)
	}
	return merged
}
