package localstore

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hazelgrove/moodsync/internal/logging"
	"github.com/hazelgrove/moodsync/internal/models"
	"github.com/hazelgrove/moodsync/internal/security"
	"gorm.io/gorm"
)

const (
	userDocumentKeyPrefix = "mood:user_document:"
	lastSyncKeyPrefix     = "mood:last_sync:"
	queryCacheKey         = "querycache:snapshot"
	deviceIDKey           = "device:id"
)

type cacheEntry struct {
	Key       string `gorm:"column:key;primaryKey"`
	Value     string `gorm:"column:value"`
	UpdatedAt time.Time
}

func (cacheEntry) TableName() string {
	return "cache_entries"
}

// Store is the device-local key-value cache. Every method swallows storage
// failures: errors are logged and surface to callers as absence or a silent
// no-op, never as a returned error.
type Store struct {
	database *gorm.DB
	logger   *logging.Logger
}

func NewStore(database *gorm.DB, logger *logging.Logger) *Store {
	return &Store{
		database: database,
		logger:   logger,
	}
}

func (store *Store) readValue(key string) (string, bool) {
	entry := cacheEntry{}
	err := store.database.Where("key = ?", key).First(&entry).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			store.logger.Warn("local cache read failed", "key", key, "error", err)
		}
		return "", false
	}
	return entry.Value, true
}

func (store *Store) writeValue(key string, value string) {
	entry := cacheEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	if err := store.database.Save(&entry).Error; err != nil {
		store.logger.Warn("local cache write failed", "key", key, "error", err)
	}
}

func (store *Store) deleteValue(key string) {
	if err := store.database.Where("key = ?", key).Delete(&cacheEntry{}).Error; err != nil {
		store.logger.Warn("local cache delete failed", "key", key, "error", err)
	}
}

// UserDocument returns the cached document for the user, or nil if none is
// stored or the stored blob fails to parse.
func (store *Store) UserDocument(userID string) *models.UserMoodDocument {
	raw, found := store.readValue(userDocumentKeyPrefix + userID)
	if !found {
		return nil
	}

	doc, err := models.ParseUserMoodDocument([]byte(raw))
	if err != nil {
		store.logger.Warn("cached user document unreadable, treating as absent", "userId", userID, "error", err)
		return nil
	}
	return doc
}

func (store *Store) SaveUserDocument(doc *models.UserMoodDocument) {
	if doc == nil || doc.UserID == "" {
		return
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		store.logger.Warn("encode user document failed", "userId", doc.UserID, "error", err)
		return
	}
	store.writeValue(userDocumentKeyPrefix+doc.UserID, string(raw))
}

func (store *Store) LastSyncTime(userID string) (time.Time, bool) {
	raw, found := store.readValue(lastSyncKeyPrefix + userID)
	if !found {
		return time.Time{}, false
	}

	timestamp, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		store.logger.Warn("stored last-sync timestamp unreadable", "userId", userID, "error", err)
		return time.Time{}, false
	}
	return timestamp, true
}

func (store *Store) SetLastSyncTime(userID string, timestamp time.Time) {
	store.writeValue(lastSyncKeyPrefix+userID, timestamp.Format(time.RFC3339))
}

// QueryCacheSnapshot returns the persisted query-cache blob, or nil if absent.
func (store *Store) QueryCacheSnapshot() []byte {
	raw, found := store.readValue(queryCacheKey)
	if !found {
		return nil
	}
	return []byte(raw)
}

func (store *Store) SaveQueryCacheSnapshot(blob []byte) {
	store.writeValue(queryCacheKey, string(blob))
}

// DeviceID returns this device's stable identifier, minting and persisting one
// on first use. An empty string means the id could not be minted or stored.
func (store *Store) DeviceID() string {
	if existing, found := store.readValue(deviceIDKey); found && existing != "" {
		return existing
	}

	minted, err := security.NewDeviceID()
	if err != nil {
		store.logger.Warn("mint device id failed", "error", err)
		return ""
	}
	store.writeValue(deviceIDKey, minted)
	return minted
}

// ClearUser removes the user's cached document and last-sync bookkeeping.
// Used by logout and delete-all flows.
func (store *Store) ClearUser(userID string) {
	store.deleteValue(userDocumentKeyPrefix + userID)
	store.deleteValue(lastSyncKeyPrefix + userID)
}
