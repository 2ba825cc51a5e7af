package syncer

import (
	"context"
	"time"

	"github.com/hazelgrove/moodsync/internal/logging"
	"github.com/hazelgrove/moodsync/internal/models"
)

type LocalStore interface {
	SaveUserDocument(doc *models.UserMoodDocument)
	SetLastSyncTime(userID string, timestamp time.Time)
	DeviceID() string
}

type RemoteStore interface {
	UserDocument(ctx context.Context, userID string) (*models.UserMoodDocument, bool, error)
	MergeUserFields(ctx context.Context, userID string, fields map[string]any) error
}

// Service reconciles one user's document between the local cache and the
// remote store. Conflict policy is remote-wins: a pulled document overwrites
// the local cache unconditionally, with no merge and no timestamp comparison.
// Unsynced local edits from another device are silently discarded; the only
// concession is a provenance warning when the pulled document was written by a
// different device (single-active-device assumption).
type Service struct {
	local  LocalStore
	remote RemoteStore
	logger *logging.Logger
	clock  func() time.Time
}

func NewService(local LocalStore, remote RemoteStore, logger *logging.Logger) *Service {
	return &Service{
		local:  local,
		remote: remote,
		logger: logger,
		clock:  time.Now,
	}
}

// Pull reads the user's remote document. When one exists the local cache is
// overwritten with it and the last-sync time is updated. Returns nil when no
// remote document exists or the read failed; read failures are logged, never
// propagated.
func (service *Service) Pull(ctx context.Context, userID string) *models.UserMoodDocument {
	doc, found, err := service.remote.UserDocument(ctx, userID)
	if err != nil {
		service.logger.Warn("sync pull failed", "userId", userID, "error", err)
		return nil
	}
	if !found {
		return nil
	}

	if deviceID := service.local.DeviceID(); doc.LastWriterDeviceID != "" && deviceID != "" && doc.LastWriterDeviceID != deviceID {
		service.logger.Warn("remote document last written by another device, local state will be overwritten",
			"userId", userID,
			"remoteDeviceId", doc.LastWriterDeviceID,
			"localDeviceId", deviceID,
		)
	}

	service.local.SaveUserDocument(doc)
	service.local.SetLastSyncTime(userID, service.clock())
	return doc
}

// Push merge-upserts the document into the user's remote record: remote fields
// not part of the mood document are preserved. Last-sync time is updated on
// success. The returned error exists for the push queue's retry bookkeeping;
// failures are already logged here and must never be surfaced to callers of
// the data path.
func (service *Service) Push(ctx context.Context, userID string, doc *models.UserMoodDocument) error {
	if doc == nil {
		return nil
	}

	stamped := doc.Clone()
	stamped.LastWriterDeviceID = service.local.DeviceID()
	stamped.UpdatedAt = service.clock()

	if err := service.remote.MergeUserFields(ctx, userID, documentFields(stamped)); err != nil {
		service.logger.Warn("sync push failed", "userId", userID, "error", err)
		return err
	}

	service.local.SetLastSyncTime(userID, service.clock())
	return nil
}

func documentFields(doc *models.UserMoodDocument) map[string]any {
	return map[string]any{
		"schemaVersion":        doc.SchemaVersion,
		"userId":               doc.UserID,
		"currentMonthYear":     doc.CurrentMonthYear,
		"currentMonthCalendar": doc.CurrentMonthCalendar,
		"previousMonths":       doc.PreviousMonths,
		"lastWriterDeviceId":   doc.LastWriterDeviceID,
		"updatedAt":            doc.UpdatedAt,
	}
}
