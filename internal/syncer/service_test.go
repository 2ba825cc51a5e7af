package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazelgrove/moodsync/internal/calendar"
	"github.com/hazelgrove/moodsync/internal/logging"
	"github.com/hazelgrove/moodsync/internal/models"
)

type fakeLocalStore struct {
	documents map[string]*models.UserMoodDocument
	syncTimes map[string]time.Time
	deviceID  string
}

func newFakeLocalStore() *fakeLocalStore {
	return &fakeLocalStore{
		documents: make(map[string]*models.UserMoodDocument),
		syncTimes: make(map[string]time.Time),
		deviceID:  "device-local",
	}
}

func (store *fakeLocalStore) SaveUserDocument(doc *models.UserMoodDocument) {
	store.documents[doc.UserID] = doc
}

func (store *fakeLocalStore) SetLastSyncTime(userID string, timestamp time.Time) {
	store.syncTimes[userID] = timestamp
}

func (store *fakeLocalStore) DeviceID() string {
	return store.deviceID
}

// fakeRemoteStore keeps user records as loose field maps so merge semantics
// can be observed.
type fakeRemoteStore struct {
	records   map[string]map[string]any
	readErr   error
	writeErr  error
	pushCalls int
}

func newFakeRemoteStore() *fakeRemoteStore {
	return &fakeRemoteStore{records: make(map[string]map[string]any)}
}

func (store *fakeRemoteStore) UserDocument(_ context.Context, userID string) (*models.UserMoodDocument, bool, error) {
	if store.readErr != nil {
		return nil, false, store.readErr
	}
	record, exists := store.records[userID]
	if !exists {
		return nil, false, nil
	}
	doc, ok := record["document"].(*models.UserMoodDocument)
	if !ok {
		return nil, false, nil
	}
	return doc, true, nil
}

func (store *fakeRemoteStore) MergeUserFields(_ context.Context, userID string, fields map[string]any) error {
	store.pushCalls++
	if store.writeErr != nil {
		return store.writeErr
	}
	record, exists := store.records[userID]
	if !exists {
		record = make(map[string]any)
		store.records[userID] = record
	}
	for key, value := range fields {
		record[key] = value
	}
	return nil
}

func (store *fakeRemoteStore) seedDocument(doc *models.UserMoodDocument) {
	store.records[doc.UserID] = map[string]any{"document": doc}
}

func TestPullOverwritesLocalUnconditionally(t *testing.T) {
	local := newFakeLocalStore()
	remote := newFakeRemoteStore()
	service := NewService(local, remote, logging.NewNop())

	localDoc := calendar.NewDocument("user-1", time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	localDoc.CurrentMonthCalendar[0][0].Value = models.DayValueGood
	local.documents["user-1"] = localDoc

	remoteDoc := calendar.NewDocument("user-1", time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	remoteDoc.CurrentMonthCalendar[0][0].Value = models.DayValueRough
	remote.seedDocument(remoteDoc)

	pulled := service.Pull(context.Background(), "user-1")

	if pulled == nil {
		t.Fatalf("expected pulled document")
	}
	if local.documents["user-1"].CurrentMonthCalendar[0][0].Value != models.DayValueRough {
		t.Fatalf("expected remote value to overwrite local cache")
	}
	if _, synced := local.syncTimes["user-1"]; !synced {
		t.Fatalf("expected last-sync time to be recorded")
	}
}

func TestPullReturnsNilWhenRemoteAbsent(t *testing.T) {
	local := newFakeLocalStore()
	service := NewService(local, newFakeRemoteStore(), logging.NewNop())

	if pulled := service.Pull(context.Background(), "user-1"); pulled != nil {
		t.Fatalf("expected nil for absent remote document")
	}
	if len(local.documents) != 0 {
		t.Fatalf("expected local cache untouched")
	}
}

func TestPullSwallowsReadFailure(t *testing.T) {
	local := newFakeLocalStore()
	remote := newFakeRemoteStore()
	remote.readErr = errors.New("network down")
	service := NewService(local, remote, logging.NewNop())

	if pulled := service.Pull(context.Background(), "user-1"); pulled != nil {
		t.Fatalf("expected nil on read failure")
	}
	if _, synced := local.syncTimes["user-1"]; synced {
		t.Fatalf("expected no last-sync update on failure")
	}
}

func TestPushMergesFieldsAndPreservesRemoteOnlyFields(t *testing.T) {
	local := newFakeLocalStore()
	remote := newFakeRemoteStore()
	remote.records["user-1"] = map[string]any{"displayName": "Sam", "theme": "dark"}
	service := NewService(local, remote, logging.NewNop())

	doc := calendar.NewDocument("user-1", time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	if err := service.Push(context.Background(), "user-1", doc); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	record := remote.records["user-1"]
	if record["displayName"] != "Sam" || record["theme"] != "dark" {
		t.Fatalf("expected profile fields preserved by merge, got %+v", record)
	}
	if record["currentMonthYear"] != "March 2024" {
		t.Fatalf("expected calendar fields written, got %+v", record["currentMonthYear"])
	}
	if record["lastWriterDeviceId"] != "device-local" {
		t.Fatalf("expected device provenance stamped, got %v", record["lastWriterDeviceId"])
	}
	if _, synced := local.syncTimes["user-1"]; !synced {
		t.Fatalf("expected last-sync time recorded after push")
	}
}

func TestPushReportsFailureWithoutSyncTimeUpdate(t *testing.T) {
	local := newFakeLocalStore()
	remote := newFakeRemoteStore()
	remote.writeErr = errors.New("permission denied")
	service := NewService(local, remote, logging.NewNop())

	doc := calendar.NewDocument("user-1", time.Now())
	if err := service.Push(context.Background(), "user-1", doc); err == nil {
		t.Fatalf("expected push error for retry bookkeeping")
	}
	if _, synced := local.syncTimes["user-1"]; synced {
		t.Fatalf("expected no last-sync update on failed push")
	}
}

func TestPushStampsDeviceWithoutMutatingInput(t *testing.T) {
	local := newFakeLocalStore()
	remote := newFakeRemoteStore()
	service := NewService(local, remote, logging.NewNop())

	doc := calendar.NewDocument("user-1", time.Now())
	doc.LastWriterDeviceID = "device-other"
	if err := service.Push(context.Background(), "user-1", doc); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	if doc.LastWriterDeviceID != "device-other" {
		t.Fatalf("expected caller's document untouched, got %q", doc.LastWriterDeviceID)
	}
}
