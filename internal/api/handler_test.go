package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazelgrove/moodsync/internal/logging"
	"github.com/hazelgrove/moodsync/internal/models"
	"github.com/hazelgrove/moodsync/internal/mooddata"
	"github.com/hazelgrove/moodsync/internal/moodlogs"
	"github.com/hazelgrove/moodsync/internal/querycache"
)

const testSecretKey = "test-secret"

type memLocalStore struct {
	mu   sync.Mutex
	docs map[string]*models.UserMoodDocument
}

func (store *memLocalStore) UserDocument(userID string) *models.UserMoodDocument {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.docs[userID]
}

func (store *memLocalStore) SaveUserDocument(doc *models.UserMoodDocument) {
	store.mu.Lock()
	if store.docs == nil {
		store.docs = make(map[string]*models.UserMoodDocument)
	}
	store.docs[doc.UserID] = doc
	store.mu.Unlock()
}

type nilSyncer struct{}

func (nilSyncer) Pull(context.Context, string) *models.UserMoodDocument { return nil }

type nopQueue struct{}

func (nopQueue) Enqueue(string, *models.UserMoodDocument) {}

type memMoodLogStore struct {
	mu      sync.Mutex
	entries map[string][]models.MoodLogEntry
}

func (store *memMoodLogStore) PutMoodLog(_ context.Context, userID string, entry models.MoodLogEntry) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.entries == nil {
		store.entries = make(map[string][]models.MoodLogEntry)
	}
	store.entries[userID] = append(store.entries[userID], entry)
	return nil
}

func (store *memMoodLogStore) MoodLogs(_ context.Context, userID string) ([]models.MoodLogEntry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return append([]models.MoodLogEntry(nil), store.entries[userID]...), nil
}

func (store *memMoodLogStore) DeleteMoodLogs(_ context.Context, userID string, _ []string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	delete(store.entries, userID)
	return nil
}

type nopSnapshotStore struct{}

func (nopSnapshotStore) QueryCacheSnapshot() []byte    { return nil }
func (nopSnapshotStore) SaveQueryCacheSnapshot([]byte) {}

type clearRecorder struct {
	mu      sync.Mutex
	cleared []string
}

func (recorder *clearRecorder) ClearUser(userID string) {
	recorder.mu.Lock()
	recorder.cleared = append(recorder.cleared, userID)
	recorder.mu.Unlock()
}

func newTestApp(t *testing.T, adminKeyHash string) (*fiber.App, *clearRecorder) {
	t.Helper()
	logger := logging.NewNop()
	hub := mooddata.NewHub(&memLocalStore{}, nilSyncer{}, nopQueue{}, logger)
	cache := querycache.New(nopSnapshotStore{}, time.Minute, logger)
	entries := moodlogs.NewService(&memMoodLogStore{}, cache, logger)
	recorder := &clearRecorder{}
	handler := NewHandler(testSecretKey, hub, entries, cache, recorder, adminKeyHash, logger)

	app := fiber.New()
	RegisterRoutes(app, handler)
	return app, recorder
}

func signedToken(t *testing.T, subject string, key string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func authedRequest(t *testing.T, method string, target string, body any) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, target, reader)
	request.Header.Set(fiber.HeaderAuthorization, "Bearer "+signedToken(t, "user-1", testSecretKey))
	if body != nil {
		request.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	return request
}

func decodeBody(t *testing.T, response *http.Response, out any) {
	t.Helper()
	defer response.Body.Close()
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthEndpointIsPublic(t *testing.T) {
	app, _ := newTestApp(t, "")

	response, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if response.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}
}

func TestMoodRoutesRejectMissingToken(t *testing.T) {
	app, _ := newTestApp(t, "")

	response, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/mood/document", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if response.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", response.StatusCode)
	}
}

func TestMoodRoutesRejectForeignSignature(t *testing.T) {
	app, _ := newTestApp(t, "")

	request := httptest.NewRequest(http.MethodGet, "/api/mood/document", nil)
	request.Header.Set(fiber.HeaderAuthorization, "Bearer "+signedToken(t, "user-1", "other-secret"))

	response, err := app.Test(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if response.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", response.StatusCode)
	}
}

func TestGetMoodDocumentBootstrapsSession(t *testing.T) {
	app, _ := newTestApp(t, "")

	response, err := app.Test(authedRequest(t, http.MethodGet, "/api/mood/document", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if response.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}

	body := documentResponse{}
	decodeBody(t, response, &body)
	if body.Document == nil {
		t.Fatalf("expected a document on first request")
	}
	if body.Document.UserID != "user-1" {
		t.Fatalf("expected document for token subject, got %q", body.Document.UserID)
	}
}

func TestUpdateMoodDayValidatesInput(t *testing.T) {
	app, _ := newTestApp(t, "")

	cases := []updateMoodRequest{
		{Day: 0, Value: 1},
		{Day: 32, Value: 1},
		{Day: 10, Value: -1},
		{Day: 10, Value: 4},
	}
	for _, request := range cases {
		response, err := app.Test(authedRequest(t, http.MethodPost, "/api/mood/day", request), -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if response.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("expected 400 for %+v, got %d", request, response.StatusCode)
		}
	}
}

func TestUpdateMoodDayAppliesValue(t *testing.T) {
	app, _ := newTestApp(t, "")

	response, err := app.Test(authedRequest(t, http.MethodPost, "/api/mood/day", updateMoodRequest{Day: 1, Value: models.DayValueGood}), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if response.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}

	body := documentResponse{}
	decodeBody(t, response, &body)
	if body.Document == nil || body.Document.CurrentMonthCalendar[0][0].Value != models.DayValueGood {
		t.Fatalf("expected day 1 marked good, got %+v", body.Document)
	}
}

func TestUpsertMoodEntryRoundtrip(t *testing.T) {
	app, _ := newTestApp(t, "")

	response, err := app.Test(authedRequest(t, http.MethodPut, "/api/mood/entries/2024-03-15", upsertEntryRequest{
		MoodRating: 4,
		Tags:       []string{"work"},
		Note:       "long day",
	}), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if response.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}

	saved := models.MoodLogEntry{}
	decodeBody(t, response, &saved)
	if saved.Date != "2024-03-15" || saved.MoodRating != 4 {
		t.Fatalf("unexpected saved entry %+v", saved)
	}

	listResponse, err := app.Test(authedRequest(t, http.MethodGet, "/api/mood/entries", nil), -1)
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	listed := []models.MoodLogEntry{}
	decodeBody(t, listResponse, &listed)
	if len(listed) != 1 || listed[0].Note != "long day" {
		t.Fatalf("expected one listed entry, got %+v", listed)
	}
}

func TestUpsertMoodEntryRejectsInvalidRating(t *testing.T) {
	app, _ := newTestApp(t, "")

	response, err := app.Test(authedRequest(t, http.MethodPut, "/api/mood/entries/2024-03-15", upsertEntryRequest{MoodRating: 9}), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if response.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", response.StatusCode)
	}
}

func TestGetMoodAnalytics(t *testing.T) {
	app, _ := newTestApp(t, "")

	if _, err := app.Test(authedRequest(t, http.MethodPut, "/api/mood/entries/2024-03-15", upsertEntryRequest{MoodRating: 5}), -1); err != nil {
		t.Fatalf("seed request failed: %v", err)
	}

	response, err := app.Test(authedRequest(t, http.MethodGet, "/api/mood/analytics", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if response.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}

	analytics := moodlogs.Analytics{}
	decodeBody(t, response, &analytics)
	if analytics.TotalEntries != 1 || analytics.AverageRating != 5 {
		t.Fatalf("unexpected analytics %+v", analytics)
	}
}

func TestDeleteAllIsDisabledWithoutAdminKey(t *testing.T) {
	app, _ := newTestApp(t, "")

	response, err := app.Test(authedRequest(t, http.MethodDelete, "/api/mood/entries", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if response.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403, got %d", response.StatusCode)
	}
}

func TestDeleteAllRequiresMatchingAdminKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("wipe-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash admin key: %v", err)
	}
	app, _ := newTestApp(t, string(hash))

	wrong := authedRequest(t, http.MethodDelete, "/api/mood/entries", nil)
	wrong.Header.Set("X-Admin-Key", "guess")
	response, err := app.Test(wrong, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if response.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403 for wrong key, got %d", response.StatusCode)
	}

	right := authedRequest(t, http.MethodDelete, "/api/mood/entries", nil)
	right.Header.Set("X-Admin-Key", "wipe-key")
	response, err = app.Test(right, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if response.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 for matching key, got %d", response.StatusCode)
	}
}

func TestLogoutClearsLocalUserData(t *testing.T) {
	app, recorder := newTestApp(t, "")

	response, err := app.Test(authedRequest(t, http.MethodPost, "/api/app/logout", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if response.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", response.StatusCode)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.cleared) != 1 || recorder.cleared[0] != "user-1" {
		t.Fatalf("expected local data cleared for user-1, got %v", recorder.cleared)
	}
}

func TestNotifyBackground(t *testing.T) {
	app, _ := newTestApp(t, "")

	response, err := app.Test(authedRequest(t, http.MethodPost, "/api/app/background", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if response.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", response.StatusCode)
	}
}
