package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazelgrove/moodsync/internal/logging"
	"github.com/hazelgrove/moodsync/internal/models"
	"github.com/hazelgrove/moodsync/internal/mooddata"
	"github.com/hazelgrove/moodsync/internal/moodlogs"
	"github.com/hazelgrove/moodsync/internal/querycache"
)

// LocalData is the slice of the local store the HTTP surface needs for
// session teardown.
type LocalData interface {
	ClearUser(userID string)
}

type Handler struct {
	secretKey    []byte
	hub          *mooddata.Hub
	entries      *moodlogs.Service
	cache        *querycache.Cache
	localData    LocalData
	adminKeyHash []byte
	logger       *logging.Logger
	clock        func() time.Time
}

// NewHandler wires the HTTP surface. adminKeyHash is the bcrypt hash guarding
// the destructive delete-all endpoint; leaving it empty disables the endpoint.
func NewHandler(secretKey string, hub *mooddata.Hub, entries *moodlogs.Service, cache *querycache.Cache, localData LocalData, adminKeyHash string, logger *logging.Logger) *Handler {
	return &Handler{
		secretKey:    []byte(secretKey),
		hub:          hub,
		entries:      entries,
		cache:        cache,
		localData:    localData,
		adminKeyHash: []byte(adminKeyHash),
		logger:       logger,
		clock:        time.Now,
	}
}

func (handler *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

type documentResponse struct {
	State    mooddata.State           `json:"state"`
	Document *models.UserMoodDocument `json:"document"`
}

// GetMoodDocument returns the session's current snapshot, starting the load
// cycle when the session is new. The local-first phase of the first load has
// completed by the time the controller is handed out, so a document is always
// available here.
func (handler *Handler) GetMoodDocument(c *fiber.Ctx) error {
	controller := handler.hub.Controller(c.UserContext(), currentUserID(c))
	state, document := controller.Snapshot()
	return c.JSON(documentResponse{State: state, Document: document})
}

// ReloadMoodDocument starts a fresh load cycle (rollover check plus remote
// pull) and returns the immediately available snapshot.
func (handler *Handler) ReloadMoodDocument(c *fiber.Ctx) error {
	controller := handler.hub.Controller(c.UserContext(), currentUserID(c))
	controller.Load(c.UserContext())
	state, document := controller.Snapshot()
	return c.JSON(documentResponse{State: state, Document: document})
}

type updateMoodRequest struct {
	Day   int `json:"day"`
	Value int `json:"value"`
}

func (handler *Handler) UpdateMoodDay(c *fiber.Ctx) error {
	request := updateMoodRequest{}
	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if request.Day < 1 || request.Day > 31 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "day out of range"})
	}
	if request.Value < models.DayValueUnset || request.Value > models.DayValueRough {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "value out of range"})
	}

	controller := handler.hub.Controller(c.UserContext(), currentUserID(c))
	controller.UpdateMood(request.Day, request.Value)
	state, document := controller.Snapshot()
	return c.JSON(documentResponse{State: state, Document: document})
}

func (handler *Handler) GetMoodEntries(c *fiber.Ctx) error {
	userID := currentUserID(c)
	handler.entries.RegisterRefetch(userID)
	return c.JSON(handler.entries.Entries(c.UserContext(), userID))
}

type upsertEntryRequest struct {
	MoodRating int      `json:"moodRating"`
	Tags       []string `json:"tags"`
	Note       string   `json:"note"`
}

func (handler *Handler) UpsertMoodEntry(c *fiber.Ctx) error {
	request := upsertEntryRequest{}
	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	entry := models.MoodLogEntry{
		Date:       c.Params("date"),
		MoodRating: request.MoodRating,
		Tags:       request.Tags,
		Note:       request.Note,
	}

	saved, err := handler.entries.Upsert(c.UserContext(), currentUserID(c), entry)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(saved)
}

func (handler *Handler) GetMoodAnalytics(c *fiber.Ctx) error {
	userID := currentUserID(c)
	entries := handler.entries.Entries(c.UserContext(), userID)
	return c.JSON(moodlogs.BuildAnalytics(entries, handler.clock()))
}

// DeleteAllMoodEntries wipes the user's per-day entries. Unlike the rest of
// the data path, failures here are reported to the caller.
func (handler *Handler) DeleteAllMoodEntries(c *fiber.Ctx) error {
	if len(handler.adminKeyHash) == 0 {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "delete disabled"})
	}
	if bcrypt.CompareHashAndPassword(handler.adminKeyHash, []byte(c.Get("X-Admin-Key"))) != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "invalid admin key"})
	}

	userID := currentUserID(c)
	if err := handler.entries.DeleteAll(c.UserContext(), userID); err != nil {
		handler.logger.Error("delete all mood entries failed", "userId", userID, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "delete failed"})
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

// NotifyBackground persists the query cache; the consuming app calls this
// when it moves to the background.
func (handler *Handler) NotifyBackground(c *fiber.Ctx) error {
	handler.cache.NotifyBackground()
	return c.SendStatus(fiber.StatusNoContent)
}

// Logout ends the session: the controller is dropped and the user's cached
// document and sync bookkeeping are wiped from the local store. Remote data is
// untouched and will be pulled again on the next login.
func (handler *Handler) Logout(c *fiber.Ctx) error {
	userID := currentUserID(c)
	handler.hub.Forget(userID)
	handler.localData.ClearUser(userID)
	handler.entries.UnregisterRefetch(userID)
	return c.SendStatus(fiber.StatusNoContent)
}
