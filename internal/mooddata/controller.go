package mooddata

import (
	"context"
	"sync"
	"time"

	"github.com/hazelgrove/moodsync/internal/calendar"
	"github.com/hazelgrove/moodsync/internal/logging"
	"github.com/hazelgrove/moodsync/internal/models"
)

type State string

const (
	StateIdle          State = "idle"
	StateLoadingLocal  State = "loading_local"
	StateReadyLocal    State = "ready_local"
	StateSyncingRemote State = "syncing_remote"
	StateReadySynced   State = "ready_synced"
)

type LocalStore interface {
	UserDocument(userID string) *models.UserMoodDocument
	SaveUserDocument(doc *models.UserMoodDocument)
}

type Syncer interface {
	Pull(ctx context.Context, userID string) *models.UserMoodDocument
}

type PushEnqueuer interface {
	Enqueue(userID string, doc *models.UserMoodDocument)
}

// Update is published to subscribers on every state or document change.
type Update struct {
	State    State
	Document *models.UserMoodDocument
}

// Controller orchestrates one user session's mood document: local-first load,
// month rollover, optimistic updates, and background remote sync. The data
// path never returns storage or network errors; some document (stale or
// freshly initialized) is always preferred over an error.
type Controller struct {
	userID string
	local  LocalStore
	syncer Syncer
	pushes PushEnqueuer
	logger *logging.Logger
	clock  func() time.Time

	mu             sync.Mutex
	state          State
	document       *models.UserMoodDocument
	loadGeneration int
	subscribers    []chan Update
}

func NewController(userID string, local LocalStore, syncer Syncer, pushes PushEnqueuer, logger *logging.Logger) *Controller {
	return &Controller{
		userID: userID,
		local:  local,
		syncer: syncer,
		pushes: pushes,
		logger: logger.With("userId", userID),
		clock:  time.Now,
		state:  StateIdle,
	}
}

// Load runs one load cycle:
//
//	idle -> loading_local -> ready_local -> syncing_remote -> ready_synced
//
// The locally cached document (run through rollover, so always valid) is
// published before any remote round-trip. The remote phase then pulls with
// remote-wins semantics; when no remote document exists yet, the local one is
// pushed instead to bootstrap the remote record. The remote phase runs in the
// background; a Load that has been superseded by a newer Load discards its
// remote result instead of applying it.
func (controller *Controller) Load(ctx context.Context) {
	controller.mu.Lock()
	controller.loadGeneration++
	generation := controller.loadGeneration
	controller.setLocked(StateLoadingLocal, controller.document)
	controller.mu.Unlock()

	stored := controller.local.UserDocument(controller.userID)
	doc, changed := calendar.InitializeOrUpdate(stored, controller.userID, controller.clock())

	if !controller.applyIfCurrent(generation, StateReadyLocal, doc) {
		return
	}
	if changed {
		controller.local.SaveUserDocument(doc)
	}

	if !controller.applyIfCurrent(generation, StateSyncingRemote, doc) {
		return
	}
	go controller.syncRemote(ctx, generation, doc)
}

func (controller *Controller) syncRemote(ctx context.Context, generation int, localDoc *models.UserMoodDocument) {
	remoteDoc := controller.syncer.Pull(ctx, controller.userID)
	if remoteDoc == nil {
		// First-time bootstrap: nothing remote yet, publish what we have.
		// An UpdateMood may have landed while the pull ran, so the document
		// to keep and push is the controller's current one, not the one this
		// load started with. Enqueueing under the lock keeps a concurrent
		// update from being superseded by an older snapshot.
		controller.mu.Lock()
		if controller.loadGeneration != generation {
			controller.mu.Unlock()
			controller.logger.Debug("discarding result of superseded load", "generation", generation)
			return
		}
		controller.setLocked(StateReadySynced, controller.document)
		controller.pushes.Enqueue(controller.userID, controller.document)
		controller.mu.Unlock()
		return
	}

	// Remote data may itself be overdue for rollover.
	processed, changed := calendar.InitializeOrUpdate(remoteDoc, controller.userID, controller.clock())
	if !controller.applyIfCurrent(generation, StateReadySynced, processed) {
		return
	}
	controller.local.SaveUserDocument(processed)
	if changed {
		// The rolled-over month has to make it back to the remote store too.
		controller.pushes.Enqueue(controller.userID, processed)
	}
}

// UpdateMood sets the value of one day in the current month: the in-memory
// document is mutated and published first, the local store is written before
// this method returns, and the remote push is queued last. A missing
// document, unknown day, or out-of-range value is a logged no-op.
func (controller *Controller) UpdateMood(day int, value int) {
	if value < models.DayValueUnset || value > models.DayValueRough {
		controller.logger.Warn("mood update ignored, value out of range", "day", day, "value", value)
		return
	}

	controller.mu.Lock()
	if controller.document == nil {
		controller.mu.Unlock()
		controller.logger.Debug("mood update ignored, no document loaded", "day", day)
		return
	}

	updated := controller.document.Clone()
	if !setDayValue(updated.CurrentMonthCalendar, day, value) {
		controller.mu.Unlock()
		controller.logger.Warn("mood update ignored, day not in current month", "day", day)
		return
	}
	updated.UpdatedAt = controller.clock()
	controller.setLocked(controller.state, updated)
	controller.mu.Unlock()

	controller.local.SaveUserDocument(updated)
	controller.pushes.Enqueue(controller.userID, updated)
}

func setDayValue(weeks []models.Week, day int, value int) bool {
	for weekIndex, week := range weeks {
		for dayIndex, entry := range week {
			if entry.Day == day {
				weeks[weekIndex][dayIndex].Value = value
				return true
			}
		}
	}
	return false
}

// Snapshot returns the current state and document.
func (controller *Controller) Snapshot() (State, *models.UserMoodDocument) {
	controller.mu.Lock()
	defer controller.mu.Unlock()
	return controller.state, controller.document
}

// Subscribe returns a channel receiving every state transition and document
// publish, plus a func that stops delivery and releases the subscription.
// Slow subscribers miss updates rather than blocking the data path.
func (controller *Controller) Subscribe() (<-chan Update, func()) {
	channel := make(chan Update, 16)
	controller.mu.Lock()
	controller.subscribers = append(controller.subscribers, channel)
	controller.mu.Unlock()

	unsubscribe := func() {
		controller.mu.Lock()
		defer controller.mu.Unlock()
		for index, subscriber := range controller.subscribers {
			if subscriber == channel {
				controller.subscribers = append(controller.subscribers[:index], controller.subscribers[index+1:]...)
				return
			}
		}
	}
	return channel, unsubscribe
}

func (controller *Controller) applyIfCurrent(generation int, state State, doc *models.UserMoodDocument) bool {
	controller.mu.Lock()
	defer controller.mu.Unlock()

	if controller.loadGeneration != generation {
		controller.logger.Debug("discarding result of superseded load", "generation", generation)
		return false
	}
	controller.setLocked(state, doc)
	return true
}

func (controller *Controller) setLocked(state State, doc *models.UserMoodDocument) {
	controller.state = state
	controller.document = doc

	update := Update{State: state, Document: doc}
	for _, subscriber := range controller.subscribers {
		select {
		case subscriber <- update:
		default:
		}
	}
}
