package mooddata

import (
	"context"
	"sync"

	"github.com/hazelgrove/moodsync/internal/logging"
)

// Hub hands out one controller per user session, creating it and running its
// first load cycle on demand. Controllers are explicitly constructed here
// rather than living as package-level singletons so tests can run independent
// instances side by side.
type Hub struct {
	local  LocalStore
	syncer Syncer
	pushes PushEnqueuer
	logger *logging.Logger

	mu          sync.Mutex
	controllers map[string]*Controller
}

func NewHub(local LocalStore, syncer Syncer, pushes PushEnqueuer, logger *logging.Logger) *Hub {
	return &Hub{
		local:       local,
		syncer:      syncer,
		pushes:      pushes,
		logger:      logger,
		controllers: make(map[string]*Controller),
	}
}

// Controller returns the user's controller, starting its first load cycle
// when the session is new. Callers without a user id must be rejected before
// reaching the hub.
func (hub *Hub) Controller(ctx context.Context, userID string) *Controller {
	hub.mu.Lock()
	controller, exists := hub.controllers[userID]
	if !exists {
		controller = NewController(userID, hub.local, hub.syncer, hub.pushes, hub.logger)
		hub.controllers[userID] = controller
	}
	hub.mu.Unlock()

	if !exists {
		controller.Load(ctx)
	}
	return controller
}

// Forget drops the user's controller, e.g. on logout.
func (hub *Hub) Forget(userID string) {
	hub.mu.Lock()
	delete(hub.controllers, userID)
	hub.mu.Unlock()
}
