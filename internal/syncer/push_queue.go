package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hazelgrove/moodsync/internal/logging"
	"github.com/hazelgrove/moodsync/internal/models"
)

type Pusher interface {
	Push(ctx context.Context, userID string, doc *models.UserMoodDocument) error
}

type pushTask struct {
	ID        string
	UserID    string
	Document  *models.UserMoodDocument
	Attempts  int
	NotBefore time.Time
}

// PushQueue pushes documents to the remote store in the background so callers
// never wait on remote confirmation, while keeping failures observable:
// failed pushes are retried with exponential backoff and logged with their
// task id and attempt count. Enqueueing the same user again coalesces to the
// newest document.
type PushQueue struct {
	pusher      Pusher
	logger      *logging.Logger
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	pollEvery   time.Duration

	mu      sync.Mutex
	pending map[string]*pushTask
	wake    chan struct{}
}

func NewPushQueue(pusher Pusher, logger *logging.Logger) *PushQueue {
	return &PushQueue{
		pusher:      pusher,
		logger:      logger,
		baseDelay:   2 * time.Second,
		maxDelay:    2 * time.Minute,
		maxAttempts: 8,
		pollEvery:   time.Second,
		pending:     make(map[string]*pushTask),
		wake:        make(chan struct{}, 1),
	}
}

// Enqueue schedules a push of doc for the user, replacing any push still
// pending for the same user. Never blocks.
func (queue *PushQueue) Enqueue(userID string, doc *models.UserMoodDocument) {
	if userID == "" || doc == nil {
		return
	}

	task := &pushTask{
		ID:       uuid.NewString(),
		UserID:   userID,
		Document: doc,
	}

	queue.mu.Lock()
	if superseded, exists := queue.pending[userID]; exists {
		queue.logger.Debug("coalescing pending push", "userId", userID, "supersededTaskId", superseded.ID, "taskId", task.ID)
	}
	queue.pending[userID] = task
	queue.mu.Unlock()

	select {
	case queue.wake <- struct{}{}:
	default:
	}
}

// PendingCount reports how many users have a push waiting.
func (queue *PushQueue) PendingCount() int {
	queue.mu.Lock()
	defer queue.mu.Unlock()
	return len(queue.pending)
}

// Start runs the worker until ctx is cancelled.
func (queue *PushQueue) Start(ctx context.Context) {
	go queue.run(ctx)
}

func (queue *PushQueue) run(ctx context.Context) {
	ticker := time.NewTicker(queue.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-queue.wake:
		case <-ticker.C:
		}
		queue.processDue(ctx)
	}
}

func (queue *PushQueue) processDue(ctx context.Context) {
	now := time.Now()

	queue.mu.Lock()
	due := make([]pushTask, 0, len(queue.pending))
	for _, task := range queue.pending {
		if !task.NotBefore.After(now) {
			due = append(due, *task)
		}
	}
	queue.mu.Unlock()

	for _, task := range due {
		if ctx.Err() != nil {
			return
		}
		queue.attempt(ctx, task)
	}
}

func (queue *PushQueue) attempt(ctx context.Context, task pushTask) {
	err := queue.pusher.Push(ctx, task.UserID, task.Document)

	queue.mu.Lock()
	defer queue.mu.Unlock()

	current, exists := queue.pending[task.UserID]
	if !exists || current.ID != task.ID {
		// A newer document was enqueued while this push ran; leave it be.
		return
	}

	if err == nil {
		delete(queue.pending, task.UserID)
		queue.logger.Debug("push completed", "userId", task.UserID, "taskId", task.ID, "attempts", task.Attempts+1)
		return
	}

	current.Attempts++
	if current.Attempts >= queue.maxAttempts {
		delete(queue.pending, task.UserID)
		queue.logger.Error("push abandoned after repeated failures", "userId", task.UserID, "taskId", task.ID, "attempts", current.Attempts)
		return
	}

	current.NotBefore = time.Now().Add(queue.backoff(current.Attempts))
	queue.logger.Warn("push failed, will retry", "userId", task.UserID, "taskId", task.ID, "attempts", current.Attempts)
}

func (queue *PushQueue) backoff(attempts int) time.Duration {
	delay := queue.baseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= queue.maxDelay {
			return queue.maxDelay
		}
	}
	return delay
}
