// Package queue implements the durable offline action queue.
//
// User actions performed while the server is unreachable are appended here,
// persisted under the owning identity's key, and replayed strictly FIFO once
// connectivity returns. An action is removed from the persisted copy only
// after the server confirms receipt; a failed replay re-enqueues the action
// at the tail and halts the drain, leaving the remainder for the next
// successful (re)connection.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shiftgrid/realtime/internal/model"
)

// ErrUndeliverable marks an action that can never succeed (for example an
// unknown action type). The drain drops it instead of re-queueing, since
// re-queueing would wedge the queue forever.
var ErrUndeliverable = errors.New("queue: action undeliverable")

// Store persists the queue as a single serialized array under a key.
// The queue is the sole writer for its key.
type Store interface {
	// Load reads the persisted queue for a key. A missing key yields an
	// empty queue, not an error.
	Load(ctx context.Context, key string) ([]model.QueuedAction, error)

	// Save rewrites the persisted queue for a key. An empty slice clears it.
	Save(ctx context.Context, key string, actions []model.QueuedAction) error
}

// ActionSender delivers a single action to the server.
type ActionSender func(ctx context.Context, action model.QueuedAction) error

// Queue is the in-memory queue reconciled with its Store after every
// enqueue, successful replay, and failed replay.
type Queue struct {
	key    string
	store  Store
	logger *slog.Logger

	mu       sync.Mutex
	items    []model.QueuedAction
	draining bool
}

// New creates a queue for an identity key, restoring any persisted actions.
func New(ctx context.Context, key string, store Store, logger *slog.Logger) (*Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}

	items, err := store.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load persisted queue: %w", err)
	}

	if len(items) > 0 {
		logger.Info("restored persisted actions", "count", len(items), "key", key)
	}

	return &Queue{
		key:    key,
		store:  store,
		logger: logger,
		items:  items,
	}, nil
}

// Enqueue appends an action and persists the updated queue. It never blocks
// on the network; delivery happens later via Drain.
func (q *Queue) Enqueue(ctx context.Context, action model.QueuedAction) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, action)
	if err := q.persistLocked(ctx); err != nil {
		return err
	}

	q.logger.Debug("action queued",
		"id", action.ID,
		"type", action.Type,
		"depth", len(q.items),
	)
	return nil
}

// Len returns the number of pending actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the pending actions in FIFO order.
func (q *Queue) Snapshot() []model.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]model.QueuedAction, len(q.items))
	copy(out, q.items)
	return out
}

// Drain replays pending actions strictly FIFO. On delivery failure the
// action moves to the tail, the queue is persisted, and the drain stops
// early; the remainder is retried on the next (re)connection. Returns the
// number of actions confirmed delivered.
//
// Only one drain runs at a time; a concurrent call returns immediately.
func (q *Queue) Drain(ctx context.Context, send ActionSender) (int, error) {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return 0, nil
	}
	q.draining = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	delivered := 0

	for {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			return delivered, nil
		}
		head := q.items[0]
		q.mu.Unlock()

		err := send(ctx, head)

		switch {
		case err == nil:
			q.mu.Lock()
			q.dropHeadLocked(head)
			persistErr := q.persistLocked(ctx)
			q.mu.Unlock()

			delivered++
			if persistErr != nil {
				return delivered, persistErr
			}

		case errors.Is(err, ErrUndeliverable):
			q.logger.Error("dropping undeliverable action",
				"id", head.ID,
				"type", head.Type,
				"error", err,
			)
			q.mu.Lock()
			q.dropHeadLocked(head)
			persistErr := q.persistLocked(ctx)
			q.mu.Unlock()

			if persistErr != nil {
				return delivered, persistErr
			}

		default:
			// Re-enqueue at the tail and stop: preserves ordering and avoids
			// hammering a possibly still-unstable connection.
			q.logger.Warn("action delivery failed, halting drain",
				"id", head.ID,
				"type", head.Type,
				"error", err,
			)
			q.mu.Lock()
			q.dropHeadLocked(head)
			q.items = append(q.items, head)
			persistErr := q.persistLocked(ctx)
			q.mu.Unlock()

			if persistErr != nil {
				return delivered, persistErr
			}
			return delivered, err
		}
	}
}

// dropHeadLocked removes the head if it is still the given action. Guards
// against the queue having been mutated while the send was in flight.
func (q *Queue) dropHeadLocked(head model.QueuedAction) {
	if len(q.items) > 0 && q.items[0].ID == head.ID {
		q.items = q.items[1:]
	}
}

// persistLocked rewrites the persisted copy to match the in-memory queue.
func (q *Queue) persistLocked(ctx context.Context) error {
	if err := q.store.Save(ctx, q.key, q.items); err != nil {
		return fmt.Errorf("persist queue: %w", err)
	}
	return nil
}
