package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/shiftgrid/realtime/internal/model"
	"github.com/shiftgrid/realtime/internal/storage"
)

func newTestQueue(t *testing.T) (*Queue, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	q, err := New(context.Background(), "supervisor:42", store, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return q, store
}

func action(actionType, alertID string) model.QueuedAction {
	payload, _ := json.Marshal(model.AlertAckPayload{AlertID: alertID})
	return model.NewQueuedAction(actionType, payload)
}

func TestEnqueuePersists(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, action(model.ActionAlertAcknowledge, "a1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue(ctx, action(model.ActionAlertAcknowledge, "a2")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}

	persisted, err := store.Load(ctx, "supervisor:42")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(persisted) != 2 {
		t.Errorf("persisted %d actions, want 2", len(persisted))
	}
}

func TestRestoreFromStore(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	first := action(model.ActionAlertAcknowledge, "a1")
	second := action(model.ActionApprovalProcess, "")
	if err := store.Save(ctx, "supervisor:42", []model.QueuedAction{first, second}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	q, err := New(ctx, "supervisor:42", store, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	got := q.Snapshot()
	if len(got) != 2 {
		t.Fatalf("restored %d actions, want 2", len(got))
	}
	if got[0].ID != first.ID || got[1].ID != second.ID {
		t.Errorf("restored order = [%s %s], want [%s %s]", got[0].ID, got[1].ID, first.ID, second.ID)
	}
}

func TestDrainFIFO(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()

	want := []model.QueuedAction{
		action(model.ActionAlertAcknowledge, "a1"),
		action(model.ActionAlertAcknowledge, "a2"),
		action(model.ActionAlertAcknowledge, "a3"),
	}
	for _, a := range want {
		if err := q.Enqueue(ctx, a); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	var sent []model.QueuedAction
	delivered, err := q.Drain(ctx, func(ctx context.Context, a model.QueuedAction) error {
		sent = append(sent, a)
		return nil
	})
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if delivered != 3 {
		t.Errorf("delivered = %d, want 3", delivered)
	}

	if len(sent) != 3 {
		t.Fatalf("sent %d actions, want 3", len(sent))
	}
	for i := range want {
		if sent[i].ID != want[i].ID {
			t.Errorf("sent[%d].ID = %s, want %s (FIFO order)", i, sent[i].ID, want[i].ID)
		}
	}

	if q.Len() != 0 {
		t.Errorf("Len = %d after full drain, want 0", q.Len())
	}
	persisted, _ := store.Load(ctx, "supervisor:42")
	if len(persisted) != 0 {
		t.Errorf("persisted %d actions after full drain, want 0", len(persisted))
	}
}

func TestDrainFailureRequeuesAtTailAndHalts(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()

	a1 := action(model.ActionAlertAcknowledge, "a1")
	a2 := action(model.ActionAlertAcknowledge, "a2")
	a3 := action(model.ActionAlertAcknowledge, "a3")
	for _, a := range []model.QueuedAction{a1, a2, a3} {
		if err := q.Enqueue(ctx, a); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	sendErr := errors.New("server unreachable")
	delivered, err := q.Drain(ctx, func(ctx context.Context, a model.QueuedAction) error {
		if a.ID == a2.ID {
			return sendErr
		}
		return nil
	})

	if !errors.Is(err, sendErr) {
		t.Fatalf("Drain error = %v, want %v", err, sendErr)
	}
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}

	// a1 delivered; a2 failed and moved to the tail; a3 untouched.
	got := q.Snapshot()
	if len(got) != 2 {
		t.Fatalf("Len = %d after halted drain, want 2", len(got))
	}
	if got[0].ID != a3.ID || got[1].ID != a2.ID {
		t.Errorf("queue order = [%s %s], want [%s %s] (failed action at tail)",
			got[0].ID, got[1].ID, a3.ID, a2.ID)
	}

	// The re-ordering must be persisted so a crash cannot lose it.
	persisted, _ := store.Load(ctx, "supervisor:42")
	if len(persisted) != 2 || persisted[0].ID != a3.ID || persisted[1].ID != a2.ID {
		t.Errorf("persisted order does not match in-memory queue after halt")
	}
}

func TestDrainDropsUndeliverable(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	bad := action("NO_SUCH_TYPE", "a1")
	good := action(model.ActionAlertAcknowledge, "a2")
	for _, a := range []model.QueuedAction{bad, good} {
		if err := q.Enqueue(ctx, a); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	var sent []model.QueuedAction
	delivered, err := q.Drain(ctx, func(ctx context.Context, a model.QueuedAction) error {
		if a.ID == bad.ID {
			return fmt.Errorf("%w: unknown type", ErrUndeliverable)
		}
		sent = append(sent, a)
		return nil
	})
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	// The undeliverable action is dropped, not delivered and not re-queued.
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
	if len(sent) != 1 || sent[0].ID != good.ID {
		t.Errorf("sent = %v, want only the deliverable action", sent)
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0 (undeliverable dropped)", q.Len())
	}
}

func TestDrainEmptyQueue(t *testing.T) {
	q, _ := newTestQueue(t)

	delivered, err := q.Drain(context.Background(), func(ctx context.Context, a model.QueuedAction) error {
		t.Error("sender called on empty queue")
		return nil
	})
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if delivered != 0 {
		t.Errorf("delivered = %d, want 0", delivered)
	}
}

func TestConcurrentDrainReturnsImmediately(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, action(model.ActionAlertAcknowledge, "a1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	block := make(chan struct{})
	started := make(chan struct{})
	firstDone := make(chan struct{})

	go func() {
		defer close(firstDone)
		q.Drain(ctx, func(ctx context.Context, a model.QueuedAction) error {
			close(started)
			<-block
			return nil
		})
	}()

	<-started

	// Second drain while the first is in flight: no-op.
	delivered, err := q.Drain(ctx, func(ctx context.Context, a model.QueuedAction) error {
		t.Error("second drain must not send")
		return nil
	})
	if err != nil {
		t.Fatalf("concurrent Drain error = %v, want nil", err)
	}
	if delivered != 0 {
		t.Errorf("concurrent Drain delivered = %d, want 0", delivered)
	}

	close(block)
	<-firstDone

	if q.Len() != 0 {
		t.Errorf("Len = %d after first drain finished, want 0", q.Len())
	}
}

func TestDrainStopsOnCancelledContext(t *testing.T) {
	q, _ := newTestQueue(t)

	if err := q.Enqueue(context.Background(), action(model.ActionAlertAcknowledge, "a1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	delivered, err := q.Drain(ctx, func(ctx context.Context, a model.QueuedAction) error {
		t.Error("sender called with cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Drain error = %v, want context.Canceled", err)
	}
	if delivered != 0 {
		t.Errorf("delivered = %d, want 0", delivered)
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1 (nothing lost on cancel)", q.Len())
	}
}
