package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"stayhub/realtime-service/utils"
)

// fakeAPIClient records replay calls and fails on demand
type fakeAPIClient struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error // "CREATE task/t1" -> error
}

func (f *fakeAPIClient) record(op, entityType, entityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%s %s/%s", op, entityType, entityID)
	f.calls = append(f.calls, key)
	if err, ok := f.fail[key]; ok {
		return err
	}
	return nil
}

func (f *fakeAPIClient) Create(ctx context.Context, entityType string, data map[string]interface{}) error {
	return f.record("CREATE", entityType, data["id"].(string))
}

func (f *fakeAPIClient) Update(ctx context.Context, entityType, entityID string, data map[string]interface{}) error {
	return f.record("UPDATE", entityType, entityID)
}

func (f *fakeAPIClient) Delete(ctx context.Context, entityType, entityID string) error {
	return f.record("DELETE", entityType, entityID)
}

func (f *fakeAPIClient) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestQueue(api APIClient) *PendingQueue {
	return NewPendingQueue(api, utils.NewLogger())
}

func TestCreateThenUpdateMergesIntoCreate(t *testing.T) {
	q := newTestQueue(&fakeAPIClient{})

	q.Add("task", "t1", OpCreate, map[string]interface{}{"id": "t1", "title": "X"})
	q.Add("task", "t1", OpUpdate, map[string]interface{}{"title": "Y", "priority": "HIGH"})

	changes := q.Changes()
	if len(changes) != 1 {
		t.Fatalf("expected 1 pending record, got %d", len(changes))
	}
	change := changes[0]
	if change.Operation != OpCreate {
		t.Fatalf("expected CREATE, got %s", change.Operation)
	}
	if change.Data["title"] != "Y" || change.Data["priority"] != "HIGH" || change.Data["id"] != "t1" {
		t.Fatalf("merge wrong: %v", change.Data)
	}
}

func TestUpdateThenDeleteBecomesDelete(t *testing.T) {
	q := newTestQueue(&fakeAPIClient{})

	q.Add("task", "t1", OpUpdate, map[string]interface{}{"title": "X"})
	q.Add("task", "t1", OpDelete, nil)

	changes := q.Changes()
	if len(changes) != 1 || changes[0].Operation != OpDelete {
		t.Fatalf("expected single DELETE, got %v", changes)
	}
	if changes[0].Data != nil {
		t.Fatalf("DELETE must not carry data: %v", changes[0].Data)
	}
}

func TestCreateThenDeleteCancelsOutright(t *testing.T) {
	api := &fakeAPIClient{}
	q := newTestQueue(api)

	q.Add("task", "t1", OpCreate, map[string]interface{}{"id": "t1"})
	q.Add("task", "t1", OpDelete, nil)

	if got := q.Len(); got != 0 {
		t.Fatalf("cancelled creation should leave an empty queue, got %d", got)
	}

	// And zero network calls ever happen for it
	if err := q.Sync(context.Background()); err != nil {
		t.Fatalf("sync of empty queue errored: %v", err)
	}
	if calls := api.callList(); len(calls) != 0 {
		t.Fatalf("cancellation must produce zero network calls, got %v", calls)
	}
}

func TestUpdateThenUpdateReplaces(t *testing.T) {
	q := newTestQueue(&fakeAPIClient{})

	q.Add("task", "t1", OpUpdate, map[string]interface{}{"title": "X"})
	q.Add("task", "t1", OpUpdate, map[string]interface{}{"priority": "HIGH"})

	changes := q.Changes()
	if len(changes) != 1 {
		t.Fatalf("expected 1 record, got %d", len(changes))
	}
	if _, ok := changes[0].Data["title"]; ok {
		t.Fatalf("plain replacement must not merge: %v", changes[0].Data)
	}
}

func TestAtMostOneRecordPerEntity(t *testing.T) {
	q := newTestQueue(&fakeAPIClient{})

	q.Add("task", "t1", OpCreate, map[string]interface{}{"id": "t1"})
	q.Add("task", "t1", OpUpdate, map[string]interface{}{"a": 1})
	q.Add("task", "t1", OpUpdate, map[string]interface{}{"b": 2})
	q.Add("task", "t2", OpUpdate, map[string]interface{}{"c": 3})
	q.Add("suite", "t1", OpUpdate, map[string]interface{}{"d": 4})

	if got := q.Len(); got != 3 {
		t.Fatalf("expected one record per (entityType, entityId), got %d", got)
	}
}

func TestSyncReplaysSequentiallyAndClears(t *testing.T) {
	api := &fakeAPIClient{}
	q := newTestQueue(api)

	q.Add("task", "t1", OpCreate, map[string]interface{}{"id": "t1"})
	q.Add("suite", "s1", OpUpdate, map[string]interface{}{"status": "CLEANING"})
	q.Add("note", "n1", OpDelete, nil)

	if err := q.Sync(context.Background()); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	calls := api.callList()
	want := []string{"CREATE task/t1", "UPDATE suite/s1", "DELETE note/n1"}
	if len(calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("replay order wrong: expected %v, got %v", want, calls)
		}
	}

	if got := q.Len(); got != 0 {
		t.Fatalf("succeeded entries must be removed, %d left", got)
	}
	if q.LastSyncedAt().IsZero() {
		t.Fatal("completion timestamp was not recorded")
	}
}

func TestSyncKeepsFailedEntriesQueued(t *testing.T) {
	api := &fakeAPIClient{fail: map[string]error{
		"UPDATE suite/s1": errors.New("server unavailable"),
	}}
	q := newTestQueue(api)

	q.Add("task", "t1", OpCreate, map[string]interface{}{"id": "t1"})
	q.Add("suite", "s1", OpUpdate, map[string]interface{}{"status": "CLEANING"})
	q.Add("note", "n1", OpDelete, nil)

	err := q.Sync(context.Background())
	if err == nil {
		t.Fatal("expected aggregate failure")
	}

	// The batch was not aborted: all three calls were attempted
	if calls := api.callList(); len(calls) != 3 {
		t.Fatalf("per-entry failure must not abort the batch, got %v", calls)
	}

	changes := q.Changes()
	if len(changes) != 1 || changes[0].EntityID != "s1" {
		t.Fatalf("only the failed entry should remain, got %v", changes)
	}

	// Next attempt retries just the failure
	api.mu.Lock()
	api.fail = nil
	api.mu.Unlock()
	if err := q.Sync(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got := q.Len(); got != 0 {
		t.Fatalf("queue should drain after retry, %d left", got)
	}
}

func TestSyncIsGuardedNoOp(t *testing.T) {
	api := &fakeAPIClient{}
	q := newTestQueue(api)

	// Empty queue
	if err := q.Sync(context.Background()); err != nil {
		t.Fatalf("empty-queue sync errored: %v", err)
	}

	// Offline
	q.SetOnline(context.Background(), false)
	q.Add("task", "t1", OpUpdate, map[string]interface{}{"title": "X"})
	if err := q.Sync(context.Background()); err != nil {
		t.Fatalf("offline sync errored: %v", err)
	}
	if calls := api.callList(); len(calls) != 0 {
		t.Fatalf("offline sync must not touch the network, got %v", calls)
	}
}

func TestGoingOnlineTriggersSync(t *testing.T) {
	api := &fakeAPIClient{}
	q := newTestQueue(api)

	q.SetOnline(context.Background(), false)
	q.Add("task", "t1", OpUpdate, map[string]interface{}{"title": "X"})

	q.SetOnline(context.Background(), true)

	if calls := api.callList(); len(calls) != 1 {
		t.Fatalf("online transition with a non-empty queue must sync, got %v", calls)
	}
	if got := q.Len(); got != 0 {
		t.Fatalf("queue should drain, %d left", got)
	}
}

// blockingAPIClient parks Update calls until released, so tests can mutate
// the queue while a replay is in flight
type blockingAPIClient struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingAPIClient) Create(ctx context.Context, entityType string, data map[string]interface{}) error {
	return nil
}

func (b *blockingAPIClient) Update(ctx context.Context, entityType, entityID string, data map[string]interface{}) error {
	b.started <- struct{}{}
	<-b.release
	return nil
}

func (b *blockingAPIClient) Delete(ctx context.Context, entityType, entityID string) error {
	return nil
}

func TestMergeMintsFreshRecordID(t *testing.T) {
	q := newTestQueue(&fakeAPIClient{})

	q.Add("task", "t1", OpCreate, map[string]interface{}{"id": "t1"})
	before := q.Changes()[0].ID

	q.Add("task", "t1", OpUpdate, map[string]interface{}{"title": "Y"})
	after := q.Changes()[0].ID

	if before == after {
		t.Fatal("merged record kept its pre-merge id")
	}
}

func TestMergeDuringReplayIsNotLost(t *testing.T) {
	api := &blockingAPIClient{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	q := newTestQueue(api)

	q.Add("task", "t1", OpUpdate, map[string]interface{}{"title": "old"})

	done := make(chan error, 1)
	go func() { done <- q.Sync(context.Background()) }()
	<-api.started

	// New data arrives while the pre-merge version is on the wire
	q.Add("task", "t1", OpUpdate, map[string]interface{}{"title": "new"})
	close(api.release)

	if err := <-done; err != nil {
		t.Fatalf("sync errored: %v", err)
	}

	changes := q.Changes()
	if len(changes) != 1 {
		t.Fatalf("merged record was dropped with the replayed batch: %v", changes)
	}
	if changes[0].Data["title"] != "new" {
		t.Fatalf("expected post-merge data to survive, got %v", changes[0].Data)
	}
}
