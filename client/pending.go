package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"stayhub/realtime-service/utils"
)

// Operation is the kind of local mutation a pending change carries
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// PendingChange is one queued local mutation awaiting network replay
type PendingChange struct {
	ID         string                 `json:"id"`
	EntityType string                 `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	Operation  Operation              `json:"operation"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// PendingQueue buffers local mutations made while offline and replays them
// once connectivity returns. Merge-on-insert keeps at most one record per
// (entityType, entityId) pair at all times.
type PendingQueue struct {
	api    APIClient
	logger *utils.Logger

	mu           sync.Mutex
	online       bool
	syncing      bool
	changes      []PendingChange
	lastSyncedAt time.Time
}

func NewPendingQueue(api APIClient, logger *utils.Logger) *PendingQueue {
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &PendingQueue{
		api:    api,
		logger: logger,
		online: true,
	}
}

// Add records a local mutation, merging with any existing record for the
// same entity:
//   - CREATE + UPDATE folds into the CREATE with the data shallow-merged
//   - CREATE + DELETE cancels both (the entity never existed remotely)
//   - UPDATE + DELETE keeps only the DELETE
//   - anything else: the new change replaces the old outright
func (q *PendingQueue) Add(entityType, entityID string, op Operation, data map[string]interface{}) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.findLocked(entityType, entityID)
	if idx < 0 {
		q.changes = append(q.changes, PendingChange{
			ID:         uuid.New().String(),
			EntityType: entityType,
			EntityID:   entityID,
			Operation:  op,
			Data:       data,
			Timestamp:  time.Now(),
		})
		return
	}

	// Every merge mints a fresh record id. Sync removes replayed entries
	// by id, so a record merged into while its pre-merge version is
	// mid-replay no longer matches and survives for the next batch.
	existing := &q.changes[idx]
	switch {
	case existing.Operation == OpCreate && op == OpUpdate:
		merged := make(map[string]interface{}, len(existing.Data)+len(data))
		for key, value := range existing.Data {
			merged[key] = value
		}
		for key, value := range data {
			merged[key] = value
		}
		existing.ID = uuid.New().String()
		existing.Data = merged
		existing.Timestamp = time.Now()

	case existing.Operation == OpCreate && op == OpDelete:
		// A creation that never synced is cancelled outright: zero
		// network calls for this entity.
		q.changes = append(q.changes[:idx], q.changes[idx+1:]...)

	case existing.Operation == OpUpdate && op == OpDelete:
		existing.ID = uuid.New().String()
		existing.Operation = OpDelete
		existing.Data = nil
		existing.Timestamp = time.Now()

	default:
		existing.ID = uuid.New().String()
		existing.Operation = op
		existing.Data = data
		existing.Timestamp = time.Now()
	}
}

// Changes returns a snapshot of the queued changes in replay order
func (q *PendingQueue) Changes() []PendingChange {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := make([]PendingChange, len(q.changes))
	copy(snapshot, q.changes)
	return snapshot
}

// Len returns the number of queued changes
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.changes)
}

// LastSyncedAt returns when the last replay batch finished
func (q *PendingQueue) LastSyncedAt() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastSyncedAt
}

// SetOnline records a connectivity change. Going online with a non-empty
// queue triggers a sync attempt; going offline only surfaces a warning.
func (q *PendingQueue) SetOnline(ctx context.Context, online bool) {
	q.mu.Lock()
	wasOnline := q.online
	q.online = online
	pending := len(q.changes)
	q.mu.Unlock()

	if online && !wasOnline && pending > 0 {
		if err := q.Sync(ctx); err != nil {
			q.logger.Warn("Automatic sync after reconnect incomplete", "error", err)
		}
		return
	}
	if !online && wasOnline && pending > 0 {
		q.logger.Warn("Went offline with pending changes queued", "pending", pending)
	}
}

// Sync replays the queue sequentially, one network call per entry. It is a
// guarded no-op when offline, already syncing, or empty. Per-entry failures
// are collected without aborting the batch; failed entries stay queued for
// the next attempt.
func (q *PendingQueue) Sync(ctx context.Context) error {
	q.mu.Lock()
	if !q.online || q.syncing || len(q.changes) == 0 {
		q.mu.Unlock()
		return nil
	}
	q.syncing = true
	batch := make([]PendingChange, len(q.changes))
	copy(batch, q.changes)
	q.mu.Unlock()

	var failures []string
	succeeded := make(map[string]struct{})
	for _, change := range batch {
		if err := q.replay(ctx, change); err != nil {
			q.logger.Warn("Pending change replay failed", "entity_type", change.EntityType, "entity_id", change.EntityID, "operation", change.Operation, "error", err)
			failures = append(failures, fmt.Sprintf("%s %s/%s: %v", change.Operation, change.EntityType, change.EntityID, err))
			continue
		}
		succeeded[change.ID] = struct{}{}
	}

	q.mu.Lock()
	remaining := q.changes[:0]
	for _, change := range q.changes {
		if _, ok := succeeded[change.ID]; !ok {
			remaining = append(remaining, change)
		}
	}
	q.changes = remaining
	q.lastSyncedAt = time.Now()
	q.syncing = false
	q.mu.Unlock()

	if len(failures) > 0 {
		return fmt.Errorf("%d of %d pending changes failed: %v", len(failures), len(batch), failures)
	}
	return nil
}

func (q *PendingQueue) replay(ctx context.Context, change PendingChange) error {
	switch change.Operation {
	case OpCreate:
		return q.api.Create(ctx, change.EntityType, change.Data)
	case OpUpdate:
		return q.api.Update(ctx, change.EntityType, change.EntityID, change.Data)
	case OpDelete:
		return q.api.Delete(ctx, change.EntityType, change.EntityID)
	default:
		return fmt.Errorf("unknown operation %q", change.Operation)
	}
}

func (q *PendingQueue) findLocked(entityType, entityID string) int {
	for i, change := range q.changes {
		if change.EntityType == entityType && change.EntityID == entityID {
			return i
		}
	}
	return -1
}
