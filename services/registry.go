package services

import (
	"context"
	"sync"
	"time"

	"stayhub/realtime-service/models"
	"stayhub/realtime-service/utils"
)

// Sender delivers envelopes to one connection. The websocket handler's
// write pump implements it; sends must preserve call order per connection.
type Sender interface {
	SendEnvelope(env models.Envelope) error
}

// ConnectionRecord is the registry's view of one authenticated connection
type ConnectionRecord struct {
	ID         string
	UserID     string
	Role       string
	Department string
	JoinedAt   time.Time

	sender Sender
}

// PresenceSink receives presence updates for external consumers.
// All calls are fire-and-forget from the registry's point of view.
type PresenceSink interface {
	Touch(ctx context.Context, presence models.UserPresence)
	Remove(ctx context.Context, userID string)
}

// Registry owns the presence and room indices. It is the only holder of
// this state; all reads and writes go through its methods under one mutex.
type Registry struct {
	logger *utils.Logger
	mirror PresenceSink

	// Internal state
	mu          sync.Mutex
	connections map[string]*ConnectionRecord   // connection id -> record
	users       map[string]map[string]struct{} // user id -> set of connection ids
	rooms       map[string]map[string]struct{} // room -> set of connection ids
	connRooms   map[string]map[string]struct{} // connection id -> set of rooms
}

func NewRegistry(logger *utils.Logger, mirror PresenceSink) *Registry {
	return &Registry{
		logger:      logger,
		mirror:      mirror,
		connections: make(map[string]*ConnectionRecord),
		users:       make(map[string]map[string]struct{}),
		rooms:       make(map[string]map[string]struct{}),
		connRooms:   make(map[string]map[string]struct{}),
	}
}

// Register records a verified connection and auto-joins its standing rooms.
// Callers must only invoke this after the credential verifier has accepted
// the handshake; a rejected handshake never reaches the registry.
func (r *Registry) Register(connID, userID, role, department string, sender Sender) *ConnectionRecord {
	record := &ConnectionRecord{
		ID:         connID,
		UserID:     userID,
		Role:       role,
		Department: department,
		JoinedAt:   time.Now(),
		sender:     sender,
	}

	r.mu.Lock()
	r.connections[connID] = record
	if _, ok := r.users[userID]; !ok {
		r.users[userID] = make(map[string]struct{})
	}
	r.users[userID][connID] = struct{}{}

	r.joinLocked(connID, models.RoomAllStaff)
	if department != "" {
		r.joinLocked(connID, models.DepartmentRoom(department))
	}
	if role != "" {
		r.joinLocked(connID, models.RoleRoom(role))
	}
	connCount := len(r.users[userID])
	r.mu.Unlock()

	r.logger.Info("Connection registered", "connection_id", connID, "user_id", userID, "role", role, "department", department)

	if r.mirror != nil {
		go r.mirror.Touch(context.Background(), models.UserPresence{
			UserID:      userID,
			Role:        role,
			Department:  department,
			Connections: connCount,
			LastSeen:    time.Now(),
		})
	}

	return record
}

// Unregister tears down a connection: its room memberships, its entry in
// the inverse index, and, if this was the user's last connection, the user
// entry itself. IsOnline flips to false in the same critical section.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	record, ok := r.connections[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.connections, connID)

	for room := range r.connRooms[connID] {
		r.leaveLocked(connID, room)
	}
	delete(r.connRooms, connID)

	userGone := false
	if set, ok := r.users[record.UserID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.users, record.UserID)
			userGone = true
		}
	}
	r.mu.Unlock()

	r.logger.Info("Connection unregistered", "connection_id", connID, "user_id", record.UserID)

	if r.mirror != nil && userGone {
		go r.mirror.Remove(context.Background(), record.UserID)
	}
}

// Join adds a connection to a room. Joining a room twice is a no-op.
func (r *Registry) Join(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[connID]; !ok {
		return
	}
	r.joinLocked(connID, room)
}

// Leave removes a connection from a room. Leaving a room the connection is
// not in is a no-op.
func (r *Registry) Leave(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, room)
}

func (r *Registry) joinLocked(connID, room string) {
	if _, ok := r.rooms[room]; !ok {
		r.rooms[room] = make(map[string]struct{})
	}
	r.rooms[room][connID] = struct{}{}

	if _, ok := r.connRooms[connID]; !ok {
		r.connRooms[connID] = make(map[string]struct{})
	}
	r.connRooms[connID][room] = struct{}{}
}

func (r *Registry) leaveLocked(connID, room string) {
	if set, ok := r.rooms[room]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.rooms, room)
		}
	}
	if set, ok := r.connRooms[connID]; ok {
		delete(set, room)
	}
}

// IsOnline reports whether the user has at least one live connection
func (r *Registry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users[userID]) > 0
}

// CountUsers returns the number of distinct online users
func (r *Registry) CountUsers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// CountConnections returns the number of live connections
func (r *Registry) CountConnections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connections)
}

// OnlineUserIDs returns a snapshot of the online user ids
func (r *Registry) OnlineUserIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	return ids
}

// BroadcastToRoom sends the envelope to every connection in the room.
// Delivery is best-effort: a failed send is logged and dropped.
func (r *Registry) BroadcastToRoom(room string, env models.Envelope) {
	for _, record := range r.roomMembers(room, "") {
		r.deliver(record, env)
	}
}

// BroadcastToRoomExcept sends to every connection in the room except those
// belonging to exceptUserID. Exclusion is by user, not by connection: all of
// the acting user's devices are skipped.
func (r *Registry) BroadcastToRoomExcept(room, exceptUserID string, env models.Envelope) {
	for _, record := range r.roomMembers(room, exceptUserID) {
		r.deliver(record, env)
	}
}

// SendToUser fans the envelope out across every connection the user holds
func (r *Registry) SendToUser(userID string, env models.Envelope) {
	r.mu.Lock()
	records := make([]*ConnectionRecord, 0, len(r.users[userID]))
	for connID := range r.users[userID] {
		if record, ok := r.connections[connID]; ok {
			records = append(records, record)
		}
	}
	r.mu.Unlock()

	for _, record := range records {
		r.deliver(record, env)
	}
}

func (r *Registry) roomMembers(room, exceptUserID string) []*ConnectionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]*ConnectionRecord, 0, len(r.rooms[room]))
	for connID := range r.rooms[room] {
		record, ok := r.connections[connID]
		if !ok {
			continue
		}
		if exceptUserID != "" && record.UserID == exceptUserID {
			continue
		}
		records = append(records, record)
	}
	return records
}

func (r *Registry) deliver(record *ConnectionRecord, env models.Envelope) {
	if err := record.sender.SendEnvelope(env); err != nil {
		r.logger.Warn("Dropped delivery to dead connection", "connection_id", record.ID, "user_id", record.UserID, "kind", env.Kind, "error", err)
	}
}

// TouchPresence refreshes the mirror entry for a user, keeping its TTL
// alive while heartbeats arrive.
func (r *Registry) TouchPresence(userID string) {
	if r.mirror == nil {
		return
	}

	r.mu.Lock()
	connCount := len(r.users[userID])
	var role, department string
	for connID := range r.users[userID] {
		if record, ok := r.connections[connID]; ok {
			role, department = record.Role, record.Department
			break
		}
	}
	r.mu.Unlock()

	if connCount == 0 {
		return
	}
	go r.mirror.Touch(context.Background(), models.UserPresence{
		UserID:      userID,
		Role:        role,
		Department:  department,
		Connections: connCount,
		LastSeen:    time.Now(),
	})
}
