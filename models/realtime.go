package models

import "time"

// Envelope is the wire shape of every outbound realtime message. Every
// delivery route (room broadcast, direct user send, exclusion send) uses it.
type Envelope struct {
	Kind       string      `json:"kind"`
	EntityType string      `json:"entityType"`
	Data       interface{} `json:"data"`
	ActorID    string      `json:"actorId,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

func NewEnvelope(kind, entityType string, data interface{}, actorID string) Envelope {
	return Envelope{
		Kind:       kind,
		EntityType: entityType,
		Data:       data,
		ActorID:    actorID,
		Timestamp:  time.Now(),
	}
}

// Outbound message kinds
const (
	KindConnected             = "connected"
	KindHeartbeatAck          = "heartbeat-ack"
	KindSuiteCreated          = "suite-created"
	KindSuiteUpdated          = "suite-updated"
	KindTaskCreated           = "task-created"
	KindTaskUpdated           = "task-updated"
	KindTaskAssigned          = "task-assigned"
	KindTaskAssignedBroadcast = "task-assigned-broadcast"
	KindTaskCompleted         = "task-completed"
	KindEmergencyTask         = "emergency-task"
	KindNoteCreated           = "note-created"
	KindEmployeeStatusChanged = "employee-status-changed"
)

// Inbound message kinds (client -> server)
const (
	InboundHeartbeat        = "heartbeat"
	InboundSubscribeSuite   = "subscribe-suite"
	InboundUnsubscribeSuite = "unsubscribe-suite"
	InboundSubscribeTask    = "subscribe-task"
	InboundUnsubscribeTask  = "unsubscribe-task"
)

// InboundMessage is the decoded shape of a client -> server message.
type InboundMessage struct {
	Kind      string `json:"kind"`
	SuiteID   string `json:"suiteId,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Room names form a closed set: the three automatic rooms plus
// per-entity subscriptions.
const RoomAllStaff = "all-staff"

func DepartmentRoom(department string) string {
	return "department:" + department
}

func RoleRoom(role string) string {
	return "role:" + role
}

func SuiteRoom(suiteID string) string {
	return "suite:" + suiteID
}

func TaskRoom(taskID string) string {
	return "task:" + taskID
}

// UserPresence is the record the Redis mirror publishes for external
// health/metrics consumers.
type UserPresence struct {
	UserID      string    `json:"user_id"`
	Role        string    `json:"role,omitempty"`
	Department  string    `json:"department,omitempty"`
	Connections int       `json:"connections"`
	LastSeen    time.Time `json:"last_seen"`
}

type StatusResponse struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}

type OnlineUsersResponse struct {
	Users       int `json:"users"`
	Connections int `json:"connections"`
}
