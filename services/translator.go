package services

import (
	"stayhub/realtime-service/models"
	"stayhub/realtime-service/utils"
)

// emergencyRoles are the only roles notified of emergency tasks
var emergencyRoles = []string{"SUPERVISOR", "MANAGER", "ADMIN"}

// Translator maps domain events to targeted realtime deliveries. It
// subscribes once, at startup, to each event type it knows about; delivery
// is fire-and-forget and never feeds back into the business transaction.
type Translator struct {
	registry *Registry
	logger   *utils.Logger
}

func NewTranslator(registry *Registry, logger *utils.Logger) *Translator {
	return &Translator{
		registry: registry,
		logger:   logger,
	}
}

// Start registers one handler per domain event type on the bus
func (t *Translator) Start(bus *EventBus) {
	bus.Subscribe(models.EventTaskCreated, t.handleTaskCreated)
	bus.Subscribe(models.EventTaskAssigned, t.handleTaskAssigned)
	bus.Subscribe(models.EventTaskStatusChanged, t.handleTaskStatusChanged)
	bus.Subscribe(models.EventTaskCompleted, t.handleTaskCompleted)
	bus.Subscribe(models.EventEmergencyTaskCreated, t.handleEmergencyTask)
	bus.Subscribe(models.EventSuiteCreated, t.handleSuiteCreated)
	bus.Subscribe(models.EventSuiteStatusChanged, t.handleSuiteStatusChanged)
	bus.Subscribe(models.EventNoteCreated, t.handleNoteCreated)
	bus.Subscribe(models.EventEmployeeStatusChanged, t.handleEmployeeStatusChanged)
}

func (t *Translator) handleTaskCreated(event models.DomainEvent) {
	env := models.NewEnvelope(models.KindTaskCreated, event.EntityType, event.Data, event.ActorID)
	t.registry.BroadcastToRoom(models.RoomAllStaff, env)
}

// handleTaskAssigned sends to the assignee directly and broadcasts a
// separate visibility message to all staff.
func (t *Translator) handleTaskAssigned(event models.DomainEvent) {
	if event.AssigneeID != "" {
		t.registry.SendToUser(event.AssigneeID, models.NewEnvelope(models.KindTaskAssigned, event.EntityType, event.Data, event.ActorID))
	}
	t.registry.BroadcastToRoom(models.RoomAllStaff, models.NewEnvelope(models.KindTaskAssignedBroadcast, event.EntityType, event.Data, event.ActorID))
}

// handleTaskStatusChanged notifies all staff except the acting user (all of
// their connections, not just the originating one) plus task subscribers.
func (t *Translator) handleTaskStatusChanged(event models.DomainEvent) {
	env := models.NewEnvelope(models.KindTaskUpdated, event.EntityType, event.Data, event.ActorID)
	t.registry.BroadcastToRoomExcept(models.RoomAllStaff, event.ActorID, env)
	t.registry.BroadcastToRoom(models.TaskRoom(event.EntityID), env)
}

func (t *Translator) handleTaskCompleted(event models.DomainEvent) {
	env := models.NewEnvelope(models.KindTaskCompleted, event.EntityType, event.Data, event.ActorID)
	t.registry.BroadcastToRoom(models.RoomAllStaff, env)
	if event.SuiteID != "" {
		t.registry.BroadcastToRoom(models.SuiteRoom(event.SuiteID), env)
	}
}

// handleEmergencyTask notifies supervisory roles only, never all-staff
func (t *Translator) handleEmergencyTask(event models.DomainEvent) {
	env := models.NewEnvelope(models.KindEmergencyTask, event.EntityType, event.Data, event.ActorID)
	for _, role := range emergencyRoles {
		t.registry.BroadcastToRoom(models.RoleRoom(role), env)
	}
}

func (t *Translator) handleSuiteCreated(event models.DomainEvent) {
	env := models.NewEnvelope(models.KindSuiteCreated, event.EntityType, event.Data, event.ActorID)
	t.registry.BroadcastToRoom(models.RoomAllStaff, env)
}

func (t *Translator) handleSuiteStatusChanged(event models.DomainEvent) {
	env := models.NewEnvelope(models.KindSuiteUpdated, event.EntityType, event.Data, event.ActorID)
	t.registry.BroadcastToRoomExcept(models.RoomAllStaff, event.ActorID, env)
	t.registry.BroadcastToRoom(models.SuiteRoom(event.EntityID), env)
}

func (t *Translator) handleNoteCreated(event models.DomainEvent) {
	env := models.NewEnvelope(models.KindNoteCreated, event.EntityType, event.Data, event.ActorID)
	t.registry.BroadcastToRoom(models.RoomAllStaff, env)
}

func (t *Translator) handleEmployeeStatusChanged(event models.DomainEvent) {
	env := models.NewEnvelope(models.KindEmployeeStatusChanged, event.EntityType, event.Data, event.ActorID)
	t.registry.BroadcastToRoom(models.RoomAllStaff, env)
}
