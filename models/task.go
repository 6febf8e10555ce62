package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JSONB type for PostgreSQL JSONB fields
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONB)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// TaskStatus enumerates the task lifecycle states
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusAssigned   TaskStatus = "ASSIGNED"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusPaused     TaskStatus = "PAUSED"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
	TaskStatusVerified   TaskStatus = "VERIFIED"
)

// TransitionContext carries the facts the transition guard needs,
// supplied by the caller from the current persisted task.
type TransitionContext struct {
	AssignedTo  *string
	ActualStart *time.Time
	ActualEnd   *time.Time
	VerifiedBy  *string
}

// Task represents a maintenance/housekeeping task on a suite
type Task struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	Title           string     `json:"title" gorm:"not null" binding:"required"`
	Description     string     `json:"description"`
	Status          TaskStatus `json:"status" gorm:"default:PENDING"`
	Priority        string     `json:"priority" gorm:"default:NORMAL"`
	IsEmergency     bool       `json:"is_emergency" gorm:"default:false"`
	SuiteID         *uuid.UUID `json:"suite_id" gorm:"type:uuid"`
	AssignedTo      *string    `json:"assigned_to"`
	ActualStart     *time.Time `json:"actual_start"`
	ActualEnd       *time.Time `json:"actual_end"`
	DurationMinutes *int       `json:"duration_minutes"`
	VerifiedBy      *string    `json:"verified_by"`
	Version         int        `json:"version" gorm:"default:0"`
	Metadata        JSONB      `json:"metadata" gorm:"type:jsonb;default:'{}'"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CreatedBy       string     `json:"created_by"`
}

func (Task) TableName() string {
	return "realtime.tasks"
}

// Context builds the guard's view of the task's current persisted facts.
func (t *Task) Context() TransitionContext {
	return TransitionContext{
		AssignedTo:  t.AssignedTo,
		ActualStart: t.ActualStart,
		ActualEnd:   t.ActualEnd,
		VerifiedBy:  t.VerifiedBy,
	}
}

// Suite represents a property suite
type Suite struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	Number    string    `json:"number" gorm:"not null"`
	Status    string    `json:"status" gorm:"default:AVAILABLE"`
	Floor     int       `json:"floor"`
	Metadata  JSONB     `json:"metadata" gorm:"type:jsonb;default:'{}'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Suite) TableName() string {
	return "realtime.suites"
}

// Request/Response DTOs
type TransitionRequest struct {
	Status     TaskStatus `json:"status" binding:"required"`
	AssignedTo *string    `json:"assigned_to"`
	VerifiedBy *string    `json:"verified_by"`
}
