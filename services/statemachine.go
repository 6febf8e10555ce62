package services

import (
	"fmt"
	"time"

	"stayhub/realtime-service/models"
)

// TransitionError reports a rejected status transition. The caller must
// perform no state change and emit no event when one is returned.
type TransitionError struct {
	From   models.TaskStatus
	To     models.TaskStatus
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s: %s", e.From, e.To, e.Reason)
}

// TransitionResult carries the side effects of an accepted transition,
// to be persisted by the caller together with the new status.
type TransitionResult struct {
	Status          models.TaskStatus
	ActualEnd       *time.Time
	DurationMinutes *int
}

// transitions maps each source status to its legal targets.
// CANCELLED and VERIFIED are terminal.
var transitions = map[models.TaskStatus][]models.TaskStatus{
	models.TaskStatusPending:    {models.TaskStatusAssigned, models.TaskStatusCancelled},
	models.TaskStatusAssigned:   {models.TaskStatusInProgress, models.TaskStatusPending, models.TaskStatusCancelled},
	models.TaskStatusInProgress: {models.TaskStatusPaused, models.TaskStatusCompleted, models.TaskStatusCancelled},
	models.TaskStatusPaused:     {models.TaskStatusInProgress, models.TaskStatusCancelled},
	models.TaskStatusCompleted:  {models.TaskStatusVerified},
	models.TaskStatusCancelled:  {},
	models.TaskStatusVerified:   {},
}

// StateMachine validates task status transitions before any persistence
// or event emission takes place.
type StateMachine struct {
	allowSelfVerify bool
}

func NewStateMachine(allowSelfVerify bool) *StateMachine {
	return &StateMachine{allowSelfVerify: allowSelfVerify}
}

// CanTransition reports whether the bare edge from -> to exists, ignoring guards
func (sm *StateMachine) CanTransition(from, to models.TaskStatus) bool {
	for _, target := range transitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition validates the edge and its guards against the supplied context.
// On acceptance it returns the new status plus any computed side effects; on
// rejection it returns a TransitionError and nothing has changed.
func (sm *StateMachine) Transition(from, to models.TaskStatus, ctx models.TransitionContext) (*TransitionResult, error) {
	if !sm.CanTransition(from, to) {
		return nil, &TransitionError{From: from, To: to, Reason: "no such transition"}
	}

	result := &TransitionResult{Status: to}

	switch to {
	case models.TaskStatusInProgress:
		if ctx.AssignedTo == nil || *ctx.AssignedTo == "" {
			return nil, &TransitionError{From: from, To: to, Reason: "task has no assignee"}
		}
	case models.TaskStatusCompleted:
		if ctx.ActualStart == nil {
			return nil, &TransitionError{From: from, To: to, Reason: "task was never started"}
		}
		end := time.Now()
		minutes := int(end.Sub(*ctx.ActualStart).Round(time.Minute) / time.Minute)
		result.ActualEnd = &end
		result.DurationMinutes = &minutes
	case models.TaskStatusVerified:
		if ctx.VerifiedBy == nil || *ctx.VerifiedBy == "" {
			return nil, &TransitionError{From: from, To: to, Reason: "no verifying identity supplied"}
		}
		if !sm.allowSelfVerify && ctx.AssignedTo != nil && *ctx.AssignedTo == *ctx.VerifiedBy {
			return nil, &TransitionError{From: from, To: to, Reason: "assignee may not verify their own work"}
		}
	}

	return result, nil
}
