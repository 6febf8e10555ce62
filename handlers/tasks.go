package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"stayhub/realtime-service/models"
	"stayhub/realtime-service/services"
	"stayhub/realtime-service/utils"
)

// TaskHandler covers the slice of the task surface that drives the realtime
// layer: creation (so created/emergency events have a producer) and the
// guarded status transition.
type TaskHandler struct {
	db           *gorm.DB
	stateMachine *services.StateMachine
	bus          *services.EventBus
	logger       *utils.Logger
}

func NewTaskHandler(db *gorm.DB, stateMachine *services.StateMachine, bus *services.EventBus, logger *utils.Logger) *TaskHandler {
	return &TaskHandler{
		db:           db,
		stateMachine: stateMachine,
		bus:          bus,
		logger:       logger,
	}
}

type createTaskRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	IsEmergency bool       `json:"is_emergency"`
	SuiteID     *uuid.UUID `json:"suite_id"`
}

// CreateTask handles POST /api/v1/tasks
func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	userID, _ := c.Get("userID")
	actorID, _ := userID.(string)

	task := models.Task{
		ID:          uuid.New(),
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		IsEmergency: req.IsEmergency,
		SuiteID:     req.SuiteID,
		Status:      models.TaskStatusPending,
		CreatedBy:   actorID,
	}
	if task.Priority == "" {
		task.Priority = "NORMAL"
	}

	if err := h.db.Create(&task).Error; err != nil {
		h.logger.Error("Failed to create task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create task",
		})
		return
	}

	eventType := models.EventTaskCreated
	if task.IsEmergency {
		eventType = models.EventEmergencyTaskCreated
	}
	h.bus.Publish(models.DomainEvent{
		Type:       eventType,
		EntityType: "task",
		EntityID:   task.ID.String(),
		ActorID:    actorID,
		SuiteID:    suiteIDString(task.SuiteID),
		Data:       task,
		OccurredAt: time.Now(),
	})

	h.logger.Info("Task created", "id", task.ID, "title", task.Title, "emergency", task.IsEmergency)
	c.JSON(http.StatusCreated, task)
}

// Transition handles PUT /api/v1/tasks/:id/status. The guard runs strictly
// before persistence; a rejected transition writes nothing and emits nothing.
// The write carries an optimistic version check so two concurrent requests
// cannot both land on the same snapshot.
func (h *TaskHandler) Transition(c *gin.Context) {
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid task id",
		})
		return
	}

	var req models.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	var task models.Task
	if err := h.db.First(&task, taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Task not found",
			})
			return
		}
		h.logger.Error("Failed to fetch task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to fetch task",
		})
		return
	}

	userID, _ := c.Get("userID")
	actorID, _ := userID.(string)

	// Request-supplied facts join the persisted snapshot for the guard
	ctx := task.Context()
	if req.Status == models.TaskStatusAssigned && req.AssignedTo != nil {
		ctx.AssignedTo = req.AssignedTo
	}
	if req.VerifiedBy != nil {
		ctx.VerifiedBy = req.VerifiedBy
	}

	result, err := h.stateMachine.Transition(task.Status, req.Status, ctx)
	if err != nil {
		var terr *services.TransitionError
		if errors.As(err, &terr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": terr.Error(),
			})
			return
		}
		h.logger.Error("Transition validation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Transition validation failed",
		})
		return
	}

	updates := map[string]interface{}{
		"status":  result.Status,
		"version": task.Version + 1,
	}
	switch req.Status {
	case models.TaskStatusAssigned:
		if req.AssignedTo != nil {
			updates["assigned_to"] = *req.AssignedTo
		}
	case models.TaskStatusInProgress:
		if task.ActualStart == nil {
			updates["actual_start"] = time.Now()
		}
	case models.TaskStatusCompleted:
		updates["actual_end"] = result.ActualEnd
		updates["duration_minutes"] = result.DurationMinutes
	case models.TaskStatusVerified:
		updates["verified_by"] = *ctx.VerifiedBy
	}

	res := h.db.Model(&models.Task{}).
		Where("id = ? AND version = ?", taskID, task.Version).
		Updates(updates)
	if res.Error != nil {
		h.logger.Error("Failed to update task", "error", res.Error)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to update task",
		})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Task was modified concurrently, retry with fresh state",
		})
		return
	}

	if err := h.db.First(&task, taskID).Error; err != nil {
		h.logger.Error("Failed to reload task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to reload task",
		})
		return
	}

	h.publishTransitionEvent(&task, actorID)

	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) publishTransitionEvent(task *models.Task, actorID string) {
	event := models.DomainEvent{
		EntityType: "task",
		EntityID:   task.ID.String(),
		ActorID:    actorID,
		SuiteID:    suiteIDString(task.SuiteID),
		Data:       task,
		OccurredAt: time.Now(),
	}

	switch task.Status {
	case models.TaskStatusAssigned:
		event.Type = models.EventTaskAssigned
		if task.AssignedTo != nil {
			event.AssigneeID = *task.AssignedTo
		}
	case models.TaskStatusCompleted:
		event.Type = models.EventTaskCompleted
	default:
		event.Type = models.EventTaskStatusChanged
	}

	h.bus.Publish(event)
}

func suiteIDString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
