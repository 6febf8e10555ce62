package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stayhub/realtime-service/models"
	"stayhub/realtime-service/services"
	"stayhub/realtime-service/utils"
)

// PresenceHandler exposes the registry's presence queries to health and
// metrics consumers. All queries are O(1) or snapshot reads on the registry.
type PresenceHandler struct {
	registry *services.Registry
	logger   *utils.Logger
}

func NewPresenceHandler(registry *services.Registry, logger *utils.Logger) *PresenceHandler {
	return &PresenceHandler{
		registry: registry,
		logger:   logger,
	}
}

// GetStatus handles GET /presence/status?user_id=
func (ph *PresenceHandler) GetStatus(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "user_id parameter is required",
		})
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{
		UserID:   userID,
		IsOnline: ph.registry.IsOnline(userID),
	})
}

// GetOnline handles GET /presence/online
func (ph *PresenceHandler) GetOnline(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"counts": models.OnlineUsersResponse{
			Users:       ph.registry.CountUsers(),
			Connections: ph.registry.CountConnections(),
		},
		"user_ids": ph.registry.OnlineUserIDs(),
	})
}
