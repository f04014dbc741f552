package http

import (
	"net/http"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/services"
	"parley/internal/infrastructure/signal"
	apperrors "parley/pkg/errors"
	"parley/pkg/validation"

	"github.com/gin-gonic/gin"
)

// RoomHandler exposes the read-only room API used by clients before
// they open a websocket, plus the health probe.
type RoomHandler struct {
	coordinator *services.Coordinator
	table       *signal.ConnTable
}

func NewRoomHandler(coordinator *services.Coordinator, table *signal.ConnTable) *RoomHandler {
	return &RoomHandler{
		coordinator: coordinator,
		table:       table,
	}
}

func (h *RoomHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.GET("/check-room/:roomId", h.CheckRoom)
		api.GET("/rooms", h.ListRooms)
	}

	router.GET("/health", h.Health)
}

// CheckRoom reports whether the room can still be joined. A room that
// does not exist yet is available: it will be created on first join.
func (h *RoomHandler) CheckRoom(c *gin.Context) {
	roomID := c.Param("roomId")
	if err := validation.ValidateRoomID(roomID); err != nil {
		c.Error(apperrors.NewInvalidInput(err.Error()))
		return
	}

	status := h.coordinator.RoomStatus(domain.RoomID(roomID))

	switch {
	case !status.Exists:
		c.JSON(http.StatusOK, gin.H{
			"available": true,
			"exists":    false,
			"message":   "Room does not exist yet",
		})
	case status.Full:
		c.JSON(http.StatusOK, gin.H{
			"available": false,
			"exists":    true,
			"userCount": status.OccupantCount,
			"message":   "Room is full",
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"available": true,
			"exists":    true,
			"userCount": status.OccupantCount,
		})
	}
}

// ListRooms dumps every live room. Diagnostic endpoint.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms := h.coordinator.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"rooms": rooms,
		"count": len(rooms),
	})
}

func (h *RoomHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": h.table.Count(),
		"rooms":       len(h.coordinator.Snapshot()),
	})
}
