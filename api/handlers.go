package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/eddielth/machine-bridge/logger"
)

// ListReadings returns every stored reading as a JSON array.
func (h *Handler) ListReadings(c *gin.Context) {
	readings, err := h.deps.Readings.List(c.Request.Context())
	if err != nil {
		logger.Error("failed to list readings: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list readings"})
		return
	}

	c.JSON(http.StatusOK, readings)
}

// PublishCommand sends the raw command string on the alert topic.
func (h *Handler) PublishCommand(c *gin.Context) {
	comando := strings.TrimSpace(c.Param("comando"))
	if comando == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty command"})
		return
	}

	if err := h.deps.Publisher.Publish(c.Request.Context(), h.deps.PublishTopic, []byte(comando)); err != nil {
		logger.Error("failed to publish command %q: %v", comando, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to publish command"})
		return
	}

	logger.Info("command published: %s", comando)
	c.JSON(http.StatusAccepted, gin.H{"status": "published", "topic": h.deps.PublishTopic, "comando": comando})
}

func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Status())
}

// LiveFeed upgrades the connection and streams hub events to it.
func (h *Handler) LiveFeed(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed: %v", err)
		return
	}

	client := &Client{hub: h.deps.Hub, conn: conn, send: make(chan []byte, broadcastBuffer)}
	if !h.deps.Hub.join(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
