package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/swipswaps/paddle-ocr/internal/backend"
	"github.com/swipswaps/paddle-ocr/pkg/logger"
)

// ShellHandler proxies the backend's non-core endpoints so the browser
// only ever talks to one origin.
type ShellHandler struct {
	client *backend.Client
	logger logger.Logger
}

func NewShellHandler(client *backend.Client, log logger.Logger) *ShellHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ShellHandler{client: client, logger: log}
}

func (h *ShellHandler) Health(c *gin.Context) {
	health, err := h.client.Health(c.Request.Context())
	if err != nil {
		h.logger.Warn("health probe failed", logger.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "offline", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, health)
}

func (h *ShellHandler) ListScans(c *gin.Context) {
	scans, err := h.client.ListScans(c.Request.Context())
	if err != nil {
		h.logger.Error("list scans failed", logger.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": scans})
}

func (h *ShellHandler) DeleteScan(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scan id"})
		return
	}
	if err := h.client.DeleteScan(c.Request.Context(), id); err != nil {
		h.logger.Error("delete scan failed", logger.Int64("id", id), logger.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
