package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/swipswaps/paddle-ocr/internal/models"
	"github.com/swipswaps/paddle-ocr/internal/orchestrator"
	"github.com/swipswaps/paddle-ocr/internal/upload"
	"github.com/swipswaps/paddle-ocr/pkg/logger"
)

// maxUploadBytes caps shell uploads; the backend rejects oversized
// files anyway, this just fails earlier.
const maxUploadBytes = 50 << 20

type JobHandler struct {
	runner *orchestrator.Runner
	hub    *Hub
	logger logger.Logger
}

// JobResponse is what the browser gets back from a finished job.
type JobResponse struct {
	JobID  string            `json:"jobId"`
	Phase  string            `json:"phase"`
	Result *models.OcrResult `json:"result,omitempty"`
	Log    []models.LogEntry `json:"log"`
}

// ErrorResponse mirrors the backend's error shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewJobHandler(runner *orchestrator.Runner, hub *Hub, log logger.Logger) *JobHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &JobHandler{runner: runner, hub: hub, logger: log}
}

// Run accepts a multipart upload and drives one recognition job to its
// reconciled result, re-broadcasting every narrative line to stream
// subscribers along the way.
func (h *JobHandler) Run(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		h.handleError(c, http.StatusRequestEntityTooLarge, "File too large", nil)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Could not read upload", err)
		return
	}

	raw := models.RawImage{
		Name:      header.Filename,
		MediaType: header.Header.Get("Content-Type"),
		Data:      data,
	}

	result, job, err := h.runner.Run(c.Request.Context(), raw, h.hub.Publish)
	if err != nil {
		status := http.StatusBadGateway
		var serverErr *upload.ServerError
		switch {
		case errors.Is(err, upload.ErrTimeout):
			status = http.StatusGatewayTimeout
		case errors.As(err, &serverErr):
			status = http.StatusBadGateway
		}
		h.logger.Error("job failed",
			logger.String("jobId", job.ID),
			logger.String("filename", header.Filename),
			logger.Error(err),
		)
		c.JSON(status, gin.H{
			"error": err.Error(),
			"jobId": job.ID,
			"phase": string(job.Phase()),
			"log":   job.Entries(),
		})
		return
	}

	c.JSON(http.StatusOK, JobResponse{
		JobID:  job.ID,
		Phase:  string(job.Phase()),
		Result: result,
		Log:    job.Entries(),
	})
}

// Stream re-broadcasts narrative lines to the browser as SSE frames
// until the client disconnects.
func (h *JobHandler) Stream(c *gin.Context) {
	ch, cancel := h.hub.Subscribe()
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")

	c.Stream(func(w io.Writer) bool {
		select {
		case entry, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("log", entry)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *JobHandler) handleError(c *gin.Context, status int, message string, err error) {
	h.logger.Error(message,
		logger.String("path", c.Request.URL.Path),
		logger.Error(err),
	)

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}
