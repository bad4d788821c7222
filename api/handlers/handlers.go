package handlers

import (
	"github.com/swipswaps/paddle-ocr/internal/backend"
	"github.com/swipswaps/paddle-ocr/internal/orchestrator"
	"github.com/swipswaps/paddle-ocr/pkg/logger"
)

// Handlers bundles everything the shell's routes need.
type Handlers struct {
	Jobs  *JobHandler
	Shell *ShellHandler
}

func NewHandlers(runner *orchestrator.Runner, client *backend.Client, log logger.Logger) *Handlers {
	hub := NewHub()
	return &Handlers{
		Jobs:  NewJobHandler(runner, hub, log),
		Shell: NewShellHandler(client, log),
	}
}
