package handler

import (
	"log/slog"

	"github.com/dnguyen/collections-be/internal/collections"
	"github.com/dnguyen/collections-be/internal/jobs"
)

// Dependencies holds all dependencies needed by handlers.
type Dependencies struct {
	Logger      *slog.Logger
	Registry    *jobs.Registry
	Collections collections.Store
	Dispatcher  jobs.Dispatcher
}

// JobHandler handles job-related HTTP requests.
type JobHandler struct {
	logger      *slog.Logger
	registry    *jobs.Registry
	collections collections.Store
	dispatcher  jobs.Dispatcher
}

// NewJobHandler creates a new JobHandler instance.
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:      deps.Logger,
		registry:    deps.Registry,
		collections: deps.Collections,
		dispatcher:  deps.Dispatcher,
	}
}
