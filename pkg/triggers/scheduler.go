package triggers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/relayforge/relayforge/pkg/engine"
	"github.com/relayforge/relayforge/pkg/models"
	"github.com/relayforge/relayforge/pkg/persistence"
)

const defaultSyncInterval = time.Minute

// Scheduler keeps cron entries in step with the schedule triggers stored on
// running workflows. Entries are keyed by workflow id and cron spec, so
// editing a trigger swaps its entry on the next sync.
type Scheduler struct {
	workflows persistence.WorkflowRepository
	engine    engine.Engine
	cron      *cron.Cron
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewScheduler(workflows persistence.WorkflowRepository, eng engine.Engine, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		workflows: workflows,
		engine:    eng,
		cron:      cron.New(),
		logger:    logger.With("module", "scheduler"),
		entries:   make(map[string]cron.EntryID),
	}
}

// Start runs the cron loop and re-syncs bindings until the context is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()

	err := s.Sync(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Initial schedule sync failed", "error", err)
	}

	ticker := time.NewTicker(defaultSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.cron.Stop()

			return
		case <-ticker.C:
			err := s.Sync(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "Schedule sync failed", "error", err)
			}
		}
	}
}

// Sync reloads schedule triggers and reconciles the cron entries.
func (s *Scheduler) Sync(ctx context.Context) error {
	matches, err := s.workflows.FindScheduled(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(matches))

	for _, match := range matches {
		key := match.Workflow.ID + "|" + match.Trigger.Cron
		wanted[key] = true

		if _, exists := s.entries[key]; exists {
			continue
		}

		workflowID := match.Workflow.ID
		spec := match.Trigger.Cron

		entryID, err := s.cron.AddFunc(spec, func() {
			s.fire(workflowID, spec)
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "Rejected invalid cron spec",
				"workflow_id", workflowID, "cron", spec, "error", err)

			continue
		}

		s.entries[key] = entryID
		s.logger.InfoContext(ctx, "Bound schedule trigger", "workflow_id", workflowID, "cron", spec)
	}

	for key, entryID := range s.entries {
		if !wanted[key] {
			s.cron.Remove(entryID)
			delete(s.entries, key)
			s.logger.InfoContext(ctx, "Unbound schedule trigger", "key", key)
		}
	}

	return nil
}

// fire starts one execution for a due schedule trigger. The workflow is
// reloaded so a pause or delete between syncs is honored.
func (s *Scheduler) fire(workflowID, spec string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	workflow, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Skipping schedule fire, workflow unavailable",
			"workflow_id", workflowID, "error", err)

		return
	}

	if workflow.Status != models.WorkflowStatusRunning {
		return
	}

	input := map[string]any{
		"source": "schedule",
		"cron":   spec,
	}

	for key, value := range workflow.Metadata {
		input[key] = value
	}

	runID, err := s.engine.Start(ctx, workflow, input)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to start scheduled workflow",
			"workflow_id", workflowID, "error", err)

		return
	}

	s.logger.InfoContext(ctx, "Started scheduled execution", "workflow_id", workflowID, "execution_id", runID)
}
