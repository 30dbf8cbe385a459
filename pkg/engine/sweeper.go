package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/relayforge/relayforge/pkg/eventbus"
	"github.com/relayforge/relayforge/pkg/events"
	"github.com/relayforge/relayforge/pkg/persistence"
)

const defaultSweepInterval = 30 * time.Second

// TimeoutSweeper periodically scans for waiting executions whose deadline
// has passed and delivers the reserved timeout signal. A duplicate timeout
// signal is harmless: Apply rejects it once the execution has moved on.
type TimeoutSweeper struct {
	executions persistence.ExecutionRepository
	eventBus   eventbus.EventBus
	interval   time.Duration
	logger     *slog.Logger
}

func NewTimeoutSweeper(executions persistence.ExecutionRepository, bus eventbus.EventBus, logger *slog.Logger) *TimeoutSweeper {
	return &TimeoutSweeper{
		executions: executions,
		eventBus:   bus,
		interval:   defaultSweepInterval,
		logger:     logger.With("module", "timeout_sweeper"),
	}
}

// Run sweeps until the context is cancelled.
func (s *TimeoutSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep delivers timeout signals for every expired waiting execution.
func (s *TimeoutSweeper) Sweep(ctx context.Context) {
	expired, err := s.executions.FindExpiredWaiting(ctx, time.Now().UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to find expired executions", "error", err)

		return
	}

	for _, execution := range expired {
		event := events.ExecutionSignaled{
			BaseEvent: events.BaseEvent{
				ID:          s.eventBus.GenerateID(),
				Type:        events.ExecutionSignaledEvent,
				Timestamp:   time.Now().UTC(),
				TenantID:    execution.TenantID,
				WorkflowID:  execution.WorkflowID,
				ExecutionID: execution.ID,
			},
			Signal: events.TimeoutSignal,
		}

		err = s.eventBus.Publish(ctx, execution.ID, event)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish timeout signal", "execution_id", execution.ID, "error", err)

			continue
		}

		s.logger.InfoContext(ctx, "Wait deadline elapsed", "execution_id", execution.ID, "workflow_id", execution.WorkflowID)
	}
}
