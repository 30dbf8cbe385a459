package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/relayforge/relayforge/pkg/channels/gochannel"
	"github.com/relayforge/relayforge/pkg/eventbus"
	"github.com/relayforge/relayforge/pkg/models"
	"github.com/relayforge/relayforge/pkg/persistence"
	"github.com/relayforge/relayforge/pkg/workflows"
)

type memWorkflowRepository struct {
	mu        sync.Mutex
	workflows map[string]*models.Workflow
	lastRunID map[string]string
	outcomes  map[string][]bool
}

func newMemWorkflowRepository() *memWorkflowRepository {
	return &memWorkflowRepository{
		workflows: make(map[string]*models.Workflow),
		lastRunID: make(map[string]string),
		outcomes:  make(map[string][]bool),
	}
}

func (r *memWorkflowRepository) GetAll(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	return nil, nil
}

func (r *memWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	workflow, exists := r.workflows[id]
	if !exists {
		return nil, persistence.ErrWorkflowNotFound
	}

	return workflow, nil
}

func (r *memWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.workflows[workflow.ID] = workflow

	return nil
}

func (r *memWorkflowRepository) Delete(ctx context.Context, id string) error { return nil }

func (r *memWorkflowRepository) ReplaceTriggers(ctx context.Context, workflowID string, triggers []models.WorkflowTrigger) error {
	return nil
}

func (r *memWorkflowRepository) FindByWebhookPath(ctx context.Context, path string) ([]*models.TriggerMatch, error) {
	return nil, nil
}

func (r *memWorkflowRepository) FindScheduled(ctx context.Context) ([]*models.TriggerMatch, error) {
	return nil, nil
}

func (r *memWorkflowRepository) RecordRun(ctx context.Context, workflowID, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastRunID[workflowID] = runID

	return nil
}

func (r *memWorkflowRepository) RecordOutcome(ctx context.Context, workflowID string, success bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outcomes[workflowID] = append(r.outcomes[workflowID], success)

	return nil
}

func (r *memWorkflowRepository) recordedOutcomes(workflowID string) []bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]bool(nil), r.outcomes[workflowID]...)
}

type memExecutionRepository struct {
	mu         sync.Mutex
	executions map[string]*models.WorkflowExecution
}

func newMemExecutionRepository() *memExecutionRepository {
	return &memExecutionRepository{executions: make(map[string]*models.WorkflowExecution)}
}

func (r *memExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *execution
	r.executions[execution.ID] = &copied

	return nil
}

func (r *memExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, exists := r.executions[id]
	if !exists {
		return nil, persistence.ErrExecutionNotFound
	}

	copied := *execution

	return &copied, nil
}

func (r *memExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*models.WorkflowExecution

	for _, execution := range r.executions {
		if execution.WorkflowID == workflowID {
			copied := *execution
			result = append(result, &copied)
		}
	}

	return result, nil
}

func (r *memExecutionRepository) SaveCheckpoint(ctx context.Context, id string, status models.ExecutionStatus, phase string, state json.RawMessage, waitDeadline *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, exists := r.executions[id]
	if !exists {
		return persistence.ErrExecutionNotFound
	}

	if execution.Status.IsTerminal() {
		return fmt.Errorf("execution %s is terminal", id)
	}

	execution.Status = status
	execution.Phase = phase
	execution.State = state
	execution.WaitDeadline = waitDeadline

	return nil
}

func (r *memExecutionRepository) MarkTerminal(ctx context.Context, id string, status models.ExecutionStatus, result map[string]any, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, exists := r.executions[id]
	if !exists {
		return persistence.ErrExecutionNotFound
	}

	if execution.Status.IsTerminal() {
		return nil
	}

	now := time.Now().UTC()
	execution.Status = status
	execution.Result = result
	execution.ErrorMessage = errorMessage
	execution.CompletedAt = &now
	execution.WaitDeadline = nil

	return nil
}

func (r *memExecutionRepository) AddCost(ctx context.Context, id string, cost float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, exists := r.executions[id]
	if !exists {
		return persistence.ErrExecutionNotFound
	}

	execution.CostEstimate += cost

	return nil
}

func (r *memExecutionRepository) FindExpiredWaiting(ctx context.Context, now time.Time) ([]*models.WorkflowExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*models.WorkflowExecution

	for _, execution := range r.executions {
		if execution.Status == models.ExecutionStatusWaiting && execution.WaitDeadline != nil && execution.WaitDeadline.Before(now) {
			copied := *execution
			expired = append(expired, &copied)
		}
	}

	return expired, nil
}

func (r *memExecutionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (r *memExecutionRepository) rewindDeadline(id string, deadline time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.executions[id].WaitDeadline = &deadline
}

type memPersistence struct {
	workflows  *memWorkflowRepository
	executions *memExecutionRepository
}

func newMemPersistence() *memPersistence {
	return &memPersistence{
		workflows:  newMemWorkflowRepository(),
		executions: newMemExecutionRepository(),
	}
}

func (p *memPersistence) WorkflowRepository() persistence.WorkflowRepository   { return p.workflows }
func (p *memPersistence) ExecutionRepository() persistence.ExecutionRepository { return p.executions }
func (p *memPersistence) InstallationRepository() persistence.InstallationRepository {
	return nil
}
func (p *memPersistence) SecretBlobRepository() persistence.SecretBlobRepository { return nil }
func (p *memPersistence) AuditRepository() persistence.AuditRepository           { return nil }
func (p *memPersistence) HealthCheck(ctx context.Context) error                  { return nil }
func (p *memPersistence) Close(ctx context.Context) error                        { return nil }

type fakeActivities struct {
	mu      sync.Mutex
	results map[string]map[string]any
	fail    map[string]error
	calls   []string
}

func newFakeActivities() *fakeActivities {
	return &fakeActivities{
		results: make(map[string]map[string]any),
		fail:    make(map[string]error),
	}
}

func (a *fakeActivities) Execute(ctx context.Context, tenantID, activity string, params map[string]any) (map[string]any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls = append(a.calls, activity)

	if err, exists := a.fail[activity]; exists {
		return nil, err
	}

	if result, exists := a.results[activity]; exists {
		return result, nil
	}

	return map[string]any{"ok": true}, nil
}

func (a *fakeActivities) callNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]string(nil), a.calls...)
}

type engineHarness struct {
	persistence *memPersistence
	activities  *fakeActivities
	engine      *BusEngine
	bus         eventbus.EventBus
}

func newEngineHarness(t *testing.T) *engineHarness {
	t.Helper()

	logger := slog.Default()
	registry := workflows.NewDefaultRegistry()
	p := newMemPersistence()
	activities := newFakeActivities()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	worker := NewWorker("worker-test", p, bus, registry, activities, noop.NewTracerProvider().Tracer("test"), logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, worker.Start(ctx))

	return &engineHarness{
		persistence: p,
		activities:  activities,
		engine:      NewBusEngine(p, bus, registry, logger),
		bus:         bus,
	}
}

func (h *engineHarness) saveWorkflow(t *testing.T, workflowType models.WorkflowType, config models.WorkflowConfig) *models.Workflow {
	t.Helper()

	workflow := &models.Workflow{
		ID:       "wf-" + string(workflowType),
		TenantID: "tenant-1",
		Name:     "test workflow",
		Type:     workflowType,
		Status:   models.WorkflowStatusRunning,
		Config:   config,
	}
	require.NoError(t, h.persistence.workflows.Save(context.Background(), workflow))

	return workflow
}

func (h *engineHarness) waitForStatus(t *testing.T, executionID string, status models.ExecutionStatus) *models.WorkflowExecution {
	t.Helper()

	var execution *models.WorkflowExecution

	require.Eventually(t, func() bool {
		var err error

		execution, err = h.persistence.executions.GetByID(context.Background(), executionID)
		if err != nil {
			return false
		}

		return execution.Status == status
	}, 5*time.Second, 10*time.Millisecond)

	return execution
}

func TestBusEngine_ContentPublishApprovalFlow(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t)
	h.activities.results[workflows.ActivityGenerateDraft] = map[string]any{"draft": "hello world"}
	h.activities.results[workflows.ActivitySchedulePost] = map[string]any{"scheduled_for": "2026-09-01T09:00:00Z"}

	workflow := h.saveWorkflow(t, models.WorkflowTypeContentPublish, models.WorkflowConfig{RequireApproval: true})

	runID, err := h.engine.Start(ctx, workflow, map[string]any{"topic": "launch"})
	require.NoError(t, err)
	assert.Equal(t, runID, h.persistence.workflows.lastRunID[workflow.ID])

	execution := h.waitForStatus(t, runID, models.ExecutionStatusWaiting)
	assert.Equal(t, "awaiting_approval", execution.Phase)
	require.NotNil(t, execution.WaitDeadline)

	status, err := h.engine.Query(ctx, runID, "status")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_approval", status["phase"])

	require.NoError(t, h.engine.Signal(ctx, runID, workflows.SignalApprovePost, nil))

	execution = h.waitForStatus(t, runID, models.ExecutionStatusCompleted)
	assert.Equal(t, "completed", execution.Result["status"])
	assert.Equal(t, "2026-09-01T09:00:00Z", execution.Result["scheduled_for"])
	assert.Nil(t, execution.WaitDeadline)
	assert.Equal(t, []bool{true}, h.persistence.workflows.recordedOutcomes(workflow.ID))
}

func TestBusEngine_TimeoutSweeperResolvesStalledApproval(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t)
	h.activities.results[workflows.ActivityGenerateDraft] = map[string]any{"draft": "hello"}

	workflow := h.saveWorkflow(t, models.WorkflowTypeContentPublish, models.WorkflowConfig{RequireApproval: true})

	runID, err := h.engine.Start(ctx, workflow, map[string]any{"topic": "launch"})
	require.NoError(t, err)

	h.waitForStatus(t, runID, models.ExecutionStatusWaiting)
	h.persistence.executions.rewindDeadline(runID, time.Now().UTC().Add(-time.Minute))

	sweeper := NewTimeoutSweeper(h.persistence.executions, h.bus, slog.Default())
	sweeper.Sweep(ctx)

	execution := h.waitForStatus(t, runID, models.ExecutionStatusCompleted)
	assert.Equal(t, "revision_requested", execution.Result["status"])
}

func TestWorker_ActivityFailureFailsExecution(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t)
	h.activities.fail[workflows.ActivityCrawlSite] = fmt.Errorf("site unreachable")

	workflow := h.saveWorkflow(t, models.WorkflowTypeSEOAudit, models.WorkflowConfig{RetryCount: 1})

	runID, err := h.engine.Start(ctx, workflow, map[string]any{"url": "https://example.com"})
	require.NoError(t, err)

	execution := h.waitForStatus(t, runID, models.ExecutionStatusFailed)
	assert.True(t, strings.Contains(execution.ErrorMessage, workflows.ActivityCrawlSite))
	assert.True(t, strings.Contains(execution.ErrorMessage, "site unreachable"))
	assert.Equal(t, []bool{false}, h.persistence.workflows.recordedOutcomes(workflow.ID))
}

func TestBusEngine_TerminateIsImmediateAndTerminal(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t)
	h.activities.results[workflows.ActivityGenerateDraft] = map[string]any{"draft": "hello"}

	workflow := h.saveWorkflow(t, models.WorkflowTypeContentPublish, models.WorkflowConfig{RequireApproval: true})

	runID, err := h.engine.Start(ctx, workflow, map[string]any{"topic": "launch"})
	require.NoError(t, err)

	h.waitForStatus(t, runID, models.ExecutionStatusWaiting)

	require.NoError(t, h.engine.Terminate(ctx, runID, "operator request"))

	execution, err := h.engine.Describe(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, execution.Status)
	assert.Equal(t, "operator request", execution.ErrorMessage)

	err = h.engine.Signal(ctx, runID, workflows.SignalApprovePost, nil)
	require.Error(t, err)
}

func TestBusEngine_StartRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t)

	workflow := h.saveWorkflow(t, models.WorkflowTypeMaintenance, models.WorkflowConfig{})

	_, err := h.engine.Start(ctx, workflow, map[string]any{"job": "drop_tables"})
	require.Error(t, err)
	assert.Empty(t, h.persistence.executions.executions)
}

func TestBusEngine_ApprovalGateFollowsWorkflowSettings(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t)
	h.activities.results[workflows.ActivityGenerateDraft] = map[string]any{"draft": "hello"}
	h.activities.results[workflows.ActivitySchedulePost] = map[string]any{"scheduled_for": "2026-09-02T09:00:00Z"}

	workflow := h.saveWorkflow(t, models.WorkflowTypeContentPublish, models.WorkflowConfig{})

	runID, err := h.engine.Start(ctx, workflow, map[string]any{"topic": "launch"})
	require.NoError(t, err)

	execution := h.waitForStatus(t, runID, models.ExecutionStatusCompleted)
	assert.Equal(t, "completed", execution.Result["status"])
	assert.Equal(t, []string{
		workflows.ActivityGenerateDraft,
		workflows.ActivitySchedulePost,
	}, h.activities.callNames())
}

func TestBusEngine_HITLFlagHoldsExecutionForApproval(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t)
	h.activities.results[workflows.ActivityGenerateDraft] = map[string]any{"draft": "hello"}

	workflow := &models.Workflow{
		ID:          "wf-hitl",
		TenantID:    "tenant-1",
		Name:        "gated workflow",
		Type:        models.WorkflowTypeContentPublish,
		Status:      models.WorkflowStatusRunning,
		HITLEnabled: true,
	}
	require.NoError(t, h.persistence.workflows.Save(ctx, workflow))

	runID, err := h.engine.Start(ctx, workflow, map[string]any{"topic": "launch"})
	require.NoError(t, err)

	execution := h.waitForStatus(t, runID, models.ExecutionStatusWaiting)
	assert.Equal(t, "awaiting_approval", execution.Phase)
}

func TestBusEngine_ApprovalWindowComesFromWorkflowConfig(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t)
	h.activities.results[workflows.ActivityGenerateDraft] = map[string]any{"draft": "hello"}

	workflow := h.saveWorkflow(t, models.WorkflowTypeContentPublish, models.WorkflowConfig{
		RequireApproval:       true,
		ApprovalWindowSeconds: 3600,
	})

	runID, err := h.engine.Start(ctx, workflow, map[string]any{"topic": "launch"})
	require.NoError(t, err)

	execution := h.waitForStatus(t, runID, models.ExecutionStatusWaiting)
	require.NotNil(t, execution.WaitDeadline)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), *execution.WaitDeadline, time.Minute)
}

func TestWorker_PipelineAccumulatesCost(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t)
	h.activities.results[workflows.ActivityCrawlSite] = map[string]any{"pages": float64(10), "cost_estimate": 0.25}
	h.activities.results[workflows.ActivityAnalyzeFindings] = map[string]any{"cost_estimate": 0.5}
	h.activities.results[workflows.ActivityCompileReport] = map[string]any{"report": "done"}

	workflow := h.saveWorkflow(t, models.WorkflowTypeSEOAudit, models.WorkflowConfig{})

	runID, err := h.engine.Start(ctx, workflow, map[string]any{"url": "https://example.com"})
	require.NoError(t, err)

	execution := h.waitForStatus(t, runID, models.ExecutionStatusCompleted)
	assert.InDelta(t, 0.75, execution.CostEstimate, 0.0001)
	assert.Equal(t, []string{
		workflows.ActivityCrawlSite,
		workflows.ActivityAnalyzeFindings,
		workflows.ActivityCompileReport,
	}, h.activities.callNames())
}
