package triggers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/relayforge/relayforge/pkg/channels/gochannel"
	"github.com/relayforge/relayforge/pkg/engine"
	"github.com/relayforge/relayforge/pkg/eventbus"
	"github.com/relayforge/relayforge/pkg/models"
	"github.com/relayforge/relayforge/pkg/persistence"
	"github.com/relayforge/relayforge/pkg/workflows"
)

type testWorkflowIndex struct {
	matches   map[string][]*models.TriggerMatch
	scheduled []*models.TriggerMatch
	replaced  map[string][]models.WorkflowTrigger
}

func newTestWorkflowIndex() *testWorkflowIndex {
	return &testWorkflowIndex{
		matches:  make(map[string][]*models.TriggerMatch),
		replaced: make(map[string][]models.WorkflowTrigger),
	}
}

func (r *testWorkflowIndex) add(workflow *models.Workflow, trigger models.WorkflowTrigger) {
	r.matches[trigger.Path] = append(r.matches[trigger.Path], &models.TriggerMatch{
		Workflow: workflow,
		Trigger:  trigger,
	})
}

func (r *testWorkflowIndex) GetAll(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	return nil, nil
}

func (r *testWorkflowIndex) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	return nil, nil
}

func (r *testWorkflowIndex) Save(ctx context.Context, workflow *models.Workflow) error { return nil }

func (r *testWorkflowIndex) Delete(ctx context.Context, id string) error { return nil }

func (r *testWorkflowIndex) ReplaceTriggers(ctx context.Context, workflowID string, triggers []models.WorkflowTrigger) error {
	r.replaced[workflowID] = triggers

	return nil
}

func (r *testWorkflowIndex) FindByWebhookPath(ctx context.Context, path string) ([]*models.TriggerMatch, error) {
	return r.matches[path], nil
}

func (r *testWorkflowIndex) FindScheduled(ctx context.Context) ([]*models.TriggerMatch, error) {
	return r.scheduled, nil
}

func (r *testWorkflowIndex) RecordRun(ctx context.Context, workflowID, runID string) error {
	return nil
}

func (r *testWorkflowIndex) RecordOutcome(ctx context.Context, workflowID string, success bool) error {
	return nil
}

type testEngine struct {
	started []string
	fail    map[string]error
}

func newTestEngine() *testEngine {
	return &testEngine{fail: make(map[string]error)}
}

func (e *testEngine) Start(ctx context.Context, workflow *models.Workflow, input map[string]any) (string, error) {
	if err, exists := e.fail[workflow.ID]; exists {
		return "", err
	}

	e.started = append(e.started, workflow.ID)

	return "run-" + workflow.ID, nil
}

func (e *testEngine) Signal(ctx context.Context, executionID, signal string, payload map[string]any) error {
	return nil
}

func (e *testEngine) Query(ctx context.Context, executionID, query string) (map[string]any, error) {
	return nil, nil
}

func (e *testEngine) Describe(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	return nil, nil
}

func (e *testEngine) Terminate(ctx context.Context, executionID, reason string) error {
	return nil
}

func newTestRouter(index *testWorkflowIndex, eng *testEngine) *Router {
	return NewRouter(index, eng, noop.NewTracerProvider().Tracer("test"), slog.Default())
}

func runningWorkflow(id, tenantID string) *models.Workflow {
	return &models.Workflow{
		ID:       id,
		TenantID: tenantID,
		Type:     models.WorkflowTypeContentPublish,
		Status:   models.WorkflowStatusRunning,
	}
}

func TestDispatch_SharedPathSecretsIsolateTenants(t *testing.T) {
	index := newTestWorkflowIndex()
	index.add(runningWorkflow("wf-t1", "tenant-1"), models.WorkflowTrigger{
		Type: models.TriggerTypeWebhook, Path: "/a", SecretKey: "S1",
	})
	index.add(runningWorkflow("wf-t2", "tenant-2"), models.WorkflowTrigger{
		Type: models.TriggerTypeWebhook, Path: "/a", SecretKey: "S2",
	})

	eng := newTestEngine()
	router := newTestRouter(index, eng)

	result := router.Dispatch(context.Background(), "/a", "S1", map[string]any{"k": "v"})

	assert.Equal(t, DispatchProcessed, result.Status)
	assert.Equal(t, 1, result.Matches)
	assert.Equal(t, []string{"wf-t1"}, eng.started)
}

func TestDispatch_NoMatchesIsIgnored(t *testing.T) {
	router := newTestRouter(newTestWorkflowIndex(), newTestEngine())

	result := router.Dispatch(context.Background(), "/nothing", "", nil)

	assert.Equal(t, DispatchIgnored, result.Status)
	assert.Zero(t, result.Matches)
	assert.Empty(t, result.Executions)
}

func TestDispatch_SecretlessTriggerAcceptsAnyKey(t *testing.T) {
	index := newTestWorkflowIndex()
	index.add(runningWorkflow("wf-open", "tenant-1"), models.WorkflowTrigger{
		Type: models.TriggerTypeWebhook, Path: "/open",
	})

	eng := newTestEngine()
	router := newTestRouter(index, eng)

	result := router.Dispatch(context.Background(), "open", "whatever", nil)

	assert.Equal(t, DispatchProcessed, result.Status)
	assert.Equal(t, []string{"run-wf-open"}, result.Executions)
}

func TestDispatch_OneFailingWorkflowDoesNotBlockOthers(t *testing.T) {
	index := newTestWorkflowIndex()
	index.add(runningWorkflow("wf-bad", "tenant-1"), models.WorkflowTrigger{
		Type: models.TriggerTypeWebhook, Path: "/a",
	})
	index.add(runningWorkflow("wf-good", "tenant-2"), models.WorkflowTrigger{
		Type: models.TriggerTypeWebhook, Path: "/a",
	})

	eng := newTestEngine()
	eng.fail["wf-bad"] = fmt.Errorf("bad input")

	router := newTestRouter(index, eng)

	result := router.Dispatch(context.Background(), "/a", "", nil)

	assert.Equal(t, DispatchProcessed, result.Status)
	assert.Equal(t, 2, result.Matches)
	assert.Equal(t, []string{"run-wf-good"}, result.Executions)
}

func TestRegisterTriggers_ValidatesAndNormalizes(t *testing.T) {
	index := newTestWorkflowIndex()
	router := newTestRouter(index, newTestEngine())

	err := router.RegisterTriggers(context.Background(), "wf-1", []models.WorkflowTrigger{
		{Type: models.TriggerTypeWebhook, Path: "hook/"},
		{Type: models.TriggerTypeSchedule, Cron: "0 6 * * *"},
	})
	require.NoError(t, err)

	saved := index.replaced["wf-1"]
	require.Len(t, saved, 2)
	assert.Equal(t, "/hook", saved[0].Path)
}

func TestRegisterTriggers_RejectsIncompleteTriggers(t *testing.T) {
	router := newTestRouter(newTestWorkflowIndex(), newTestEngine())

	err := router.RegisterTriggers(context.Background(), "wf-1", []models.WorkflowTrigger{
		{Type: models.TriggerTypeWebhook},
	})
	require.Error(t, err)

	err = router.RegisterTriggers(context.Background(), "wf-1", []models.WorkflowTrigger{
		{Type: models.TriggerTypeSchedule},
	})
	require.Error(t, err)
}

type testExecutionLog struct {
	mu   sync.Mutex
	byID map[string]*models.WorkflowExecution
}

func newTestExecutionLog() *testExecutionLog {
	return &testExecutionLog{byID: make(map[string]*models.WorkflowExecution)}
}

func (r *testExecutionLog) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *execution
	r.byID[execution.ID] = &copied

	return nil
}

func (r *testExecutionLog) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, exists := r.byID[id]
	if !exists {
		return nil, persistence.ErrExecutionNotFound
	}

	copied := *execution

	return &copied, nil
}

func (r *testExecutionLog) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	return nil, nil
}

func (r *testExecutionLog) SaveCheckpoint(ctx context.Context, id string, status models.ExecutionStatus, phase string, state json.RawMessage, waitDeadline *time.Time) error {
	return nil
}

func (r *testExecutionLog) MarkTerminal(ctx context.Context, id string, status models.ExecutionStatus, result map[string]any, errorMessage string) error {
	return nil
}

func (r *testExecutionLog) AddCost(ctx context.Context, id string, cost float64) error { return nil }

func (r *testExecutionLog) FindExpiredWaiting(ctx context.Context, now time.Time) ([]*models.WorkflowExecution, error) {
	return nil, nil
}

func (r *testExecutionLog) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type routerPersistence struct {
	workflows  *testWorkflowIndex
	executions *testExecutionLog
}

func (p *routerPersistence) WorkflowRepository() persistence.WorkflowRepository   { return p.workflows }
func (p *routerPersistence) ExecutionRepository() persistence.ExecutionRepository { return p.executions }
func (p *routerPersistence) InstallationRepository() persistence.InstallationRepository {
	return nil
}
func (p *routerPersistence) SecretBlobRepository() persistence.SecretBlobRepository { return nil }
func (p *routerPersistence) AuditRepository() persistence.AuditRepository           { return nil }
func (p *routerPersistence) HealthCheck(ctx context.Context) error                  { return nil }
func (p *routerPersistence) Close(ctx context.Context) error                        { return nil }

func newDispatchEngine(t *testing.T, index *testWorkflowIndex) (engine.Engine, *testExecutionLog) {
	t.Helper()

	executions := newTestExecutionLog()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	p := &routerPersistence{workflows: index, executions: executions}

	return engine.NewBusEngine(p, bus, workflows.NewDefaultRegistry(), slog.Default()), executions
}

func TestDispatch_WebhookBodyReachesDefinitionInput(t *testing.T) {
	index := newTestWorkflowIndex()
	index.add(runningWorkflow("wf-pub", "tenant-1"), models.WorkflowTrigger{
		Type: models.TriggerTypeWebhook, Path: "/publish",
	})

	eng, executions := newDispatchEngine(t, index)
	router := NewRouter(index, eng, noop.NewTracerProvider().Tracer("test"), slog.Default())

	result := router.Dispatch(context.Background(), "/publish", "", map[string]any{"topic": "launch"})

	assert.Equal(t, DispatchProcessed, result.Status)
	assert.Equal(t, 1, result.Matches)
	require.Len(t, result.Executions, 1)

	execution, err := executions.GetByID(context.Background(), result.Executions[0])
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", execution.TenantID)
	assert.Equal(t, "wf-pub", execution.WorkflowID)
}

func TestDispatch_WorkflowMetadataSuppliesStandingInput(t *testing.T) {
	index := newTestWorkflowIndex()
	workflow := runningWorkflow("wf-meta", "tenant-1")
	workflow.Metadata = map[string]any{"topic": "weekly digest"}
	index.add(workflow, models.WorkflowTrigger{
		Type: models.TriggerTypeWebhook, Path: "/digest",
	})

	eng, executions := newDispatchEngine(t, index)
	router := NewRouter(index, eng, noop.NewTracerProvider().Tracer("test"), slog.Default())

	result := router.Dispatch(context.Background(), "/digest", "", map[string]any{})

	assert.Equal(t, DispatchProcessed, result.Status)
	require.Len(t, result.Executions, 1)

	_, err := executions.GetByID(context.Background(), result.Executions[0])
	require.NoError(t, err)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/a", NormalizePath("a"))
	assert.Equal(t, "/a", NormalizePath("/a/"))
	assert.Equal(t, "/a/b", NormalizePath("a/b"))
}
