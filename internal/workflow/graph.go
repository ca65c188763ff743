package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/devloop/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/devloop/internal/workflow"

// stageSpec ties a stage to its run status, task label, and executor.
type stageSpec struct {
	status Status
	task   string
	run    func(*executors, context.Context, *RunState)
}

// stageTable is the stage→handler dispatch table. Routing after verify
// and repair is handled by the two route functions below; every other
// transition follows staticNext.
var stageTable = map[Stage]stageSpec{
	StagePlan:      {StatusPlanning, "analyze the request and produce a development plan", (*executors).runPlan},
	StageImplement: {StatusImplementing, "generate the implementation", (*executors).runImplement},
	StageVerify:    {StatusVerifying, "write and execute tests against the artifact", (*executors).runVerify},
	StageRepair:    {StatusRepairing, "diagnose failures and repair the artifact", (*executors).runRepair},
	StageDocument:  {StatusDocumenting, "produce documentation for the final artifact", (*executors).runDocument},
}

// staticNext holds the unconditional edges. A stage absent from both this
// map and the routers has no outgoing edge and completes the run.
var staticNext = map[Stage]Stage{
	StagePlan:      StageImplement,
	StageImplement: StageVerify,
}

const entryStage = StagePlan

// routeTarget is a routing decision: either the next stage, or a terminal
// status when stage is empty.
type routeTarget struct {
	stage    Stage
	terminal Status
}

func toStage(s Stage) routeTarget      { return routeTarget{stage: s} }
func terminate(st Status) routeTarget  { return routeTarget{terminal: st} }
func (t routeTarget) isTerminal() bool { return t.stage == "" }

// routeAfterVerify decides where the run goes after the verify stage:
// terminate on a failed run status, document when the iteration ceiling
// is reached, repair on a failed verdict, otherwise document.
func routeAfterVerify(s *RunState) routeTarget {
	if s.Status == StatusFailed {
		return terminate(StatusFailed)
	}
	if !s.CanContinue() {
		return toStage(StageDocument)
	}
	if s.VerifyResult != nil && s.VerifyResult.Outcome == OutcomeFailed {
		return toStage(StageRepair)
	}
	return toStage(StageDocument)
}

// routeAfterRepair decides where the run goes after the repair stage:
// terminate on a failed run status, document when the iteration ceiling
// is reached, re-verify while a repair is still warranted, otherwise
// document.
func routeAfterRepair(s *RunState) routeTarget {
	if s.Status == StatusFailed {
		return terminate(StatusFailed)
	}
	if !s.CanContinue() {
		return toStage(StageDocument)
	}
	if s.NeedsRepair() {
		return toStage(StageVerify)
	}
	return toStage(StageDocument)
}

// routers maps the stages whose exits are conditional.
var routers = map[Stage]func(*RunState) routeTarget{
	StageVerify: routeAfterVerify,
	StageRepair: routeAfterRepair,
}

// Topology returns the static stage graph description. It reads no run
// state and returns an identical structure on every call.
func Topology() GraphTopology {
	return GraphTopology{
		Stages: AllStages(),
		StaticEdges: []Edge{
			{From: StagePlan, To: StageImplement},
			{From: StageImplement, To: StageVerify},
			{From: StageDocument, To: StageEnd},
		},
		ConditionalEdges: []ConditionalEdge{
			{From: StageVerify, Targets: []Stage{StageRepair, StageDocument, StageEnd}},
			{From: StageRepair, Targets: []Stage{StageVerify, StageDocument, StageEnd}},
		},
		EntryStage: entryStage,
	}
}

// RunRequest describes one run to start.
type RunRequest struct {
	// Request is the task description handed to every collaborator.
	Request string

	// RunID is optional; a UUID is assigned when empty.
	RunID string

	// MaxIterations bounds the verify/repair cycle. When zero or
	// negative the engine default applies.
	MaxIterations int
}

// RunResult is the externally reported outcome of a run.
type RunResult struct {
	Success        bool     `json:"success"`
	RunID          string   `json:"run_id"`
	Status         Status   `json:"status"`
	FinalArtifact  string   `json:"final_artifact,omitempty"`
	FinalReport    string   `json:"final_report,omitempty"`
	Summary        Summary  `json:"summary"`
	IterationCount int      `json:"iteration_count"`
	CompletedTasks []string `json:"completed_tasks"`
	FailedTasks    []string `json:"failed_tasks"`
	ErrorHistory   []string `json:"error_history,omitempty"`
	StageSequence  []string `json:"stage_sequence,omitempty"`
}

// Engine drives runs through the stage graph. It holds only read-only
// configuration; concurrent runs share nothing mutable.
type Engine struct {
	exec          *executors
	logger        *logging.Logger
	maxIterations int

	tracer       trace.Tracer
	meter        metric.Meter
	runCounter   metric.Int64Counter
	stageCounter metric.Int64Counter
	iterCounter  metric.Int64Counter
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxIterations sets the default iteration ceiling applied when a
// RunRequest does not carry its own.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// NewEngine creates an engine over the given collaborator set.
func NewEngine(collab Collaborators, logger *logging.Logger, opts ...Option) (*Engine, error) {
	if err := collab.Validate(); err != nil {
		return nil, fmt.Errorf("invalid collaborator set: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	e := &Engine{
		exec:          &executors{collab: collab, logger: logger.Named("stage")},
		logger:        logger,
		maxIterations: 3,
		tracer:        otel.Tracer(instrumentationName),
		meter:         otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.initMetrics()

	return e, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (e *Engine) initMetrics() {
	var err error

	e.runCounter, err = e.meter.Int64Counter(
		"devloop.workflow.runs_total",
		metric.WithDescription("Total number of workflow runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		e.logger.Warn(context.Background(), "failed to create run counter", zap.Error(err))
	}

	e.stageCounter, err = e.meter.Int64Counter(
		"devloop.workflow.stage_visits_total",
		metric.WithDescription("Total number of stage visits"),
		metric.WithUnit("{visit}"),
	)
	if err != nil {
		e.logger.Warn(context.Background(), "failed to create stage counter", zap.Error(err))
	}

	e.iterCounter, err = e.meter.Int64Counter(
		"devloop.workflow.repair_iterations_total",
		metric.WithDescription("Total number of repair iterations"),
		metric.WithUnit("{iteration}"),
	)
	if err != nil {
		e.logger.Warn(context.Background(), "failed to create iteration counter", zap.Error(err))
	}
}

// StartRun executes one run from the entry stage to a terminal status and
// returns the assembled result. It never returns an error: collaborator
// failures are recorded into run state, and engine-level faults surface
// as a failed RunResult.
//
// Cancelling ctx aborts the in-flight collaborator call and yields a
// failed result with the context error recorded.
func (e *Engine) StartRun(ctx context.Context, req RunRequest) (result *RunResult) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = e.maxIterations
	}

	state := NewRunState(runID, req.Request, maxIterations)
	ctx = logging.WithRunID(ctx, runID)

	ctx, span := e.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("max_iterations", maxIterations),
		))
	defer span.End()

	// Engine-level faults never propagate to the caller; they become a
	// failed result with the fault in the error history.
	defer func() {
		if r := recover(); r != nil {
			fault := fmt.Sprintf("run driver fault: %v", r)
			state.RecordError(fault)
			state.AdvanceStatus(StatusFailed)
			span.SetStatus(codes.Error, fault)
			e.logger.Error(ctx, "run driver fault", zap.String("fault", fault))
			result = e.assembleResult(ctx, state)
		}
	}()

	e.logger.Info(ctx, "run started",
		zap.String("request", req.Request),
		zap.Int("max_iterations", maxIterations),
	)

	e.drive(ctx, state)

	return e.assembleResult(ctx, state)
}

// drive is the run loop: invoke the current stage, then consult the
// router at verify/repair exits or follow the static edge. A stage with
// neither completes the run.
func (e *Engine) drive(ctx context.Context, state *RunState) {
	current := entryStage

	for {
		if err := ctx.Err(); err != nil {
			state.RecordError(fmt.Sprintf("run cancelled: %v", err))
			state.AdvanceStatus(StatusFailed)
			return
		}

		e.visitStage(ctx, state, current)

		if router, ok := routers[current]; ok {
			target := router(state)
			if target.isTerminal() {
				state.AdvanceStatus(target.terminal)
				return
			}
			current = target.stage
			continue
		}

		next, ok := staticNext[current]
		if !ok {
			// No outgoing edge: the run completes.
			state.AdvanceStatus(StatusCompleted)
			return
		}
		current = next
	}
}

// visitStage performs one stage visit: the transition step (status,
// task label, sequence log) followed by the executor dispatch. Status
// mutation happens only here and at run termination.
func (e *Engine) visitStage(ctx context.Context, state *RunState, stage Stage) {
	spec := stageTable[stage]

	state.AdvanceStatus(spec.status)
	state.CurrentTask = spec.task
	state.StageSequence = append(state.StageSequence, string(stage))

	ctx = logging.WithStage(ctx, string(stage))
	ctx, span := e.tracer.Start(ctx, "workflow.stage."+string(stage),
		trace.WithAttributes(attribute.String("run_id", state.ID)))
	defer span.End()

	spec.run(e.exec, ctx, state)

	if e.stageCounter != nil {
		e.stageCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", string(stage)),
		))
	}
	if stage == StageRepair && e.iterCounter != nil {
		e.iterCounter.Add(ctx, 1)
	}
}

// assembleResult builds the external result record from run state.
func (e *Engine) assembleResult(ctx context.Context, state *RunState) *RunResult {
	res := &RunResult{
		Success:        state.Status == StatusCompleted,
		RunID:          state.ID,
		Status:         state.Status,
		FinalArtifact:  state.FinalArtifact,
		FinalReport:    state.FinalReport,
		Summary:        state.Summary(),
		IterationCount: state.IterationCount,
		CompletedTasks: state.CompletedTasks,
		FailedTasks:    state.FailedTasks,
		ErrorHistory:   state.ErrorHistory,
		StageSequence:  state.StageSequence,
	}

	if e.runCounter != nil {
		e.runCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(state.Status)),
		))
	}

	e.logger.Info(ctx, "run finished",
		zap.String("status", string(state.Status)),
		zap.Bool("success", res.Success),
		zap.Int("iterations", res.IterationCount),
		zap.Int("completed_tasks", len(res.CompletedTasks)),
		zap.Int("failed_tasks", len(res.FailedTasks)),
	)

	return res
}
