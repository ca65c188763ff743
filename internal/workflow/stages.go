package workflow

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/devloop/internal/logging"
)

// Context store keys populated alongside the typed result slots so
// external collaborators can read accumulated artifacts generically.
const (
	ctxKeyPlan     = "plan"
	ctxKeyArtifact = "generated_code"
	ctxKeyVerify   = "verify_result"
	ctxKeyRepair   = "repair_result"
	ctxKeyReport   = "documentation"
)

// executors is the pure dispatch layer: one wrapper per stage, each
// invoking a single collaborator and recording the result or failure into
// run state. No routing decisions live here.
type executors struct {
	collab Collaborators
	logger *logging.Logger
}

// fail records a collaborator failure. The stage is marked failed and the
// error recorded, but the run status is untouched; whether the run
// terminates is the routing step's decision.
func (e *executors) fail(ctx context.Context, state *RunState, stage Stage, err error) {
	cerr := NewCollaboratorError(stage, err)
	state.RecordError(cerr.Error())
	state.RecordFailure(stage)
	e.logger.Warn(ctx, "stage collaborator failed",
		zap.String("stage", string(stage)),
		zap.Error(cerr),
	)
}

func (e *executors) runPlan(ctx context.Context, state *RunState) {
	res, err := e.collab.Planner.Plan(ctx, state.Request)
	if err != nil {
		e.fail(ctx, state, StagePlan, err)
		return
	}

	state.PlanResult = res
	state.SetContext(ctxKeyPlan, res)
	state.RecordCompletion(StagePlan)
	e.logger.Info(ctx, "plan complete", zap.Int("tasks", len(res.Tasks)))
}

func (e *executors) runImplement(ctx context.Context, state *RunState) {
	in := ImplementInput{
		Plan:      state.PlanResult,
		Iteration: state.IterationCount,
	}

	res, err := e.collab.Implementer.Implement(ctx, state.Request, in)
	if err != nil {
		e.fail(ctx, state, StageImplement, err)
		return
	}

	state.ImplementResult = res
	state.SetContext(ctxKeyArtifact, res)
	state.RecordCompletion(StageImplement)
	e.logger.Info(ctx, "implement complete", zap.Int("artifact_bytes", len(res.Code)))
}

func (e *executors) runVerify(ctx context.Context, state *RunState) {
	in := VerifyInput{
		Artifact: state.LatestArtifact(),
		Plan:     state.PlanResult,
	}

	res, err := e.collab.Verifier.Verify(ctx, state.Request, in)
	if err != nil {
		e.fail(ctx, state, StageVerify, err)
		return
	}

	state.VerifyResult = res
	state.SetContext(ctxKeyVerify, res)
	state.RecordCompletion(StageVerify)
	e.logger.Info(ctx, "verify complete", zap.String("outcome", string(res.Outcome)))
}

// runRepair increments the iteration counter exactly once per visit,
// success or failure, so the verify/repair cycle terminates within
// MaxIterations visits.
func (e *executors) runRepair(ctx context.Context, state *RunState) {
	defer state.IncrementIteration()

	in := RepairInput{
		Artifact: state.LatestArtifact(),
		Verify:   state.VerifyResult,
		Plan:     state.PlanResult,
	}

	res, err := e.collab.Repairer.Repair(ctx, state.Request, in)
	if err != nil {
		e.fail(ctx, state, StageRepair, err)
		return
	}

	state.RepairResult = res

	// Fold the repaired artifact into the implement slot so downstream
	// consumers see one canonical current artifact.
	if res.ProducedArtifact != "" {
		state.ImplementResult = &ImplementResult{
			Code:      res.ProducedArtifact,
			Language:  "go",
			Repaired:  true,
			Iteration: state.IterationCount + 1,
		}
		state.SetContext(ctxKeyArtifact, state.ImplementResult)
	}
	state.SetContext(ctxKeyRepair, res)

	state.RecordCompletion(StageRepair)
	e.logger.Info(ctx, "repair complete",
		zap.Int("iteration", state.IterationCount+1),
		zap.Bool("produced_artifact", res.ProducedArtifact != ""),
	)
}

func (e *executors) runDocument(ctx context.Context, state *RunState) {
	in := DocumentInput{
		Artifact: state.LatestArtifact(),
		Plan:     state.PlanResult,
		Verify:   state.VerifyResult,
		Repair:   state.RepairResult,
	}

	res, err := e.collab.Documenter.Document(ctx, state.Request, in)
	if err != nil {
		e.fail(ctx, state, StageDocument, err)
		return
	}

	state.DocumentResult = res
	state.SetContext(ctxKeyReport, res)
	state.FinalArtifact = state.LatestArtifact()
	state.FinalReport = res.Report
	state.RecordCompletion(StageDocument)
	e.logger.Info(ctx, "document complete", zap.Int("report_bytes", len(res.Report)))
}
