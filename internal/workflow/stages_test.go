package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/devloop/internal/logging"
)

func newTestExecutors(set stubSet) *executors {
	return &executors{
		collab: set.collaborators(),
		logger: logging.NewTestLogger().Logger,
	}
}

func TestRunPlanStoresResult(t *testing.T) {
	exec := newTestExecutors(stubSet{
		plan: func(ctx context.Context, request string) (*PlanResult, error) {
			assert.Equal(t, "build it", request)
			return &PlanResult{Plan: "the plan", Tasks: []PlanTask{{Description: "step 1"}}}, nil
		},
	})
	state := NewRunState("run-1", "build it", 3)

	exec.runPlan(context.Background(), state)

	require.NotNil(t, state.PlanResult)
	assert.Equal(t, "the plan", state.PlanResult.Plan)
	assert.Equal(t, []string{"plan"}, state.CompletedTasks)

	stored, ok := state.GetContext("plan")
	require.True(t, ok)
	assert.Same(t, state.PlanResult, stored)
}

func TestRunImplementReceivesPlanAndIteration(t *testing.T) {
	var got ImplementInput
	exec := newTestExecutors(stubSet{
		implement: func(ctx context.Context, request string, in ImplementInput) (*ImplementResult, error) {
			got = in
			return &ImplementResult{Code: "code"}, nil
		},
	})
	state := NewRunState("run-1", "req", 3)
	state.PlanResult = &PlanResult{Plan: "the plan"}
	state.IterationCount = 1

	exec.runImplement(context.Background(), state)

	assert.Equal(t, "the plan", got.Plan.Plan)
	assert.Equal(t, 1, got.Iteration)
	assert.Equal(t, "code", state.ImplementResult.Code)
}

func TestRunVerifyReceivesLatestArtifact(t *testing.T) {
	var got VerifyInput
	exec := newTestExecutors(stubSet{
		verify: func(ctx context.Context, request string, in VerifyInput) (*VerifyResult, error) {
			got = in
			return &VerifyResult{Outcome: OutcomePassed}, nil
		},
	})
	state := NewRunState("run-1", "req", 3)
	state.ImplementResult = &ImplementResult{Code: "original"}
	state.RepairResult = &RepairResult{ProducedArtifact: "repaired"}

	exec.runVerify(context.Background(), state)

	assert.Equal(t, "repaired", got.Artifact)
	assert.Equal(t, OutcomePassed, state.VerifyResult.Outcome)
}

func TestRunRepairFoldsArtifactIntoImplementSlot(t *testing.T) {
	exec := newTestExecutors(stubSet{
		repair: func(ctx context.Context, request string, in RepairInput) (*RepairResult, error) {
			assert.Equal(t, "broken", in.Artifact)
			require.NotNil(t, in.Verify)
			return &RepairResult{ProducedArtifact: "fixed", Analysis: "off by one"}, nil
		},
	})
	state := NewRunState("run-1", "req", 3)
	state.ImplementResult = &ImplementResult{Code: "broken"}
	state.VerifyResult = &VerifyResult{Outcome: OutcomeFailed}

	exec.runRepair(context.Background(), state)

	assert.Equal(t, 1, state.IterationCount)
	require.NotNil(t, state.ImplementResult)
	assert.Equal(t, "fixed", state.ImplementResult.Code)
	assert.True(t, state.ImplementResult.Repaired)
	assert.Equal(t, 1, state.ImplementResult.Iteration)
	assert.Equal(t, []string{"repair"}, state.CompletedTasks)
}

func TestRunRepairIncrementsIterationOnFailure(t *testing.T) {
	exec := newTestExecutors(stubSet{
		repair: func(ctx context.Context, request string, in RepairInput) (*RepairResult, error) {
			return nil, errors.New("no fix found")
		},
	})
	state := NewRunState("run-1", "req", 3)
	state.ImplementResult = &ImplementResult{Code: "broken"}
	state.VerifyResult = &VerifyResult{Outcome: OutcomeFailed}

	exec.runRepair(context.Background(), state)

	assert.Equal(t, 1, state.IterationCount)
	assert.Equal(t, []string{"repair"}, state.FailedTasks)
	assert.Contains(t, state.LastError, "no fix found")
	// The prior artifact survives a failed repair.
	assert.Equal(t, "broken", state.LatestArtifact())
}

func TestRunRepairWithoutArtifactKeepsImplementSlot(t *testing.T) {
	exec := newTestExecutors(stubSet{
		repair: func(ctx context.Context, request string, in RepairInput) (*RepairResult, error) {
			return &RepairResult{Analysis: "cannot reproduce", ProducedArtifact: ""}, nil
		},
	})
	state := NewRunState("run-1", "req", 3)
	state.ImplementResult = &ImplementResult{Code: "original"}
	state.VerifyResult = &VerifyResult{Outcome: OutcomeFailed}

	exec.runRepair(context.Background(), state)

	assert.Equal(t, "original", state.ImplementResult.Code)
	assert.False(t, state.ImplementResult.Repaired)
}

func TestRunDocumentSetsFinalOutputs(t *testing.T) {
	var got DocumentInput
	exec := newTestExecutors(stubSet{
		document: func(ctx context.Context, request string, in DocumentInput) (*DocumentResult, error) {
			got = in
			return &DocumentResult{Report: "# usage"}, nil
		},
	})
	state := NewRunState("run-1", "req", 3)
	state.PlanResult = &PlanResult{Plan: "plan"}
	state.ImplementResult = &ImplementResult{Code: "final code"}
	state.VerifyResult = &VerifyResult{Outcome: OutcomePassed}

	exec.runDocument(context.Background(), state)

	assert.Equal(t, "final code", got.Artifact)
	assert.NotNil(t, got.Plan)
	assert.NotNil(t, got.Verify)
	assert.Equal(t, "final code", state.FinalArtifact)
	assert.Equal(t, "# usage", state.FinalReport)
}

func TestFailureDoesNotTouchStatus(t *testing.T) {
	exec := newTestExecutors(stubSet{
		verify: func(ctx context.Context, request string, in VerifyInput) (*VerifyResult, error) {
			return nil, errors.New("runner crashed")
		},
	})
	state := NewRunState("run-1", "req", 3)
	state.AdvanceStatus(StatusVerifying)

	exec.runVerify(context.Background(), state)

	// The executor records the failure; terminating is the router's call.
	assert.Equal(t, StatusVerifying, state.Status)
	assert.Equal(t, []string{"verify"}, state.FailedTasks)

	var cerr *CollaboratorError
	require.NotEmpty(t, state.ErrorHistory)
	assert.Contains(t, state.ErrorHistory[0], "verify collaborator failed")
	// The recorded message round-trips the CollaboratorError format.
	err := NewCollaboratorError(StageVerify, errors.New("runner crashed"))
	assert.Equal(t, err.Error(), state.ErrorHistory[0])
	assert.True(t, errors.As(err, &cerr))
}
