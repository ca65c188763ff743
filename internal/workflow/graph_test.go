package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/devloop/internal/logging"
)

// Function-backed collaborator stubs. Unset functions return minimal
// successful results.

type stubPlanner func(context.Context, string) (*PlanResult, error)

func (f stubPlanner) Plan(ctx context.Context, request string) (*PlanResult, error) {
	if f == nil {
		return &PlanResult{Plan: "plan for " + request}, nil
	}
	return f(ctx, request)
}

type stubImplementer func(context.Context, string, ImplementInput) (*ImplementResult, error)

func (f stubImplementer) Implement(ctx context.Context, request string, in ImplementInput) (*ImplementResult, error) {
	if f == nil {
		return &ImplementResult{Code: "package main", Language: "go"}, nil
	}
	return f(ctx, request, in)
}

type stubVerifier func(context.Context, string, VerifyInput) (*VerifyResult, error)

func (f stubVerifier) Verify(ctx context.Context, request string, in VerifyInput) (*VerifyResult, error) {
	if f == nil {
		return &VerifyResult{Outcome: OutcomePassed}, nil
	}
	return f(ctx, request, in)
}

type stubRepairer func(context.Context, string, RepairInput) (*RepairResult, error)

func (f stubRepairer) Repair(ctx context.Context, request string, in RepairInput) (*RepairResult, error) {
	if f == nil {
		return &RepairResult{ProducedArtifact: "package main // repaired"}, nil
	}
	return f(ctx, request, in)
}

type stubDocumenter func(context.Context, string, DocumentInput) (*DocumentResult, error)

func (f stubDocumenter) Document(ctx context.Context, request string, in DocumentInput) (*DocumentResult, error) {
	if f == nil {
		return &DocumentResult{Report: "# README"}, nil
	}
	return f(ctx, request, in)
}

type stubSet struct {
	plan      stubPlanner
	implement stubImplementer
	verify    stubVerifier
	repair    stubRepairer
	document  stubDocumenter
}

func (s stubSet) collaborators() Collaborators {
	return Collaborators{
		Planner:     s.plan,
		Implementer: s.implement,
		Verifier:    s.verify,
		Repairer:    s.repair,
		Documenter:  s.document,
	}
}

func newTestEngine(t *testing.T, set stubSet, opts ...Option) *Engine {
	t.Helper()
	engine, err := NewEngine(set.collaborators(), logging.NewTestLogger().Logger, opts...)
	require.NoError(t, err)
	return engine
}

func TestNewEngineRejectsMissingCollaborators(t *testing.T) {
	_, err := NewEngine(Collaborators{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "planner")

	_, err = NewEngine(Collaborators{Planner: stubPlanner(nil)}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "implementer")
}

func TestStartRunVerifyPassesImmediately(t *testing.T) {
	// Scenario B: verify passes on the first attempt; repair never runs.
	engine := newTestEngine(t, stubSet{})

	res := engine.StartRun(context.Background(), RunRequest{Request: "implement quicksort"})

	require.True(t, res.Success)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 0, res.IterationCount)
	assert.Equal(t, []string{"plan", "implement", "verify", "document"}, res.StageSequence)
	assert.NotContains(t, res.CompletedTasks, "repair")
	assert.Empty(t, res.FailedTasks)
	assert.Equal(t, "package main", res.FinalArtifact)
	assert.Equal(t, "# README", res.FinalReport)
	assert.NotEmpty(t, res.RunID)
}

func TestStartRunVerifyAlwaysFails(t *testing.T) {
	// Scenario A: every verify attempt fails; the run visits repair
	// exactly max_iterations times and still completes via document.
	engine := newTestEngine(t, stubSet{
		verify: func(ctx context.Context, request string, in VerifyInput) (*VerifyResult, error) {
			return &VerifyResult{Outcome: OutcomeFailed, Output: "tests failed"}, nil
		},
	})

	res := engine.StartRun(context.Background(), RunRequest{Request: "req", MaxIterations: 2})

	require.True(t, res.Success)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 2, res.IterationCount)
	assert.Equal(t, []string{
		"plan", "implement",
		"verify", "repair",
		"verify", "repair",
		"document",
	}, res.StageSequence)
	assert.Contains(t, res.CompletedTasks, "repair")
}

func TestStartRunPlannerFailureContinues(t *testing.T) {
	// Scenario C: a planner failure is recorded but the run proceeds to
	// implement along the unconditional edge.
	plannerErr := errors.New("model unavailable")
	engine := newTestEngine(t, stubSet{
		plan: func(ctx context.Context, request string) (*PlanResult, error) {
			return nil, plannerErr
		},
	})

	res := engine.StartRun(context.Background(), RunRequest{Request: "req"})

	require.True(t, res.Success)
	assert.Contains(t, res.FailedTasks, "plan")
	require.NotEmpty(t, res.ErrorHistory)
	assert.Contains(t, res.ErrorHistory[0], "model unavailable")
	assert.Contains(t, res.CompletedTasks, "implement")
	assert.Equal(t, "implement", res.StageSequence[1])
}

func TestStartRunRepairFixThenVerifyPasses(t *testing.T) {
	// First verify fails, repair produces a fix, second verify passes.
	verifyCalls := 0
	engine := newTestEngine(t, stubSet{
		verify: func(ctx context.Context, request string, in VerifyInput) (*VerifyResult, error) {
			verifyCalls++
			if verifyCalls == 1 {
				return &VerifyResult{Outcome: OutcomeFailed}, nil
			}
			// The re-verified artifact must be the repaired one.
			assert.Equal(t, "package main // repaired", in.Artifact)
			return &VerifyResult{Outcome: OutcomePassed}, nil
		},
	})

	res := engine.StartRun(context.Background(), RunRequest{Request: "req", MaxIterations: 3})

	require.True(t, res.Success)
	assert.Equal(t, 1, res.IterationCount)
	assert.Equal(t, []string{"plan", "implement", "verify", "repair", "verify", "document"}, res.StageSequence)
	assert.Equal(t, "package main // repaired", res.FinalArtifact)
}

func TestStartRunRepairFailureStillBounded(t *testing.T) {
	// Repair collaborator errors on every visit: the iteration counter
	// still advances, so the cycle stays bounded.
	engine := newTestEngine(t, stubSet{
		verify: func(ctx context.Context, request string, in VerifyInput) (*VerifyResult, error) {
			return &VerifyResult{Outcome: OutcomeFailed}, nil
		},
		repair: func(ctx context.Context, request string, in RepairInput) (*RepairResult, error) {
			return nil, errors.New("repair model timeout")
		},
	})

	res := engine.StartRun(context.Background(), RunRequest{Request: "req", MaxIterations: 2})

	require.True(t, res.Success)
	assert.Equal(t, 2, res.IterationCount)
	assert.Contains(t, res.FailedTasks, "repair")
	assert.Equal(t, StatusCompleted, res.Status)
}

func TestStartRunIterationCeilingRoutesToDocument(t *testing.T) {
	// With max iterations 1, a single repair exhausts the budget and the
	// run documents instead of re-verifying.
	engine := newTestEngine(t, stubSet{
		verify: func(ctx context.Context, request string, in VerifyInput) (*VerifyResult, error) {
			return &VerifyResult{Outcome: OutcomeFailed}, nil
		},
	})

	res := engine.StartRun(context.Background(), RunRequest{Request: "req", MaxIterations: 1})

	require.True(t, res.Success)
	assert.Equal(t, 1, res.IterationCount)
	assert.Equal(t, []string{"plan", "implement", "verify", "repair", "document"}, res.StageSequence)
}

func TestStartRunDocumenterFailureStillCompletes(t *testing.T) {
	engine := newTestEngine(t, stubSet{
		document: func(ctx context.Context, request string, in DocumentInput) (*DocumentResult, error) {
			return nil, errors.New("report generation failed")
		},
	})

	res := engine.StartRun(context.Background(), RunRequest{Request: "req"})

	// Documenting always completes the run; the failure is observable in
	// the failed set and the missing report.
	require.True(t, res.Success)
	assert.Contains(t, res.FailedTasks, "document")
	assert.Empty(t, res.FinalReport)
	assert.False(t, res.Summary.HasReport)
}

func TestStartRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	engine := newTestEngine(t, stubSet{
		plan: func(ctx context.Context, request string) (*PlanResult, error) {
			cancel()
			return nil, ctx.Err()
		},
	})

	res := engine.StartRun(ctx, RunRequest{Request: "req"})

	require.False(t, res.Success)
	assert.Equal(t, StatusFailed, res.Status)
	require.NotEmpty(t, res.ErrorHistory)
	assert.Contains(t, res.ErrorHistory[len(res.ErrorHistory)-1], "cancelled")
}

func TestStartRunPanicBecomesFailedResult(t *testing.T) {
	engine := newTestEngine(t, stubSet{
		implement: func(ctx context.Context, request string, in ImplementInput) (*ImplementResult, error) {
			panic("boom")
		},
	})

	res := engine.StartRun(context.Background(), RunRequest{Request: "req"})

	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, StatusFailed, res.Status)
	require.NotEmpty(t, res.ErrorHistory)
	assert.Contains(t, res.ErrorHistory[len(res.ErrorHistory)-1], "run driver fault")
}

func TestStartRunHonorsProvidedRunID(t *testing.T) {
	engine := newTestEngine(t, stubSet{})

	res := engine.StartRun(context.Background(), RunRequest{Request: "req", RunID: "custom-id"})

	assert.Equal(t, "custom-id", res.RunID)
	assert.Equal(t, "custom-id", res.Summary.RunID)
}

func TestStartRunUsesEngineDefaultMaxIterations(t *testing.T) {
	engine := newTestEngine(t, stubSet{
		verify: func(ctx context.Context, request string, in VerifyInput) (*VerifyResult, error) {
			return &VerifyResult{Outcome: OutcomeFailed}, nil
		},
	}, WithMaxIterations(4))

	res := engine.StartRun(context.Background(), RunRequest{Request: "req"})

	assert.Equal(t, 4, res.IterationCount)
}

func TestIterationInvariantHoldsAfterEveryTransition(t *testing.T) {
	// iteration_count never exceeds max_iterations at any observation
	// point during a run where verification always fails.
	maxIterations := 3
	engine := newTestEngine(t, stubSet{
		verify: func(ctx context.Context, request string, in VerifyInput) (*VerifyResult, error) {
			return &VerifyResult{Outcome: OutcomeFailed}, nil
		},
		repair: func(ctx context.Context, request string, in RepairInput) (*RepairResult, error) {
			return &RepairResult{ProducedArtifact: "v2"}, nil
		},
	})

	res := engine.StartRun(context.Background(), RunRequest{Request: "req", MaxIterations: maxIterations})

	assert.GreaterOrEqual(t, res.IterationCount, 0)
	assert.LessOrEqual(t, res.IterationCount, maxIterations)
	assert.Equal(t, maxIterations, res.IterationCount)
}

func TestRouteAfterVerify(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*RunState)
		want   routeTarget
	}{
		{
			name:  "failed status terminates",
			setup: func(s *RunState) { s.AdvanceStatus(StatusFailed) },
			want:  terminate(StatusFailed),
		},
		{
			name: "ceiling reached routes to document",
			setup: func(s *RunState) {
				s.IterationCount = s.MaxIterations
				s.VerifyResult = &VerifyResult{Outcome: OutcomeFailed}
			},
			want: toStage(StageDocument),
		},
		{
			name: "failed verdict routes to repair",
			setup: func(s *RunState) {
				s.VerifyResult = &VerifyResult{Outcome: OutcomeFailed}
			},
			want: toStage(StageRepair),
		},
		{
			name: "passed verdict routes to document",
			setup: func(s *RunState) {
				s.VerifyResult = &VerifyResult{Outcome: OutcomePassed}
			},
			want: toStage(StageDocument),
		},
		{
			name:  "missing verdict routes to document",
			setup: func(s *RunState) {},
			want:  toStage(StageDocument),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRunState("run-1", "req", 3)
			tt.setup(s)
			assert.Equal(t, tt.want, routeAfterVerify(s))
		})
	}
}

func TestRouteAfterRepair(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*RunState)
		want  routeTarget
	}{
		{
			name:  "failed status terminates",
			setup: func(s *RunState) { s.AdvanceStatus(StatusFailed) },
			want:  terminate(StatusFailed),
		},
		{
			name: "ceiling reached routes to document",
			setup: func(s *RunState) {
				s.IterationCount = s.MaxIterations
			},
			want: toStage(StageDocument),
		},
		{
			name: "still needs repair routes back to verify",
			setup: func(s *RunState) {
				s.VerifyResult = &VerifyResult{Outcome: OutcomeFailed}
				s.IterationCount = 1
			},
			want: toStage(StageVerify),
		},
		{
			name: "otherwise routes to document",
			setup: func(s *RunState) {
				s.VerifyResult = &VerifyResult{Outcome: OutcomePassed}
			},
			want: toStage(StageDocument),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRunState("run-1", "req", 3)
			tt.setup(s)
			assert.Equal(t, tt.want, routeAfterRepair(s))
		})
	}
}

func TestConcurrentRunsAreIndependent(t *testing.T) {
	engine := newTestEngine(t, stubSet{})

	const runs = 8
	results := make(chan *RunResult, runs)
	for i := 0; i < runs; i++ {
		go func() {
			results <- engine.StartRun(context.Background(), RunRequest{Request: "req"})
		}()
	}

	seen := make(map[string]bool)
	for i := 0; i < runs; i++ {
		res := <-results
		require.True(t, res.Success)
		assert.False(t, seen[res.RunID], "run IDs must be unique")
		seen[res.RunID] = true
	}
}
