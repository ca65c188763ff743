package workflow

import (
	"time"
)

// RunState is the single mutable record describing one workflow
// execution. It is exclusively owned by the engine for the run's
// duration; once the status reaches a terminal value it is read-only.
type RunState struct {
	// ID is the opaque run identifier, assigned at creation.
	ID string `json:"id"`

	// Request is the original task description.
	Request string `json:"request"`

	// Status always equals the stage currently executing or a terminal
	// value. It advances along graph edges; the only designed reversal is
	// the verify/repair cycle.
	Status Status `json:"status"`

	// CurrentTask is a human-readable label of the work in progress,
	// overwritten on each stage entry.
	CurrentTask string `json:"current_task,omitempty"`

	// CompletedTasks and FailedTasks are append-only, duplicate-free
	// ordered sets of stage names.
	CompletedTasks []string `json:"completed_tasks"`
	FailedTasks    []string `json:"failed_tasks"`

	// Per-stage result slots. Each holds the most recent result returned
	// by that stage's collaborator; overwritten on each visit.
	PlanResult      *PlanResult      `json:"plan_result,omitempty"`
	ImplementResult *ImplementResult `json:"implement_result,omitempty"`
	VerifyResult    *VerifyResult    `json:"verify_result,omitempty"`
	RepairResult    *RepairResult    `json:"repair_result,omitempty"`
	DocumentResult  *DocumentResult  `json:"document_result,omitempty"`

	// IterationCount is incremented exactly once per repair visit and
	// never exceeds MaxIterations.
	IterationCount int `json:"iteration_count"`

	// MaxIterations is the immutable iteration ceiling set at creation.
	MaxIterations int `json:"max_iterations"`

	LastError    string   `json:"last_error,omitempty"`
	ErrorHistory []string `json:"error_history,omitempty"`

	// Context passes accumulated artifacts between stages without each
	// stage needing the others' concrete types.
	Context map[string]any `json:"context,omitempty"`

	// FinalArtifact and FinalReport are set only by the document stage.
	FinalArtifact string `json:"final_artifact,omitempty"`
	FinalReport   string `json:"final_report,omitempty"`

	// StageSequence is the ordered log of stage visits.
	StageSequence []string `json:"stage_sequence,omitempty"`

	StartedAt time.Time `json:"started_at"`
}

// NewRunState creates run state for a fresh run.
func NewRunState(id, request string, maxIterations int) *RunState {
	return &RunState{
		ID:             id,
		Request:        request,
		Status:         StatusPending,
		CompletedTasks: []string{},
		FailedTasks:    []string{},
		MaxIterations:  maxIterations,
		Context:        make(map[string]any),
		StartedAt:      time.Now(),
	}
}

// AdvanceStatus overwrites the status unconditionally. Graph legality is
// the caller's responsibility; only the run driver calls this.
func (s *RunState) AdvanceStatus(status Status) {
	s.Status = status
}

// RecordCompletion inserts the stage into the completed set. Idempotent.
func (s *RunState) RecordCompletion(stage Stage) {
	s.CompletedTasks = appendUnique(s.CompletedTasks, string(stage))
}

// RecordFailure inserts the stage into the failed set. Idempotent.
func (s *RunState) RecordFailure(stage Stage) {
	s.FailedTasks = appendUnique(s.FailedTasks, string(stage))
}

// RecordError sets the last error and appends to the error history.
func (s *RunState) RecordError(msg string) {
	s.LastError = msg
	s.ErrorHistory = append(s.ErrorHistory, msg)
}

// IncrementIteration advances the repair iteration counter. Callers must
// not invoke it more than once per repair visit.
func (s *RunState) IncrementIteration() {
	s.IterationCount++
}

// CanContinue reports whether another repair iteration is allowed.
func (s *RunState) CanContinue() bool {
	return s.IterationCount < s.MaxIterations
}

// NeedsRepair reports whether the most recent verify attempt failed and
// the iteration ceiling has not been reached.
func (s *RunState) NeedsRepair() bool {
	return s.VerifyResult != nil &&
		s.VerifyResult.Outcome == OutcomeFailed &&
		s.CanContinue()
}

// LatestArtifact returns the current canonical artifact: the repair
// stage's produced artifact if present, else the implement stage's
// artifact, else empty.
func (s *RunState) LatestArtifact() string {
	if s.RepairResult != nil && s.RepairResult.ProducedArtifact != "" {
		return s.RepairResult.ProducedArtifact
	}
	if s.ImplementResult != nil {
		return s.ImplementResult.Code
	}
	return ""
}

// VerifyOutcome returns the most recent verify verdict, or "not_verified"
// when verification has not run.
func (s *RunState) VerifyOutcome() string {
	if s.VerifyResult == nil {
		return "not_verified"
	}
	return string(s.VerifyResult.Outcome)
}

// SetContext stores an artifact in the generic context store.
func (s *RunState) SetContext(key string, value any) {
	s.Context[key] = value
}

// GetContext retrieves an artifact from the generic context store.
func (s *RunState) GetContext(key string) (any, bool) {
	v, ok := s.Context[key]
	return v, ok
}

// Summary is the read-only projection of run state handed to callers.
// It never exposes the internal result slots directly.
type Summary struct {
	RunID          string `json:"run_id"`
	Status         Status `json:"status"`
	IterationCount int    `json:"iteration_count"`
	CompletedTasks int    `json:"completed_tasks"`
	FailedTasks    int    `json:"failed_tasks"`
	HasArtifact    bool   `json:"has_artifact"`
	VerifyOutcome  string `json:"verify_outcome"`
	HasReport      bool   `json:"has_report"`
	LastError      string `json:"last_error,omitempty"`
}

// Summary builds the external projection of the run state.
func (s *RunState) Summary() Summary {
	return Summary{
		RunID:          s.ID,
		Status:         s.Status,
		IterationCount: s.IterationCount,
		CompletedTasks: len(s.CompletedTasks),
		FailedTasks:    len(s.FailedTasks),
		HasArtifact:    s.LatestArtifact() != "",
		VerifyOutcome:  s.VerifyOutcome(),
		HasReport:      s.DocumentResult != nil,
		LastError:      s.LastError,
	}
}

func appendUnique(set []string, value string) []string {
	for _, v := range set {
		if v == value {
			return set
		}
	}
	return append(set, value)
}
