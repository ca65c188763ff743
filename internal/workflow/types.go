package workflow

import (
	"context"
	"errors"
)

// Stage identifies one named phase of the pipeline.
type Stage string

const (
	StagePlan      Stage = "plan"
	StageImplement Stage = "implement"
	StageVerify    Stage = "verify"
	StageRepair    Stage = "repair"
	StageDocument  Stage = "document"

	// StageEnd is the pseudo-stage used in topology descriptions for run
	// termination. It never executes.
	StageEnd Stage = "end"
)

// AllStages returns the five executable stages in entry order.
func AllStages() []Stage {
	return []Stage{StagePlan, StageImplement, StageVerify, StageRepair, StageDocument}
}

// Status is the run-level status. It always equals the stage currently
// executing or a terminal value.
type Status string

const (
	StatusPending      Status = "pending"
	StatusPlanning     Status = "planning"
	StatusImplementing Status = "implementing"
	StatusVerifying    Status = "verifying"
	StatusRepairing    Status = "repairing"
	StatusDocumenting  Status = "documenting"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Terminal reports whether the status ends a run. Once a run reaches a
// terminal status its state is read-only.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Outcome is the verifier's verdict on the current artifact.
type Outcome string

const (
	OutcomePassed Outcome = "passed"
	OutcomeFailed Outcome = "failed"
)

// PlanTask is one actionable item extracted from a plan.
type PlanTask struct {
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// PlanResult is the planner's output.
type PlanResult struct {
	Plan  string     `json:"plan"`
	Tasks []PlanTask `json:"tasks,omitempty"`
}

// ImplementResult is the implementer's output. After a successful repair
// the slot holds the repaired artifact so downstream stages see one
// canonical current artifact.
type ImplementResult struct {
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
	Path     string `json:"path,omitempty"`

	// Repaired marks code that was produced by the repair stage rather
	// than the original implementation pass.
	Repaired bool `json:"repaired,omitempty"`

	// Iteration is the repair iteration that produced this artifact;
	// zero for the original implementation.
	Iteration int `json:"iteration,omitempty"`
}

// VerifyResult is the verifier's output.
type VerifyResult struct {
	Outcome  Outcome `json:"outcome"`
	TestCode string  `json:"test_code,omitempty"`
	TestPath string  `json:"test_path,omitempty"`
	Output   string  `json:"output,omitempty"`
	ExitCode int     `json:"exit_code,omitempty"`
}

// RepairResult is the repairer's output. ProducedArtifact is empty when
// the repairer could not produce a fix.
type RepairResult struct {
	Analysis         string   `json:"analysis,omitempty"`
	ProducedArtifact string   `json:"produced_artifact"`
	SyntaxValid      bool     `json:"syntax_valid,omitempty"`
	Issues           []string `json:"issues,omitempty"`
}

// DocumentResult is the documenter's output.
type DocumentResult struct {
	Report   string   `json:"report"`
	Examples string   `json:"examples,omitempty"`
	Paths    []string `json:"paths,omitempty"`
}

// ImplementInput is the context view the implementer receives.
type ImplementInput struct {
	Plan      *PlanResult
	Iteration int
}

// VerifyInput is the context view the verifier receives.
type VerifyInput struct {
	Artifact string
	Plan     *PlanResult
}

// RepairInput is the context view the repairer receives.
type RepairInput struct {
	Artifact string
	Verify   *VerifyResult
	Plan     *PlanResult
}

// DocumentInput is the context view the documenter receives. Artifact is
// the current canonical artifact (repair output supersedes implement
// output).
type DocumentInput struct {
	Artifact string
	Plan     *PlanResult
	Verify   *VerifyResult
	Repair   *RepairResult
}

// Collaborator contracts. Each stage delegates to exactly one of these;
// the orchestrator treats results as opaque beyond the declared fields.

type Planner interface {
	Plan(ctx context.Context, request string) (*PlanResult, error)
}

type Implementer interface {
	Implement(ctx context.Context, request string, in ImplementInput) (*ImplementResult, error)
}

type Verifier interface {
	Verify(ctx context.Context, request string, in VerifyInput) (*VerifyResult, error)
}

type Repairer interface {
	Repair(ctx context.Context, request string, in RepairInput) (*RepairResult, error)
}

type Documenter interface {
	Document(ctx context.Context, request string, in DocumentInput) (*DocumentResult, error)
}

// Collaborators is the explicit capability set injected into the engine.
// All five roles are required.
type Collaborators struct {
	Planner     Planner
	Implementer Implementer
	Verifier    Verifier
	Repairer    Repairer
	Documenter  Documenter
}

// Validate reports whether every role is present.
func (c Collaborators) Validate() error {
	switch {
	case c.Planner == nil:
		return errors.New("planner collaborator is required")
	case c.Implementer == nil:
		return errors.New("implementer collaborator is required")
	case c.Verifier == nil:
		return errors.New("verifier collaborator is required")
	case c.Repairer == nil:
		return errors.New("repairer collaborator is required")
	case c.Documenter == nil:
		return errors.New("documenter collaborator is required")
	}
	return nil
}

// Edge is a static, unconditional transition between stages.
type Edge struct {
	From Stage `json:"from"`
	To   Stage `json:"to"`
}

// ConditionalEdge describes the possible targets of a routing decision.
type ConditionalEdge struct {
	From    Stage   `json:"from"`
	Targets []Stage `json:"targets"`
}

// GraphTopology is a pure, execution-independent description of the stage
// graph used for introspection and visualization.
type GraphTopology struct {
	Stages           []Stage           `json:"stages"`
	StaticEdges      []Edge            `json:"static_edges"`
	ConditionalEdges []ConditionalEdge `json:"conditional_edges"`
	EntryStage       Stage             `json:"entry_stage"`
}
