package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/devloop/internal/workflow"
	"github.com/fyrsmithlabs/devloop/internal/workspace"
)

const documenterSystemPrompt = `You are an expert technical writer. Your job is to:
1. Produce clear documentation for code
2. Write a README covering purpose, usage, and API
3. Create usage examples
4. Keep the documentation accurate and complete

Use Markdown. Explain anything non-obvious and include runnable examples.`

// Documenter writes the final report and usage examples for the run's
// artifact.
type Documenter struct {
	agent
}

// NewDocumenter creates the documentation collaborator.
func NewDocumenter(model llms.Model, opts Options) *Documenter {
	return &Documenter{agent: newAgent("documenter", documenterSystemPrompt, model, opts)}
}

// Document implements workflow.Documenter.
func (d *Documenter) Document(ctx context.Context, request string, in workflow.DocumentInput) (*workflow.DocumentResult, error) {
	if in.Artifact == "" {
		return nil, fmt.Errorf("no artifact to document")
	}

	report, err := d.generateReport(ctx, request, in)
	if err != nil {
		return nil, err
	}

	examples, err := d.generateExamples(ctx, request, in.Artifact)
	if err != nil {
		return nil, err
	}

	result := &workflow.DocumentResult{
		Report:   report,
		Examples: examples,
	}
	if path := d.save(ctx, "docs", workspace.SafeFileName(request, "_README.md"), report); path != "" {
		result.Paths = append(result.Paths, path)
	}
	if path := d.save(ctx, "docs", workspace.SafeFileName(request, "_examples.md"), examples); path != "" {
		result.Paths = append(result.Paths, path)
	}
	return result, nil
}

func (d *Documenter) generateReport(ctx context.Context, request string, in workflow.DocumentInput) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Final code:\n```go\n%s\n```\n\n", in.Artifact)
	fmt.Fprintf(&b, "Task description: %s\n\n", request)
	if in.Verify != nil {
		fmt.Fprintf(&b, "Verification outcome: %s\n", in.Verify.Outcome)
	}
	if in.Repair != nil && in.Repair.ProducedArtifact != "" {
		b.WriteString("The code went through a repair cycle before reaching this state.\n")
	}
	b.WriteString("\nWrite a complete README for this code. Include:\n" +
		"1. What it does and why\n" +
		"2. API documentation: functions, parameters, return values, errors\n" +
		"3. Usage instructions\n" +
		"4. Anything to watch out for\n\n" +
		"Use Markdown.")

	return d.generate(ctx, b.String())
}

func (d *Documenter) generateExamples(ctx context.Context, request, artifact string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Code:\n```go\n%s\n```\n\n", artifact)
	fmt.Fprintf(&b, "Task description: %s\n\n", request)
	b.WriteString("Write usage examples for this code. Cover the common cases and at " +
		"least one boundary case. Use Markdown with fenced Go code blocks.")

	return d.generate(ctx, b.String())
}
