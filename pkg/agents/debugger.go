package agents

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/devloop/internal/workflow"
	"github.com/fyrsmithlabs/devloop/internal/workspace"
)

const debuggerSystemPrompt = `You are an expert code debugging specialist. Your job is to:
1. Analyze why tests failed
2. Identify bugs and problems in the code
3. Propose concrete fixes
4. Produce the fixed code
5. Make sure the fix does not introduce new problems

Make sure you:
- Pinpoint the root cause accurately
- Explain the fix clearly
- Keep the original behavior intact
- Consider boundary conditions`

const maxLineLength = 120

// Debugger analyzes a failed verification and produces a repaired
// artifact, with a static syntax check on the result.
type Debugger struct {
	agent
}

// NewDebugger creates the repair collaborator.
func NewDebugger(model llms.Model, opts Options) *Debugger {
	return &Debugger{agent: newAgent("debugger", debuggerSystemPrompt, model, opts)}
}

// Repair implements workflow.Repairer. An empty ProducedArtifact with a
// nil error means the model answered but produced no usable fix; the
// orchestrator keeps the previous artifact in that case.
func (d *Debugger) Repair(ctx context.Context, request string, in workflow.RepairInput) (*workflow.RepairResult, error) {
	if in.Artifact == "" {
		return nil, fmt.Errorf("no artifact to repair")
	}

	analysis, err := d.analyzeFailure(ctx, in)
	if err != nil {
		return nil, err
	}

	fixed, err := d.generateFix(ctx, request, in.Artifact, analysis)
	if err != nil {
		return nil, err
	}

	result := &workflow.RepairResult{
		Analysis:         analysis,
		ProducedArtifact: fixed,
	}
	if fixed == "" {
		d.logger.Warn(ctx, "repair produced no code block")
		return result, nil
	}

	result.SyntaxValid, result.Issues = staticCheck(fixed)
	if !result.SyntaxValid {
		d.logger.Warn(ctx, "repaired code has syntax errors",
			zap.Strings("issues", result.Issues))
	}
	d.save(ctx, "repairs", workspace.SafeFileName(request, "_fixed.go"), fixed)
	return result, nil
}

func (d *Debugger) analyzeFailure(ctx context.Context, in workflow.RepairInput) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Original code:\n```go\n%s\n```\n\n", in.Artifact)
	b.WriteString("Test execution result:\n")
	if in.Verify != nil {
		fmt.Fprintf(&b, "- Outcome: %s\n", in.Verify.Outcome)
		fmt.Fprintf(&b, "- Exit code: %d\n", in.Verify.ExitCode)
		fmt.Fprintf(&b, "- Output:\n%s\n", in.Verify.Output)
	} else {
		b.WriteString("- No test output available\n")
	}
	b.WriteString("\nAnalyze why these failures happened and write a detailed report covering:\n" +
		"1. Error type and location\n" +
		"2. Root cause\n" +
		"3. Fix approach\n" +
		"4. Things to watch out for")

	return d.generate(ctx, b.String())
}

func (d *Debugger) generateFix(ctx context.Context, request, artifact, analysis string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Original code:\n```go\n%s\n```\n\n", artifact)
	fmt.Fprintf(&b, "Error analysis:\n%s\n\n", analysis)
	fmt.Fprintf(&b, "Task description: %s\n\n", request)
	b.WriteString("Produce the complete fixed code. Make sure to:\n" +
		"1. Fix every identified problem\n" +
		"2. Keep the original behavior\n" +
		"3. Keep the code structure clear\n\n" +
		"Start the fixed code with ```go and end it with ```.")

	out, err := d.generate(ctx, b.String())
	if err != nil {
		return "", err
	}
	return extractCodeBlock(out, "go"), nil
}

// staticCheck parses the code and flags syntax errors plus overlong
// lines and leftover TODO/FIXME markers.
func staticCheck(code string) (valid bool, issues []string) {
	fset := token.NewFileSet()
	if _, err := parser.ParseFile(fset, "solution.go", code, parser.AllErrors); err != nil {
		return false, []string{err.Error()}
	}

	for i, line := range strings.Split(code, "\n") {
		if len(line) > maxLineLength {
			issues = append(issues, fmt.Sprintf("line %d exceeds %d characters", i+1, maxLineLength))
		}
		if strings.Contains(line, "TODO") || strings.Contains(line, "FIXME") {
			issues = append(issues, fmt.Sprintf("line %d contains a TODO/FIXME marker", i+1))
		}
	}
	return true, issues
}
