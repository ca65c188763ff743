package agents

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/devloop/internal/runner"
	"github.com/fyrsmithlabs/devloop/internal/workflow"
	"github.com/fyrsmithlabs/devloop/internal/workspace"
)

const testerSystemPrompt = `You are an expert software test engineer. Your job is to:
1. Analyze the given Go code
2. Write thorough unit tests for it
3. Cover boundary conditions and error cases
4. Use the standard testing package
5. Use clear assertions and readable test names

The code under test lives in solution.go in package solution. Write the
tests for package solution so they compile in the same directory.`

// scratchGoMod is the module stub written into each verification
// directory so the generated code and tests build as a standalone module.
const scratchGoMod = "module solution\n\ngo 1.24\n"

// CommandRunner executes a command in a directory. Satisfied by
// runner.Runner; a test double goes here in unit tests.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (*runner.Result, error)
}

// Tester generates unit tests for the current artifact and runs them in
// a scratch module, turning the exit code into a verdict.
type Tester struct {
	agent
	runner CommandRunner
}

// NewTester creates the verification collaborator. The workspace is
// required here: test runs need a directory to stage code into.
func NewTester(model llms.Model, run CommandRunner, opts Options) (*Tester, error) {
	if opts.Workspace == nil {
		return nil, fmt.Errorf("tester requires a workspace")
	}
	if run == nil {
		return nil, fmt.Errorf("tester requires a command runner")
	}
	return &Tester{
		agent:  newAgent("tester", testerSystemPrompt, model, opts),
		runner: run,
	}, nil
}

// Verify implements workflow.Verifier.
func (t *Tester) Verify(ctx context.Context, request string, in workflow.VerifyInput) (*workflow.VerifyResult, error) {
	if in.Artifact == "" {
		return nil, fmt.Errorf("no artifact to verify")
	}

	testCode, err := t.generateTests(ctx, request, in.Artifact)
	if err != nil {
		return nil, err
	}

	result, err := t.runTests(ctx, in.Artifact, testCode)
	if err != nil {
		return nil, err
	}

	outcome := workflow.OutcomeFailed
	if result.Success {
		outcome = workflow.OutcomePassed
	}
	t.logger.Info(ctx, "verification finished",
		zap.String("outcome", string(outcome)),
		zap.Int("exit_code", result.ExitCode))

	return &workflow.VerifyResult{
		Outcome:  outcome,
		TestCode: testCode,
		TestPath: t.save(ctx, "tests", workspace.SafeFileName(request, "_test.go"), testCode),
		Output:   result.CombinedOutput(),
		ExitCode: result.ExitCode,
	}, nil
}

func (t *Tester) generateTests(ctx context.Context, request, artifact string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Code under test:\n```go\n%s\n```\n\n", artifact)
	fmt.Fprintf(&b, "Task description: %s\n\n", request)
	b.WriteString("Write complete unit tests for this code. Include:\n" +
		"1. The package clause and necessary imports\n" +
		"2. Tests for normal behavior\n" +
		"3. Tests for boundary conditions\n" +
		"4. Tests for error cases\n\n" +
		"Start the test code with ```go and end it with ```.")

	out, err := t.generate(ctx, b.String())
	if err != nil {
		return "", err
	}

	testCode := extractCodeBlock(out, "go")
	if testCode == "" {
		return "", fmt.Errorf("tester response contained no test code block")
	}
	return testCode, nil
}

// runTests stages the artifact and tests as a throwaway module and runs
// go test there.
func (t *Tester) runTests(ctx context.Context, artifact, testCode string) (*runner.Result, error) {
	dir, err := t.ws.TempDir("verify-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	files := map[string]string{
		"go.mod":           scratchGoMod,
		"solution.go":      artifact,
		"solution_test.go": testCode,
	}
	for name, content := range files {
		if err := os.WriteFile(dir+"/"+name, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("failed to stage %s: %w", name, err)
		}
	}

	return t.runner.Run(ctx, dir, "go", "test", "./...")
}
