package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/devloop/internal/workflow"
	"github.com/fyrsmithlabs/devloop/internal/workspace"
)

const coderSystemPrompt = `You are an expert Go programmer. Your job is to:
1. Write high-quality Go code for the given request and plan
2. Follow standard Go style and naming conventions
3. Write clear, readable code
4. Include appropriate error handling
5. Add doc comments where they help

Make sure the code:
- Has a clear structure
- Handles boundary conditions
- Is testable
- Compiles as a single file in package solution`

// Coder generates the code artifact for a request.
type Coder struct {
	agent
}

// NewCoder creates the implementation collaborator.
func NewCoder(model llms.Model, opts Options) *Coder {
	return &Coder{agent: newAgent("coder", coderSystemPrompt, model, opts)}
}

// Implement implements workflow.Implementer.
func (c *Coder) Implement(ctx context.Context, request string, in workflow.ImplementInput) (*workflow.ImplementResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Development task: %s\n\n", request)
	if in.Plan != nil && in.Plan.Plan != "" {
		fmt.Fprintf(&b, "Development plan:\n%s\n\n", in.Plan.Plan)
	}
	b.WriteString("Write the complete Go implementation. Include:\n" +
		"1. The main functionality\n" +
		"2. Error handling\n" +
		"3. Doc comments\n" +
		"4. Boundary-condition handling\n\n" +
		"Start the code block with ```go and end it with ```.")

	out, err := c.generate(ctx, b.String())
	if err != nil {
		return nil, err
	}

	code := extractCodeBlock(out, "go")
	if code == "" {
		return nil, fmt.Errorf("coder response contained no code block")
	}

	result := &workflow.ImplementResult{
		Code:     code,
		Language: "go",
	}
	result.Path = c.save(ctx, "generated_code", workspace.SafeFileName(request, ".go"), code)
	return result, nil
}
