package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/devloop/internal/workflow"
)

const plannerSystemPrompt = `You are an expert software development planner. Your job is to:
1. Analyze the user's feature request
2. Break complex requirements into executable subtasks
3. Produce a detailed development plan
4. Order subtasks by priority and dependency

Reply in a clear, structured format covering:
- Requirements analysis
- Task breakdown
- Implementation steps
- Expected results`

// Planner turns a free-form request into a structured development plan.
type Planner struct {
	agent
}

// NewPlanner creates the planning collaborator.
func NewPlanner(model llms.Model, opts Options) *Planner {
	return &Planner{agent: newAgent("planner", plannerSystemPrompt, model, opts)}
}

// Plan implements workflow.Planner.
func (p *Planner) Plan(ctx context.Context, request string) (*workflow.PlanResult, error) {
	prompt := fmt.Sprintf("User request: %s\n\nAnalyze this request and produce a detailed development plan.", request)

	out, err := p.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return &workflow.PlanResult{
		Plan:  out,
		Tasks: extractTasks(out),
	}, nil
}

// extractTasks pulls numbered or bulleted lines out of the plan text as
// actionable items.
func extractTasks(plan string) []workflow.PlanTask {
	var tasks []workflow.PlanTask
	for _, line := range strings.Split(plan, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isTaskLine(line) {
			tasks = append(tasks, workflow.PlanTask{
				Description: line,
				Priority:    "medium",
			})
		}
	}
	return tasks
}

func isTaskLine(line string) bool {
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		return true
	}
	// Numbered items such as "1." through "99.".
	dot := strings.IndexByte(line, '.')
	if dot <= 0 || dot > 2 {
		return false
	}
	for _, r := range line[:dot] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(line) > dot+1
}
