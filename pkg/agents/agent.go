package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/devloop/internal/logging"
	"github.com/fyrsmithlabs/devloop/internal/workspace"
)

// Options carries generation settings and shared infrastructure for an
// agent. Workspace is optional; without it agents skip artifact
// persistence and only return results.
type Options struct {
	Temperature float64
	MaxTokens   int
	Logger      *logging.Logger
	Workspace   *workspace.Workspace
}

func (o Options) callOptions() []llms.CallOption {
	opts := []llms.CallOption{}
	if o.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(o.Temperature))
	}
	if o.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(o.MaxTokens))
	}
	return opts
}

// agent is the shared core: one model, one system prompt, one role name.
type agent struct {
	name         string
	systemPrompt string
	model        llms.Model
	logger       *logging.Logger
	ws           *workspace.Workspace
	callOpts     []llms.CallOption
}

func newAgent(name, systemPrompt string, model llms.Model, opts Options) agent {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return agent{
		name:         name,
		systemPrompt: systemPrompt,
		model:        model,
		logger:       logger.Named(name),
		ws:           opts.Workspace,
		callOpts:     opts.callOptions(),
	}
}

// generate runs one exchange and returns the model's text. The role's
// system prompt is folded into the prompt itself.
func (a *agent) generate(ctx context.Context, prompt string) (string, error) {
	full := a.systemPrompt + "\n\n" + prompt

	a.logger.Debug(ctx, "generating", zap.Int("prompt_len", len(full)))

	out, err := llms.GenerateFromSinglePrompt(ctx, a.model, full, a.callOpts...)
	if err != nil {
		return "", fmt.Errorf("%s generation failed: %w", a.name, err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%s returned an empty response", a.name)
	}
	return out, nil
}

// save persists an artifact when a workspace is configured. Returns an
// empty path otherwise.
func (a *agent) save(ctx context.Context, subdir, filename, content string) string {
	if a.ws == nil {
		return ""
	}
	path, err := a.ws.Save(subdir, filename, content)
	if err != nil {
		a.logger.Warn(ctx, "failed to save artifact",
			zap.String("filename", filename),
			zap.Error(err))
		return ""
	}
	a.logger.Debug(ctx, "artifact saved", zap.String("path", path))
	return path
}

// extractCodeBlock returns the contents of the first fenced code block
// tagged with lang, or any untagged fenced block as a fallback. Empty
// when the text has no fences at all, in which case callers may decide
// to treat the whole text as code.
func extractCodeBlock(text, lang string) string {
	if block := fencedBlock(text, "```"+lang); block != "" {
		return block
	}
	return fencedBlock(text, "```")
}

func fencedBlock(text, opener string) string {
	var (
		lines   = strings.Split(text, "\n")
		body    []string
		inBlock bool
	)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case !inBlock && strings.HasPrefix(trimmed, opener):
			inBlock = true
		case inBlock && trimmed == "```":
			return strings.Join(body, "\n")
		case inBlock:
			body = append(body, line)
		}
	}
	return ""
}
