// Package config provides configuration loading for devloop.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// Duration wraps time.Duration for text unmarshaling (YAML, env vars).
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret wraps strings that should be redacted in logs and serialization.
// Use Value() to access the actual secret value.
type Secret string

// String implements fmt.Stringer. Always returns redacted value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// MarshalJSON implements json.Marshaler. Always redacts.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Value returns the actual secret value. Use sparingly.
func (s Secret) Value() string {
	return string(s)
}

// Config is the root devloop configuration.
type Config struct {
	LLM      LLMConfig      `koanf:"llm"`
	Workflow WorkflowConfig `koanf:"workflow"`
	Output   OutputConfig   `koanf:"output"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// LLMConfig configures the language-model backend shared by all agents.
type LLMConfig struct {
	// BaseURL is the OpenAI-compatible API endpoint.
	BaseURL string `koanf:"base_url"`

	// Model is the model identifier sent with each request.
	Model string `koanf:"model"`

	// APIKey authenticates against the backend.
	APIKey Secret `koanf:"api_key"`

	// Temperature controls sampling randomness.
	Temperature float64 `koanf:"temperature"`

	// MaxTokens bounds generated output length.
	MaxTokens int `koanf:"max_tokens"`
}

// WorkflowConfig configures run execution.
type WorkflowConfig struct {
	// MaxIterations bounds the verify/repair cycle per run.
	MaxIterations int `koanf:"max_iterations"`

	// StageTimeout bounds a single collaborator call.
	StageTimeout Duration `koanf:"stage_timeout"`
}

// OutputConfig configures artifact persistence.
type OutputConfig struct {
	// Dir is where generated code, tests, and docs are written.
	Dir string `koanf:"dir"`

	// SaveIntermediate writes per-stage artifacts, not just final outputs.
	SaveIntermediate bool `koanf:"save_intermediate"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns a Config with production defaults applied.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o",
			Temperature: 0.7,
			MaxTokens:   16384,
		},
		Workflow: WorkflowConfig{
			MaxIterations: 3,
			StageTimeout:  Duration(5 * time.Minute),
		},
		Output: OutputConfig{
			Dir:              "output",
			SaveIntermediate: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be in [0, 2], got %v", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be > 0, got %d", c.LLM.MaxTokens)
	}
	if c.Workflow.MaxIterations <= 0 {
		return fmt.Errorf("workflow.max_iterations must be > 0, got %d", c.Workflow.MaxIterations)
	}
	if c.Workflow.StageTimeout.Duration() <= 0 {
		return fmt.Errorf("workflow.stage_timeout must be > 0")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level %q: %w", c.Logging.Level, err)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	return nil
}
