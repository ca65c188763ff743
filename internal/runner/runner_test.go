package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/devloop/internal/logging"
)

func TestRun(t *testing.T) {
	r := New(10*time.Second, logging.NewNop())
	ctx := context.Background()

	t.Run("captures stdout on success", func(t *testing.T) {
		result, err := r.Run(ctx, t.TempDir(), "sh", "-c", "echo hello")
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, 0, result.ExitCode)
		assert.Equal(t, "hello", result.Stdout)
		assert.False(t, result.TimedOut)
	})

	t.Run("non-zero exit is a result not an error", func(t *testing.T) {
		result, err := r.Run(ctx, t.TempDir(), "sh", "-c", "echo broken >&2; exit 3")
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, 3, result.ExitCode)
		assert.Equal(t, "broken", result.Stderr)
	})

	t.Run("missing binary is an error", func(t *testing.T) {
		_, err := r.Run(ctx, t.TempDir(), "definitely-not-a-real-binary-xyz")
		require.Error(t, err)
	})

	t.Run("runs in working directory", func(t *testing.T) {
		dir := t.TempDir()
		result, err := r.Run(ctx, dir, "pwd")
		require.NoError(t, err)
		assert.Contains(t, result.Stdout, dir)
	})
}

func TestRunTimeout(t *testing.T) {
	r := New(100*time.Millisecond, logging.NewNop())

	result, err := r.Run(context.Background(), t.TempDir(), "sleep", "5")
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.False(t, result.Success)
	assert.Equal(t, -1, result.ExitCode)
	assert.Contains(t, result.Stderr, "timed out")
}

func TestCombinedOutput(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   string
	}{
		{"stdout only", Result{Stdout: "out"}, "out"},
		{"stderr only", Result{Stderr: "err"}, "err"},
		{"both", Result{Stdout: "out", Stderr: "err"}, "out\nerr"},
		{"empty", Result{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.CombinedOutput())
		})
	}
}

func TestNewDefaults(t *testing.T) {
	r := New(0, nil)
	require.NotNil(t, r)
	assert.Equal(t, defaultTimeout, r.timeout)
}
