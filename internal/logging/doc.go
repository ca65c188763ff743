// Package logging provides structured, context-aware logging for devloop.
//
// The package wraps Zap with helpers that attach run correlation data
// (run ID, active stage, trace/span IDs) to every log entry. Components
// receive a *Logger via dependency injection; request-scoped correlation
// travels through context.Context.
//
// Example:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig())
//	if err != nil {
//	    // handle error
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	logger.Info(ctx, "stage complete", zap.String("stage", "plan"))
package logging
