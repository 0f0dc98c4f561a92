package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	slog.SetDefault(slog.New(newHandler(os.Getenv("ENVIRONMENT"))))
}

func newHandler(env string) slog.Handler {
	if strings.ToLower(env) == "production" {
		return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
}

// WithReplica returns a logger scoped to one projection replica.
// Use this for everything a replica logs while attached to a user.
func WithReplica(replicaID, userID string) *slog.Logger {
	return slog.With(
		"replica_id", replicaID,
		"user_id", userID,
	)
}

// WithProject returns a logger scoped to a project within a replica.
func WithProject(logger *slog.Logger, projectID string) *slog.Logger {
	return logger.With("project_id", projectID)
}

// WithOperation tags a logger with the mutation or job being run.
func WithOperation(logger *slog.Logger, op string) *slog.Logger {
	return logger.With("op", op)
}
