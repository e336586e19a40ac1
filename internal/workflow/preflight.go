package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"discback/internal/logging"
	"discback/internal/services"
)

// runPreflightChecks validates paths and binaries before collecting files.
// Returns nil when all checks pass, or an error describing all failures.
func (b *Builder) runPreflightChecks(ctx context.Context, logger *slog.Logger) error {
	results := b.preflight(ctx, b.cfg)
	if len(results) == 0 {
		return nil
	}

	var failures []string
	for _, r := range results {
		if r.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldEventType, "preflight_passed"),
			)
		} else {
			logger.Error("preflight check failed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldEventType, "preflight_failed"),
				logging.String(logging.FieldErrorHint, "fix the reported issue or run 'discback check'"),
			)
			failures = append(failures, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}

	if len(failures) > 0 {
		return services.Wrap(services.ErrConfiguration, "workflow", "preflight", strings.Join(failures, "; "), nil)
	}
	return nil
}
