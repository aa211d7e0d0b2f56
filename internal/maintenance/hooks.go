package maintenance

import (
	"context"
	"log/slog"
	"time"
)

// Hook runs after a provider's cron pass has visited every credential
// entry, or after a sweep (provider "").
type Hook func(ctx context.Context, provider string) error

// runHooks runs hooks in order. A failing hook is logged and does not
// stop the others.
func runHooks(ctx context.Context, hooks []Hook, provider string, logger *slog.Logger) {
	for i, h := range hooks {
		start := time.Now()
		err := h(ctx, provider)
		dur := time.Since(start).Round(time.Millisecond)
		if err != nil {
			logger.Warn("Post-import hook failed",
				"hook", i, "provider", provider, "duration", dur, "error", err)
			continue
		}
		logger.Debug("Post-import hook done", "hook", i, "provider", provider, "duration", dur)
	}
}
