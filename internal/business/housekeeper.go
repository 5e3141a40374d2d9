package business

import (
	"context"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/bot-flow/internal/config"
	"github.com/openkcm/bot-flow/internal/session"
	"github.com/openkcm/bot-flow/internal/session/sessionvalkey"
)

// HousekeeperMain drops idle sessions every trigger interval until ctx is done.
func HousekeeperMain(ctx context.Context, cfg *config.Config) error {
	valkeyClient, err := valkeyClientFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialise the session store: %w", err)
	}
	defer valkeyClient.Close()

	housekeeper := session.NewHousekeeper(
		sessionvalkey.NewRepository(valkeyClient, cfg.ValKey.Prefix, cfg.ValKey.SessionTTL),
		sessionvalkey.NewLocker(valkeyClient, cfg.ValKey.Prefix, cfg.SessionLock.TTL),
		cfg.Housekeeper.IdleTimeout,
		session.WithConcurrencyLimit(cfg.Housekeeper.ConcurrencyLimit),
	)

	return runHousekeeping(ctx, housekeeper, cfg.Housekeeper.TriggerInterval)
}

func runHousekeeping(ctx context.Context, housekeeper *session.Housekeeper, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		dropped, err := housekeeper.DropIdleSessions(ctx)
		if err != nil {
			slogctx.Error(ctx, "Error during session housekeeping", "error", err)
		} else if dropped > 0 {
			slogctx.Info(ctx, "Dropped idle sessions", "count", dropped)
		}

		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			return nil
		}
	}
}
