package httpserver

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pastebin-lite/internal/metrics"
	"pastebin-lite/internal/storage"
)

const janitorTimeout = 5 * time.Second

// RunJanitor deletes expired and exhausted pastes every interval until ctx
// is done. It always returns nil so it can sit in an errgroup next to the
// server.
func RunJanitor(ctx context.Context, store storage.Store, interval time.Duration, logger zerolog.Logger) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info().Dur("interval", interval).Msg("janitor started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cleanOnce(ctx, store, time.Now(), logger)
		}
	}
}

func cleanOnce(ctx context.Context, store storage.Store, now time.Time, logger zerolog.Logger) int {
	c, cancel := context.WithTimeout(ctx, janitorTimeout)
	defer cancel()
	removed, err := store.DeleteExpired(c, now)
	if err != nil {
		logger.Error().Err(err).Msg("janitor error")
		return 0
	}
	if removed > 0 {
		metrics.PastePurged.Add(float64(removed))
		logger.Info().Int("count", removed).Msg("janitor removed dead pastes")
	}
	return removed
}
