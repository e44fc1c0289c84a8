package listener

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"card-compare-engine/internal/catalog"
	"card-compare-engine/internal/storage"
)

const debounce = 200 * time.Millisecond

// ListenAndRefresh LISTENs on channel and refreshes the catalog whenever the
// campaign tables change. A lost connection is re-acquired after a jittered
// backoff. Blocks until ctx is cancelled.
func ListenAndRefresh(ctx context.Context, st *storage.Store, cat *catalog.Catalog, channel string, baseBackoff time.Duration) {
	pool, err := st.PgxPool()
	if err != nil {
		log.Error().Err(err).Msg("listener disabled")
		return
	}
	if channel == "" {
		channel = st.ListenChannel()
	}

	for {
		err := listen(ctx, pool, channel, func() {
			if err := cat.Refresh(ctx, st, time.Now()); err != nil {
				log.Error().Err(err).Msg("refresh catalog error")
			}
		})
		if ctx.Err() != nil {
			log.Info().Msg("listener stopped")
			return
		}
		backoff := jitter(baseBackoff)
		log.Error().Err(err).Dur("retry_in", backoff).Msg("listen error")
		select {
		case <-ctx.Done():
			log.Info().Msg("listener stopped")
			return
		case <-time.After(backoff):
		}
	}
}

func listen(ctx context.Context, pool *pgxpool.Pool, channel string, refresh func()) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return err
	}
	log.Info().Str("channel", channel).Msg("listening for DB changes")

	var lastRefresh time.Time
	for {
		ntf, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if time.Since(lastRefresh) < debounce {
			continue // debounce burst of notifications
		}
		lastRefresh = time.Now()
		log.Info().Str("channel", ntf.Channel).Str("table", ntf.Payload).Msg("db change; refreshing catalog")
		refresh()
	}
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	factor := 0.5 + rand.Float64() // 0.5x-1.5x
	return time.Duration(float64(base) * factor)
}
