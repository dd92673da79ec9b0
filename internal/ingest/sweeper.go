package ingest

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
)

// RunSweeper evicts expired samples every interval until ctx is done, so the
// buffer shrinks even when no new samples arrive.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Debug().Dur("interval", interval).Msg("Sweeper started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := s.clock()
			if n := s.Sweep(now); n > 0 {
				stats := s.buf.Stats()
				ev := s.log.Info().
					Str("evicted", humanize.Comma(int64(n))).
					Str("retained", humanize.Comma(int64(stats.Count)))
				if stats.Count > 0 {
					ev = ev.Str("oldest", humanize.RelTime(stats.Oldest, now, "ago", "from now")).
						Dur("span", stats.Span())
				}
				ev.Msg("Evicted expired samples")
			}
		}
	}
}
