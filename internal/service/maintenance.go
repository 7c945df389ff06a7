package service

import (
	"context"
	"time"
)

// DefaultPruneInterval is how often history retention runs.
const DefaultPruneInterval = time.Hour

// Pruner removes history older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunHistoryRetention prunes history older than keep once at start and
// then every interval, until ctx is cancelled. A non-positive keep
// disables pruning.
func (s *Supervisor) RunHistoryRetention(ctx context.Context, p Pruner, keep, interval time.Duration) {
	if keep <= 0 {
		return
	}
	if interval <= 0 {
		interval = DefaultPruneInterval
	}

	s.prune(ctx, p, keep)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.prune(ctx, p, keep)
		}
	}
}

func (s *Supervisor) prune(ctx context.Context, p Pruner, keep time.Duration) {
	_, logger := s.get()
	n, err := p.Prune(ctx, s.now().Add(-keep))
	if err != nil {
		logger.Warn("pruning brightness history", "error", err)
		return
	}
	if n > 0 {
		logger.Debug("brightness history pruned", "rows", n)
	}
}
