// Package maintenance runs optional out-of-band cleanup. Nothing in the core depends on
// it: expiry is always evaluated when a credential is read.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/credentials"
	clockport "github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/lease"
)

const leaseName = "sweep-expired-credentials"

// ExpiredSweeper removes expired sessions and verification tokens.
type ExpiredSweeper interface {
	SweepExpired(ctx context.Context) (credentials.SweepResult, error)
}

// RecordPruner drops stored request replays created before cutoff.
type RecordPruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type Sweeper struct {
	target   ExpiredSweeper
	pruner   RecordPruner
	maxAge   time.Duration
	clk      clockport.Clock
	locker   lease.Locker
	logger   *slog.Logger
	interval time.Duration
	leaseTTL time.Duration
}

func NewSweeper(target ExpiredSweeper, locker lease.Locker, logger *slog.Logger, interval, leaseTTL time.Duration) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if leaseTTL <= 0 {
		leaseTTL = time.Minute
	}
	return &Sweeper{
		target:   target,
		locker:   locker,
		logger:   logger.With(slog.String("component", "sweeper")),
		interval: interval,
		leaseTTL: leaseTTL,
	}
}

// WithRecordPruner makes each sweep also drop replay records older than maxAge.
func (s *Sweeper) WithRecordPruner(p RecordPruner, maxAge time.Duration, clk clockport.Clock) *Sweeper {
	s.pruner = p
	s.maxAge = maxAge
	s.clk = clk
	return s
}

// Run sweeps every interval until ctx is done. A non-positive interval disables it.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("sweeper disabled")
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _, _ = s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep if the lease is free. ran is false when another instance
// holds the lease.
func (s *Sweeper) RunOnce(ctx context.Context) (res credentials.SweepResult, ran bool, err error) {
	release, ok, err := s.locker.TryAcquire(ctx, leaseName, s.leaseTTL)
	if err != nil {
		s.logger.Error("sweep lease failed", slog.Any("error", err))
		return credentials.SweepResult{}, false, err
	}
	if !ok {
		s.logger.Debug("sweep skipped, lease held elsewhere")
		return credentials.SweepResult{}, false, nil
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.Warn("sweep lease release failed", slog.Any("error", rerr))
		}
	}()

	start := time.Now()
	res, err = s.target.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("sweep failed", slog.Any("error", err))
		return credentials.SweepResult{}, true, err
	}
	s.logger.Info("sweep completed",
		slog.Int("sessions_removed", res.Sessions),
		slog.Int("verification_tokens_removed", res.VerificationTokens),
		slog.Duration("duration", time.Since(start)),
	)

	if s.pruner != nil && s.maxAge > 0 {
		n, err := s.pruner.DeleteBefore(ctx, s.clk.Now().Add(-s.maxAge))
		if err != nil {
			s.logger.Error("idempotency prune failed", slog.Any("error", err))
			return res, true, err
		}
		s.logger.Info("idempotency records pruned", slog.Int("removed", n))
	}
	return res, true, nil
}
