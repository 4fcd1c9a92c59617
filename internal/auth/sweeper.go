package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically deletes dead tokens: ephemeral tokens older than
// TTL plus a grace period, and refresh tokens past their expiry. Expiry is
// still enforced when a token is presented; the sweep only bounds table
// growth.
type Sweeper struct {
	refresh   TokenRepository
	ephemeral EphemeralTokenRepository
	maxAge    time.Duration
	logger    *slog.Logger
	now       func() time.Time
	cron      *cron.Cron
}

// NewSweeper creates a sweeper. Ephemeral tokens are removed once older
// than ephemeralTTL + grace.
func NewSweeper(refresh TokenRepository, ephemeral EphemeralTokenRepository,
	ephemeralTTL, grace time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		refresh:   refresh,
		ephemeral: ephemeral,
		maxAge:    ephemeralTTL + grace,
		logger:    logger,
		now:       time.Now,
	}
}

// Sweep runs one pass and returns how many tokens of each kind it removed.
func (s *Sweeper) Sweep(ctx context.Context) (refreshed, ephemeral int64, err error) {
	now := s.now().UTC()

	refreshed, err = s.refresh.DeleteExpired(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("sweeping refresh tokens: %w", err)
	}

	ephemeral, err = s.ephemeral.DeleteCreatedBefore(ctx, now.Add(-s.maxAge))
	if err != nil {
		return refreshed, 0, fmt.Errorf("sweeping ephemeral tokens: %w", err)
	}

	return refreshed, ephemeral, nil
}

// Start schedules Sweep on a standard cron spec (descriptors such as
// "@every 1h" are accepted). An empty schedule disables sweeping.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		s.logger.Info("token sweeper disabled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, s.run); err != nil {
		return fmt.Errorf("scheduling token sweeper: %w", err)
	}
	c.Start()
	s.cron = c

	s.logger.Info("token sweeper started", "schedule", schedule)
	return nil
}

// Stop prevents further runs and waits for a running sweep to finish or
// ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("token sweeper did not stop in time")
	}
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	refreshed, ephemeral, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("token sweep failed", "error", err)
		return
	}
	s.logger.Info("token sweep complete",
		"refresh_tokens_deleted", refreshed,
		"ephemeral_tokens_deleted", ephemeral,
	)
}
