package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/irancrypto/marketbot/internal/content"
	"github.com/irancrypto/marketbot/internal/market"
	"github.com/irancrypto/marketbot/internal/setup/config"
	"github.com/irancrypto/marketbot/internal/store"
	"go.uber.org/zap"
)

// JobName is the logical job name used for logging and run markers.
const JobName = "schedule"

// Scheduler decides when and what to post, without posting. Each daily
// cycle captures market snapshots and enqueues one scheduled post per
// (platform, target) pair for the next day.
type Scheduler struct {
	cfg      *config.Schedule
	market   *market.Client
	store    *store.Store
	location *time.Location
	logger   *zap.Logger
}

// New creates a scheduler in the configured timezone.
func New(cfg *config.Schedule, marketClient *market.Client, st *store.Store, logger *zap.Logger) (*Scheduler, error) {
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	return &Scheduler{
		cfg:      cfg,
		market:   marketClient,
		store:    st,
		location: location,
		logger:   logger.Named("scheduler"),
	}, nil
}

// family is one content family with its calendar gate and scheduling logic.
type family struct {
	name     string
	gated    bool
	schedule func(ctx context.Context, base time.Time) error
}

// slot is one (platform, target) pair with its publish time.
type slot struct {
	platform store.Platform
	target   string
	at       time.Time
}

// RunDailyCycle fetches data per content family and enqueues the next day's
// posts. A failing family is logged and skipped; the remaining families
// still proceed.
func (s *Scheduler) RunDailyCycle(ctx context.Context, now time.Time) error {
	runID := uuid.New().String()
	local := now.In(s.location)
	base := s.nextPostTime(local)

	logger := s.logger.With(
		zap.String("job", JobName),
		zap.String("runId", runID))

	logger.Info("Starting daily scheduling cycle",
		zap.Time("now", local),
		zap.Time("base", base))

	families := []family{
		{name: "daily", gated: true, schedule: s.scheduleDaily},
		{name: "weekly", gated: s.isWeeklyDay(local), schedule: s.scheduleWeekly},
		{name: "monthly", gated: s.isLastDayOfMonth(local), schedule: s.scheduleMonthly},
	}

	for _, f := range families {
		if !f.gated {
			logger.Debug("Calendar gate closed for family", zap.String("family", f.name))
			continue
		}

		if err := f.schedule(ctx, base); err != nil {
			// Family failures are isolated; siblings still get scheduled
			logger.Error("Failed to schedule content family",
				zap.String("family", f.name),
				zap.Error(err))
		}
	}

	logger.Info("Daily scheduling cycle finished")

	return nil
}

// scheduleDaily enqueues the daily posts: the Twitter trends/vol pair
// (staggered) and the daily coin image for Instagram and Telegram.
func (s *Scheduler) scheduleDaily(ctx context.Context, base time.Time) error {
	coins, err := s.market.Popular(ctx, s.cfg.RecapLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch popular coins: %w", err)
	}

	payload := &content.Payload{Coins: coins, Interval: string(market.IntervalDaily)}
	if payload.Empty() {
		s.logger.Info("No daily coin data, skipping family")
		return nil
	}

	stagger := time.Duration(s.cfg.StaggerHours) * time.Hour

	entries := []slot{
		{store.PlatformTwitter, content.TargetTrends, base},
		{store.PlatformTwitter, content.TargetVol, base.Add(stagger)},
		{store.PlatformInstagram, content.TargetDailyCoin, base},
		{store.PlatformTelegram, content.TargetDailyCoin, base},
	}

	return s.upsertAll(ctx, payload, entries)
}

// scheduleWeekly enqueues the weekly coin recap posts.
func (s *Scheduler) scheduleWeekly(ctx context.Context, base time.Time) error {
	coins, err := s.market.CoinRecap(ctx, market.IntervalWeekly, s.cfg.RecapLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch weekly coin recap: %w", err)
	}

	payload := &content.Payload{Coins: coins, Interval: string(market.IntervalWeekly)}
	if payload.Empty() {
		s.logger.Info("No weekly recap data, skipping family")
		return nil
	}

	return s.upsertAll(ctx, payload, []slot{
		{store.PlatformInstagram, content.TargetWeeklyCoin, base},
		{store.PlatformTelegram, content.TargetWeeklyCoin, base},
	})
}

// scheduleMonthly enqueues the monthly exchange recap posts.
func (s *Scheduler) scheduleMonthly(ctx context.Context, base time.Time) error {
	exchanges, err := s.market.ExchangeRecap(ctx, market.IntervalMonthly, s.cfg.RecapLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch monthly exchange recap: %w", err)
	}

	payload := &content.Payload{Exchanges: exchanges, Interval: string(market.IntervalMonthly)}
	if payload.Empty() {
		s.logger.Info("No monthly recap data, skipping family")
		return nil
	}

	return s.upsertAll(ctx, payload, []slot{
		{store.PlatformInstagram, content.TargetMonthlyExchange, base},
		{store.PlatformTelegram, content.TargetMonthlyExchange, base},
	})
}

// upsertAll writes one scheduled post per slot, sharing the payload.
func (s *Scheduler) upsertAll(ctx context.Context, payload *content.Payload, entries []slot) error {
	raw, err := payload.Marshal()
	if err != nil {
		return err
	}

	for _, e := range entries {
		post := &store.ScheduledPost{
			Platform:  e.platform,
			Target:    e.target,
			Payload:   raw,
			NotBefore: e.at.Unix(),
		}

		if err := s.store.UpsertPost(ctx, post); err != nil {
			return err
		}

		s.logger.Info("Scheduled post",
			zap.String("platform", string(e.platform)),
			zap.String("target", e.target),
			zap.Time("notBefore", e.at))
	}

	return nil
}

// nextPostTime returns the configured post hour tomorrow in the configured
// timezone.
func (s *Scheduler) nextPostTime(local time.Time) time.Time {
	tomorrow := local.AddDate(0, 0, 1)

	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(),
		s.cfg.PostHour, 0, 0, 0, s.location)
}

// isWeeklyDay reports whether the weekly family fires today.
func (s *Scheduler) isWeeklyDay(local time.Time) bool {
	return int(local.Weekday()) == s.cfg.WeeklyWeekday
}

// isLastDayOfMonth reports whether today is the last calendar day of the
// month, determined by comparing the month of now and now plus one day.
func (s *Scheduler) isLastDayOfMonth(local time.Time) bool {
	return local.Month() != local.AddDate(0, 0, 1).Month()
}
