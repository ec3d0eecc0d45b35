package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"engagement-engine/internal/config"
	"engagement-engine/internal/constants"
	"engagement-engine/internal/domain"
	"engagement-engine/internal/logger"
	"engagement-engine/internal/repository"

	"github.com/robfig/cron"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// RankingScheduler decides when buckets are recomputed. Open periods are
// refreshed on each tick after progress changed; the period that just ended
// is closed out exactly once per (type, periodStart, department).
type RankingScheduler struct {
	aggregator *RankingAggregator
	rankings   *repository.RankingRepository
	progress   *repository.ProgressRepository
	types      []domain.RankingType
	schedule   string
	loc        *time.Location
	cron       *cron.Cron
	dirty      atomic.Bool
	logger     zerolog.Logger
	now        func() time.Time
}

func NewRankingScheduler(
	aggregator *RankingAggregator,
	rankings *repository.RankingRepository,
	progress *repository.ProgressRepository,
	cfg *config.Config,
	log zerolog.Logger,
) *RankingScheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &RankingScheduler{
		aggregator: aggregator,
		rankings:   rankings,
		progress:   progress,
		types:      cfg.RankingTypes,
		schedule:   cfg.RankingSchedule,
		loc:        loc,
		logger:     logger.Component(log, "ranking_scheduler"),
		now:        time.Now,
	}
	// the first tick after start refreshes everything
	s.dirty.Store(true)
	return s
}

// MarkDirty asks the next tick to refresh open periods.
func (s *RankingScheduler) MarkDirty() {
	s.dirty.Store(true)
}

func (s *RankingScheduler) Start() error {
	c := cron.New()
	err := c.AddFunc(s.schedule, func() {
		if err := s.Tick(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("ranking pass failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid RANKING_SCHEDULE %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c

	s.logger.Info().Str("schedule", s.schedule).Int("types", len(s.types)).Msg("ranking scheduler started")
	return nil
}

func (s *RankingScheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		s.logger.Info().Msg("ranking scheduler stopped")
	}
}

// Tick runs one pass over every configured type and department scope.
func (s *RankingScheduler) Tick(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.RankingPassTimeout)
	defer cancel()

	scopes, err := s.scopes(ctx)
	if err != nil {
		return err
	}

	earliest, hasHistory, err := s.aggregator.history.Earliest(ctx)
	if err != nil {
		return err
	}

	dirty := s.dirty.Swap(false)
	now := s.now()

	g := new(errgroup.Group)
	g.SetLimit(constants.RankingConcurrency)

	for _, t := range s.types {
		current, err := domain.PeriodFor(t, now, s.loc)
		if err != nil {
			return err
		}
		previous := current.Previous(s.loc)

		for _, dept := range scopes {
			g.Go(func() error {
				return s.closeBacklog(ctx, previous, dept, now, earliest, hasHistory)
			})
			if dirty {
				g.Go(func() error {
					return s.refreshCurrent(ctx, current, dept)
				})
			}
		}
	}

	if err := g.Wait(); err != nil {
		if dirty {
			s.MarkDirty()
		}
		return err
	}
	return nil
}

// RefreshOpen recomputes the current period of every configured type and
// scope without waiting for the next tick. Processes that share the database
// but not the scheduler use it after changing point history.
func (s *RankingScheduler) RefreshOpen(ctx context.Context) error {
	scopes, err := s.scopes(ctx)
	if err != nil {
		return err
	}
	now := s.now()

	g := new(errgroup.Group)
	g.SetLimit(constants.RankingConcurrency)
	for _, t := range s.types {
		current, err := domain.PeriodFor(t, now, s.loc)
		if err != nil {
			return err
		}
		for _, dept := range scopes {
			g.Go(func() error {
				return s.refreshCurrent(ctx, current, dept)
			})
		}
	}
	return g.Wait()
}

func (s *RankingScheduler) refreshCurrent(ctx context.Context, current domain.Period, dept string) error {
	_, err := s.aggregator.RecomputeBucket(ctx, current.Type, current.Start, current.End, dept)
	if errors.Is(err, domain.ErrAggregationInProgress) {
		s.logger.Debug().Str("ranking_type", string(current.Type)).Str("department", dept).Msg("bucket busy, skipping")
		return nil
	}
	return err
}

// closeBacklog closes every period from the first unclosed one up to
// previous, oldest first, so periods missed while the service was down still
// get their close-out. The walk back stops at a recorded close-out, at the
// start of point history, or after constants.MaxCloseOutBacklog periods.
func (s *RankingScheduler) closeBacklog(ctx context.Context, previous domain.Period, dept string, now, earliest time.Time, hasHistory bool) error {
	var pending []domain.Period
	p := previous
	for i := 0; i < constants.MaxCloseOutBacklog; i++ {
		if i > 0 && (!hasHistory || !p.End.After(earliest)) {
			break
		}
		closed, err := s.rankings.IsClosed(ctx, p.Type, p.Start, dept)
		if err != nil {
			return err
		}
		if closed {
			break
		}
		pending = append(pending, p)
		p = p.Previous(s.loc)
	}

	for i := len(pending) - 1; i >= 0; i-- {
		if err := s.closeOut(ctx, pending[i], dept, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *RankingScheduler) closeOut(ctx context.Context, p domain.Period, dept string, now time.Time) error {
	closed, err := s.rankings.IsClosed(ctx, p.Type, p.Start, dept)
	if err != nil || closed {
		return err
	}

	_, err = s.aggregator.RecomputeBucket(ctx, p.Type, p.Start, p.End, dept)
	if errors.Is(err, domain.ErrAggregationInProgress) {
		// whoever holds the bucket will be followed by the next tick
		return nil
	}
	if err != nil {
		return err
	}

	recorded, err := s.rankings.MarkClosed(ctx, p.Type, p.Start, dept, now.UTC())
	if err != nil {
		return err
	}
	if recorded {
		s.logger.Info().
			Str("ranking_type", string(p.Type)).
			Time("period_start", p.Start).
			Str("department", dept).
			Msg("ranking period closed")
	}
	return nil
}

// ClosePeriod is the administrative close-out of the period containing at.
// Open periods and periods already closed are refused.
func (s *RankingScheduler) ClosePeriod(ctx context.Context, t domain.RankingType, at time.Time, dept string) ([]domain.RankingEntry, error) {
	p, err := domain.PeriodFor(t, at, s.loc)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !p.ClosedAt(now) {
		return nil, domain.NewValidationError("period", fmt.Sprintf("%s period starting %s is still open", t, p.Start.Format(time.RFC3339)))
	}

	closed, err := s.rankings.IsClosed(ctx, t, p.Start, dept)
	if err != nil {
		return nil, err
	}
	if closed {
		return nil, fmt.Errorf("%s period starting %s: %w", t, p.Start.Format(time.RFC3339), domain.ErrAlreadyExists)
	}

	entries, err := s.aggregator.RecomputeBucket(ctx, t, p.Start, p.End, dept)
	if err != nil {
		return nil, err
	}
	recorded, err := s.rankings.MarkClosed(ctx, t, p.Start, dept, now.UTC())
	if err != nil {
		return nil, err
	}
	if !recorded {
		return nil, fmt.Errorf("%s period starting %s: %w", t, p.Start.Format(time.RFC3339), domain.ErrAlreadyExists)
	}

	s.logger.Info().Str("ranking_type", string(t)).Time("period_start", p.Start).Str("department", dept).Msg("ranking period closed by admin")
	return entries, nil
}

// Recompute rebuilds the bucket of the period containing at on demand.
// Closed-out periods are frozen.
func (s *RankingScheduler) Recompute(ctx context.Context, t domain.RankingType, at time.Time, dept string) ([]domain.RankingEntry, error) {
	p, err := domain.PeriodFor(t, at, s.loc)
	if err != nil {
		return nil, err
	}
	closed, err := s.rankings.IsClosed(ctx, t, p.Start, dept)
	if err != nil {
		return nil, err
	}
	if closed {
		return nil, domain.NewValidationError("period", fmt.Sprintf("%s period starting %s is closed", t, p.Start.Format(time.RFC3339)))
	}
	return s.aggregator.RecomputeBucket(ctx, t, p.Start, p.End, dept)
}

// scopes is the global bucket plus one per known department.
func (s *RankingScheduler) scopes(ctx context.Context) ([]string, error) {
	depts, err := s.progress.Departments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	scopes := []string{""}
	for _, d := range depts {
		if d != "" {
			scopes = append(scopes, d)
		}
	}
	return scopes, nil
}
