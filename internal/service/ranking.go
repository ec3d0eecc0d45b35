package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"engagement-engine/internal/cache"
	"engagement-engine/internal/config"
	"engagement-engine/internal/constants"
	"engagement-engine/internal/domain"
	"engagement-engine/internal/lock"
	"engagement-engine/internal/logger"
	"engagement-engine/internal/repository"

	"github.com/rs/zerolog"
)

type RankingAggregator struct {
	history  *repository.PointHistoryRepository
	rankings *repository.RankingRepository
	locker   lock.BucketLocker
	cache    cache.RankingCache
	loc      *time.Location
	logger   zerolog.Logger
	now      func() time.Time
}

func NewRankingAggregator(
	history *repository.PointHistoryRepository,
	rankings *repository.RankingRepository,
	locker lock.BucketLocker,
	rankingCache cache.RankingCache,
	cfg *config.Config,
	log zerolog.Logger,
) *RankingAggregator {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &RankingAggregator{
		history:  history,
		rankings: rankings,
		locker:   locker,
		cache:    rankingCache,
		loc:      loc,
		logger:   logger.Component(log, "ranking_aggregator"),
		now:      time.Now,
	}
}

// Period resolves the period of type t containing at in the reference timezone.
func (a *RankingAggregator) Period(t domain.RankingType, at time.Time) (domain.Period, error) {
	if at.IsZero() {
		at = a.now()
	}
	return domain.PeriodFor(t, at, a.loc)
}

// RecomputeBucket rebuilds the whole (t, periodStart, department) bucket from
// point history and swaps it in atomically. A second concurrent pass over the
// same bucket fails with domain.ErrAggregationInProgress. Cancelling ctx
// before the swap leaves the previous bucket untouched.
func (a *RankingAggregator) RecomputeBucket(ctx context.Context, t domain.RankingType, periodStart, periodEnd time.Time, department string) ([]domain.RankingEntry, error) {
	if !periodEnd.After(periodStart) {
		return nil, domain.NewValidationError("period_end", "must be after period_start")
	}
	periodStart, periodEnd = periodStart.UTC(), periodEnd.UTC()

	unlock, ok, err := a.locker.TryLock(ctx, constants.RankingLockKey(string(t), periodStart, department))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire bucket lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("bucket %s/%s/%q: %w", t, periodStart.Format(time.RFC3339), department, domain.ErrAggregationInProgress)
	}
	defer unlock()

	started := time.Now()
	totals, err := a.history.PeriodTotals(ctx, periodStart, periodEnd, department)
	if err != nil {
		return nil, err
	}

	entries, err := rankEntries(ctx, t, periodStart, periodEnd, department, totals)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bucket := domain.RankingBucket{
		Type:        t,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Department:  department,
		ComputedAt:  a.now().UTC(),
	}
	stored, err := a.rankings.ReplaceBucket(ctx, bucket, entries)
	if err != nil {
		return nil, err
	}

	key := constants.RankingBucketKey(string(t), periodStart, department)
	if err := a.cache.Set(ctx, key, entries); err != nil {
		a.logger.Warn().Err(err).Str("key", key).Msg("failed to refresh ranking cache")
		// a stale entry would outlive the swap until its TTL
		if err := a.cache.Invalidate(ctx, key); err != nil {
			a.logger.Warn().Err(err).Str("key", key).Msg("failed to drop stale ranking cache entry")
		}
	}

	a.logger.Info().
		Str("ranking_type", string(t)).
		Time("period_start", periodStart).
		Str("department", department).
		Int64("version", stored.Version).
		Int("entries", len(entries)).
		Dur("took", time.Since(started)).
		Msg("ranking bucket recomputed")

	return entries, nil
}

// GetRanking returns up to limit entries of the current bucket version. A
// bucket that has never been computed reads as empty.
func (a *RankingAggregator) GetRanking(ctx context.Context, t domain.RankingType, periodStart time.Time, department string, limit int) ([]domain.RankingEntry, error) {
	limit = clampLimit(limit)
	key := constants.RankingBucketKey(string(t), periodStart, department)

	entries, hit, err := a.cache.Get(ctx, key)
	if err != nil {
		a.logger.Warn().Err(err).Str("key", key).Msg("ranking cache read failed")
	}
	if !hit {
		entries, err = a.rankings.ListCurrent(ctx, t, periodStart, department, constants.MaxRankingLimit)
		if errors.Is(err, domain.ErrNotFound) {
			return []domain.RankingEntry{}, nil
		}
		if err != nil {
			return nil, err
		}
		if _, err := a.cache.Fill(ctx, key, entries); err != nil {
			a.logger.Warn().Err(err).Str("key", key).Msg("failed to fill ranking cache")
		}
	}

	if len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []domain.RankingEntry{}
	}
	return entries, nil
}

func (a *RankingAggregator) GetUserRank(ctx context.Context, t domain.RankingType, periodStart time.Time, department, userID string) (*domain.UserRank, error) {
	return a.rankings.GetUserEntry(ctx, t, periodStart, department, userID)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return constants.DefaultRankingLimit
	}
	if limit > constants.MaxRankingLimit {
		return constants.MaxRankingLimit
	}
	return limit
}

// rankEntries orders totals by points desc, earliest activity asc, then user
// id, and numbers them 1..N. Users with no net points in the period are left
// out.
func rankEntries(ctx context.Context, t domain.RankingType, periodStart, periodEnd time.Time, department string, totals []repository.PeriodTotal) ([]domain.RankingEntry, error) {
	entries := make([]domain.RankingEntry, 0, len(totals))
	for i, pt := range totals {
		if i%constants.AggregationScanChunk == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if pt.Points <= 0 {
			continue
		}
		entries = append(entries, domain.RankingEntry{
			Type:            t,
			PeriodStart:     periodStart,
			PeriodEnd:       periodEnd,
			Department:      department,
			UserID:          pt.UserID,
			Points:          pt.Points,
			FirstActivityAt: pt.FirstActivityAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if !a.FirstActivityAt.Equal(b.FirstActivityAt) {
			return a.FirstActivityAt.Before(b.FirstActivityAt)
		}
		return a.UserID < b.UserID
	})

	for i := range entries {
		entries[i].Position = i + 1
	}
	return entries, nil
}
