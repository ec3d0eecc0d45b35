package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"engagement-engine/internal/db"
	"engagement-engine/internal/domain"

	"github.com/rs/zerolog"
)

type RankingRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewRankingRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *RankingRepository {
	return &RankingRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

// ReplaceBucket installs entries as the next version of the bucket and moves
// the bucket pointer to it in one transaction. Readers join on the pointer, so
// they see either the old set or the new one, never a mix.
func (r *RankingRepository) ReplaceBucket(ctx context.Context, bucket domain.RankingBucket, entries []domain.RankingEntry) (*domain.RankingBucket, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	key := db.GetRankingBucketParams{
		RankingType: string(bucket.Type),
		PeriodStart: toMillis(bucket.PeriodStart),
		Department:  bucket.Department,
	}

	var version int64 = 1
	current, err := qtx.GetRankingBucket(ctx, key)
	switch {
	case err == nil:
		version = current.Version + 1
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, fmt.Errorf("failed to read ranking bucket: %w", err)
	}

	for _, e := range entries {
		err := qtx.InsertRankingEntry(ctx, db.RankingEntry{
			RankingType:     key.RankingType,
			PeriodStart:     key.PeriodStart,
			Department:      key.Department,
			Version:         version,
			UserID:          e.UserID,
			Points:          int64(e.Points),
			Position:        int64(e.Position),
			FirstActivityAt: toMillis(e.FirstActivityAt),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to stage ranking entry for %s: %w", e.UserID, err)
		}
	}

	bucket.Version = version
	bucket.EntryCount = len(entries)
	err = qtx.UpsertRankingBucket(ctx, db.RankingBucket{
		RankingType: key.RankingType,
		PeriodStart: key.PeriodStart,
		Department:  key.Department,
		PeriodEnd:   toMillis(bucket.PeriodEnd),
		Version:     version,
		EntryCount:  int64(len(entries)),
		ComputedAt:  toMillis(bucket.ComputedAt),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to swap ranking bucket: %w", err)
	}

	err = qtx.DeleteStaleRankingEntries(ctx, db.DeleteStaleRankingEntriesParams{
		RankingType: key.RankingType,
		PeriodStart: key.PeriodStart,
		Department:  key.Department,
		Version:     version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to drop stale ranking entries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit ranking bucket: %w", err)
	}

	r.logger.Debug().
		Str("ranking_type", key.RankingType).
		Time("period_start", bucket.PeriodStart).
		Str("department", key.Department).
		Int64("version", version).
		Int("entries", len(entries)).
		Msg("ranking bucket replaced")

	return &bucket, nil
}

func (r *RankingRepository) GetBucket(ctx context.Context, t domain.RankingType, periodStart time.Time, department string) (*domain.RankingBucket, error) {
	row, err := r.queries.GetRankingBucket(ctx, db.GetRankingBucketParams{
		RankingType: string(t),
		PeriodStart: toMillis(periodStart),
		Department:  department,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ranking bucket %s/%s/%s: %w", t, periodStart.Format(time.RFC3339), department, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &domain.RankingBucket{
		Type:        domain.RankingType(row.RankingType),
		PeriodStart: fromMillis(row.PeriodStart),
		PeriodEnd:   fromMillis(row.PeriodEnd),
		Department:  row.Department,
		Version:     row.Version,
		EntryCount:  int(row.EntryCount),
		ComputedAt:  fromMillis(row.ComputedAt),
	}, nil
}

// ListCurrent returns the current version of a bucket ordered by position.
func (r *RankingRepository) ListCurrent(ctx context.Context, t domain.RankingType, periodStart time.Time, department string, limit int) ([]domain.RankingEntry, error) {
	bucket, err := r.GetBucket(ctx, t, periodStart, department)
	if err != nil {
		return nil, err
	}

	rows, err := r.queries.ListCurrentRankingEntries(ctx, db.ListCurrentRankingEntriesParams{
		RankingType: string(t),
		PeriodStart: toMillis(periodStart),
		Department:  department,
		Limit:       int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list ranking entries: %w", err)
	}

	entries := make([]domain.RankingEntry, len(rows))
	for i, row := range rows {
		entries[i] = toDomainRankingEntry(row, bucket.PeriodEnd)
	}
	return entries, nil
}

func (r *RankingRepository) GetUserEntry(ctx context.Context, t domain.RankingType, periodStart time.Time, department, userID string) (*domain.UserRank, error) {
	bucket, err := r.GetBucket(ctx, t, periodStart, department)
	if err != nil {
		return nil, err
	}

	row, err := r.queries.GetCurrentRankingEntryForUser(ctx, db.GetCurrentRankingEntryForUserParams{
		RankingType: string(t),
		PeriodStart: toMillis(periodStart),
		Department:  department,
		UserID:      userID,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s not ranked: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &domain.UserRank{
		Entry:      toDomainRankingEntry(row.RankingEntry, bucket.PeriodEnd),
		TotalUsers: int(row.EntryCount),
	}, nil
}

func (r *RankingRepository) IsClosed(ctx context.Context, t domain.RankingType, periodStart time.Time, department string) (bool, error) {
	n, err := r.queries.CountRankingCloseout(ctx, db.CountRankingCloseoutParams{
		RankingType: string(t),
		PeriodStart: toMillis(periodStart),
		Department:  department,
	})
	if err != nil {
		return false, fmt.Errorf("failed to read close-out: %w", err)
	}
	return n > 0, nil
}

// MarkClosed records the close-out; false means another pass already did.
func (r *RankingRepository) MarkClosed(ctx context.Context, t domain.RankingType, periodStart time.Time, department string, at time.Time) (bool, error) {
	inserted, err := r.queries.InsertRankingCloseout(ctx, db.InsertRankingCloseoutParams{
		RankingType: string(t),
		PeriodStart: toMillis(periodStart),
		Department:  department,
		ClosedAt:    toMillis(at),
	})
	if err != nil {
		return false, fmt.Errorf("failed to record close-out: %w", err)
	}
	return inserted, nil
}

func toDomainRankingEntry(row db.RankingEntry, periodEnd time.Time) domain.RankingEntry {
	return domain.RankingEntry{
		Type:            domain.RankingType(row.RankingType),
		PeriodStart:     fromMillis(row.PeriodStart),
		PeriodEnd:       periodEnd,
		Department:      row.Department,
		UserID:          row.UserID,
		Points:          int(row.Points),
		Position:        int(row.Position),
		FirstActivityAt: fromMillis(row.FirstActivityAt),
	}
}
