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

type PointHistoryRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewPointHistoryRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *PointHistoryRepository {
	return &PointHistoryRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

func (r *PointHistoryRepository) GetByEventID(ctx context.Context, eventID string) (*domain.PointAward, error) {
	row, err := r.queries.GetPointAwardByEventID(ctx, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", eventID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	award := toDomainAward(row)
	return &award, nil
}

func (r *PointHistoryRepository) GetByUser(ctx context.Context, userID string, limit int) ([]domain.PointAward, error) {
	records, err := r.queries.ListPointAwardsByUser(ctx, db.ListPointAwardsByUserParams{
		UserID: userID,
		Limit:  int64(limit),
	})
	if err != nil {
		return nil, err
	}

	result := make([]domain.PointAward, len(records))
	for i, rec := range records {
		result[i] = toDomainAward(rec)
	}
	return result, nil
}

// PeriodTotal is one user's point sum inside a ranking window.
type PeriodTotal struct {
	UserID          string
	Points          int
	FirstActivityAt time.Time
}

// PeriodTotals sums award deltas in [start, end), optionally restricted to
// users currently in department.
func (r *PointHistoryRepository) PeriodTotals(ctx context.Context, start, end time.Time, department string) ([]PeriodTotal, error) {
	rows, err := r.queries.SumPointAwardsInRange(ctx, db.SumPointAwardsInRangeParams{
		Start:      toMillis(start),
		End:        toMillis(end),
		Department: department,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sum point awards: %w", err)
	}

	totals := make([]PeriodTotal, len(rows))
	for i, row := range rows {
		totals[i] = PeriodTotal{
			UserID:          row.UserID,
			Points:          int(row.Points),
			FirstActivityAt: fromMillis(row.FirstActivityAt),
		}
	}

	r.logger.Debug().
		Time("start", start).
		Time("end", end).
		Str("department", department).
		Int("users", len(totals)).
		Msg("period totals scanned")

	return totals, nil
}

// Earliest is the award time of the oldest history row; ok is false while the
// history is empty.
func (r *PointHistoryRepository) Earliest(ctx context.Context) (at time.Time, ok bool, err error) {
	ms, err := r.queries.EarliestPointAward(ctx)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read earliest award: %w", err)
	}
	if !ms.Valid {
		return time.Time{}, false, nil
	}
	return fromMillis(ms.Int64), true, nil
}

func toDomainAward(row db.PointAward) domain.PointAward {
	return domain.PointAward{
		ID:           row.ID,
		EventID:      row.EventID.String,
		UserID:       row.UserID,
		Delta:        int(row.Delta),
		Reason:       row.Reason,
		ActivityType: row.ActivityType,
		BalanceAfter: int(row.BalanceAfter),
		LevelAfter:   int(row.LevelAfter),
		AwardedAt:    fromMillis(row.AwardedAt),
		CreatedAt:    fromMillis(row.CreatedAt),
	}
}
