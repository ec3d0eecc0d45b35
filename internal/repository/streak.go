package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"engagement-engine/internal/db"
	"engagement-engine/internal/domain"

	"github.com/rs/zerolog"
)

type StreakRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewStreakRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *StreakRepository {
	return &StreakRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

func (r *StreakRepository) Get(ctx context.Context, userID, activityType string) (*domain.Streak, error) {
	row, err := r.queries.GetStreak(ctx, db.GetStreakParams{UserID: userID, ActivityType: activityType})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("streak %s/%s: %w", userID, activityType, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return r.hydrate(ctx, r.queries, row)
}

func (r *StreakRepository) ListByUser(ctx context.Context, userID string) ([]domain.Streak, error) {
	rows, err := r.queries.ListStreaksByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Streak, 0, len(rows))
	for _, row := range rows {
		s, err := r.hydrate(ctx, r.queries, row)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

// Create inserts a new streak row with its initial rewards. A concurrent
// creator for the same (user, activity) yields domain.ErrAlreadyExists.
func (r *StreakRepository) Create(ctx context.Context, s domain.Streak, rewards []domain.RewardReceipt) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	err = qtx.InsertStreak(ctx, db.InsertStreakParams{
		ID:              s.ID,
		UserID:          s.UserID,
		ActivityType:    s.ActivityType,
		ConsecutiveDays: int64(s.ConsecutiveDays),
		LongestStreak:   int64(s.LongestStreak),
		LastActivity:    toMillis(s.LastActivity),
		CreatedAt:       toMillis(s.CreatedAt),
		UpdatedAt:       toMillis(s.UpdatedAt),
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("streak %s/%s: %w", s.UserID, s.ActivityType, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert streak: %w", err)
	}

	if err := insertRewards(ctx, qtx, s.ID, rewards); err != nil {
		return err
	}
	return tx.Commit()
}

// Update saves the counters and appends newly granted rewards. It returns
// ErrConflict if the row moved past expectedVersion.
func (r *StreakRepository) Update(ctx context.Context, s domain.Streak, expectedVersion int64, rewards []domain.RewardReceipt) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	n, err := qtx.UpdateStreak(ctx, db.UpdateStreakParams{
		ConsecutiveDays: int64(s.ConsecutiveDays),
		LongestStreak:   int64(s.LongestStreak),
		LastActivity:    toMillis(s.LastActivity),
		UpdatedAt:       toMillis(s.UpdatedAt),
		ID:              s.ID,
		Version:         expectedVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to update streak: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}

	if err := insertRewards(ctx, qtx, s.ID, rewards); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRewards(ctx context.Context, q *db.Queries, streakID string, rewards []domain.RewardReceipt) error {
	for _, rw := range rewards {
		err := q.InsertStreakReward(ctx, db.InsertStreakRewardParams{
			StreakID:   streakID,
			Day:        int64(rw.Day),
			Reward:     rw.Reward,
			ReceivedAt: toMillis(rw.ReceivedAt),
		})
		if isUniqueViolation(err) {
			return fmt.Errorf("reward for day %d: %w", rw.Day, domain.ErrAlreadyExists)
		}
		if err != nil {
			return fmt.Errorf("failed to insert streak reward: %w", err)
		}
	}
	return nil
}

func (r *StreakRepository) hydrate(ctx context.Context, q *db.Queries, row db.Streak) (*domain.Streak, error) {
	rewards, err := q.ListStreakRewards(ctx, row.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list streak rewards: %w", err)
	}

	s := &domain.Streak{
		ID:              row.ID,
		UserID:          row.UserID,
		ActivityType:    row.ActivityType,
		ConsecutiveDays: int(row.ConsecutiveDays),
		LongestStreak:   int(row.LongestStreak),
		LastActivity:    fromMillis(row.LastActivity),
		Version:         row.Version,
		CreatedAt:       fromMillis(row.CreatedAt),
		UpdatedAt:       fromMillis(row.UpdatedAt),
	}
	for _, rw := range rewards {
		s.RewardsReceived = append(s.RewardsReceived, domain.RewardReceipt{
			Day:        int(rw.Day),
			Reward:     rw.Reward,
			ReceivedAt: fromMillis(rw.ReceivedAt),
		})
	}
	return s, nil
}
