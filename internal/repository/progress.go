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

type ProgressRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewProgressRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *ProgressRepository {
	return &ProgressRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

func (r *ProgressRepository) Get(ctx context.Context, userID string) (*domain.UserProgress, error) {
	row, err := r.queries.GetUserProgress(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	p := toDomainProgress(row)
	return &p, nil
}

// Register creates the progress row if missing. An existing row keeps its
// points; a non-empty department replaces the stored one.
func (r *ProgressRepository) Register(ctx context.Context, p domain.UserProgress) (*domain.UserProgress, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	created, err := qtx.InsertUserProgress(ctx, db.InsertUserProgressParams{
		UserID:       p.UserID,
		Department:   p.Department,
		TotalPoints:  int64(p.TotalPoints),
		CurrentLevel: int64(p.CurrentLevel),
		CreatedAt:    toMillis(p.CreatedAt),
		UpdatedAt:    toMillis(p.UpdatedAt),
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert user progress: %w", err)
	}

	if !created && p.Department != "" {
		if _, err := qtx.UpdateUserDepartment(ctx, db.UpdateUserDepartmentParams{
			Department: p.Department,
			UpdatedAt:  toMillis(p.UpdatedAt),
			UserID:     p.UserID,
		}); err != nil {
			return nil, false, fmt.Errorf("failed to update department: %w", err)
		}
	}

	row, err := qtx.GetUserProgress(ctx, p.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reload user progress: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit registration: %w", err)
	}

	out := toDomainProgress(row)
	return &out, created, nil
}

func (r *ProgressRepository) SetDepartment(ctx context.Context, userID, department string, at time.Time) error {
	n, err := r.queries.UpdateUserDepartment(ctx, db.UpdateUserDepartmentParams{
		Department: department,
		UpdatedAt:  toMillis(at),
		UserID:     userID,
	})
	if err != nil {
		return fmt.Errorf("failed to update department: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	return nil
}

// ApplyAward writes the new totals and the history row in one transaction.
// It returns ErrConflict when the progress row moved past expectedVersion and
// domain.ErrAlreadyExists when the award's event id was already recorded.
func (r *ProgressRepository) ApplyAward(ctx context.Context, next domain.UserProgress, expectedVersion int64, award domain.PointAward) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	n, err := qtx.UpdateUserProgressPoints(ctx, db.UpdateUserProgressPointsParams{
		TotalPoints:  int64(next.TotalPoints),
		CurrentLevel: int64(next.CurrentLevel),
		UpdatedAt:    toMillis(next.UpdatedAt),
		UserID:       next.UserID,
		Version:      expectedVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to update user progress: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}

	err = qtx.InsertPointAward(ctx, db.InsertPointAwardParams{
		ID:           award.ID,
		EventID:      sql.NullString{String: award.EventID, Valid: award.EventID != ""},
		UserID:       award.UserID,
		Delta:        int64(award.Delta),
		Reason:       award.Reason,
		ActivityType: award.ActivityType,
		BalanceAfter: int64(award.BalanceAfter),
		LevelAfter:   int64(award.LevelAfter),
		AwardedAt:    toMillis(award.AwardedAt),
		CreatedAt:    toMillis(award.CreatedAt),
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("event %s: %w", award.EventID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert point award: %w", err)
	}

	return tx.Commit()
}

func (r *ProgressRepository) Departments(ctx context.Context) ([]string, error) {
	return r.queries.ListDepartments(ctx)
}

func toDomainProgress(row db.UserProgress) domain.UserProgress {
	return domain.UserProgress{
		UserID:       row.UserID,
		Department:   row.Department,
		TotalPoints:  int(row.TotalPoints),
		CurrentLevel: int(row.CurrentLevel),
		Version:      row.Version,
		CreatedAt:    fromMillis(row.CreatedAt),
		UpdatedAt:    fromMillis(row.UpdatedAt),
	}
}
