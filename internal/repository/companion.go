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

type CompanionRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewCompanionRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *CompanionRepository {
	return &CompanionRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

func (r *CompanionRepository) GetByUser(ctx context.Context, userID string) (*domain.Companion, error) {
	row, err := r.queries.GetCompanionByUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("companion for %s: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &domain.Companion{
		ID:                 row.ID,
		UserID:             row.UserID,
		Type:               row.Type,
		Name:               row.Name,
		Level:              int(row.Level),
		Experience:         int(row.Experience),
		CurrentEvolution:   int(row.CurrentEvolution),
		NextEvolutionLevel: int(row.NextEvolutionLevel),
		Version:            row.Version,
		CreatedAt:          fromMillis(row.CreatedAt),
		UpdatedAt:          fromMillis(row.UpdatedAt),
	}, nil
}

func (r *CompanionRepository) Create(ctx context.Context, c domain.Companion) error {
	err := r.queries.InsertCompanion(ctx, db.InsertCompanionParams{
		ID:                 c.ID,
		UserID:             c.UserID,
		Type:               c.Type,
		Name:               c.Name,
		Level:              int64(c.Level),
		Experience:         int64(c.Experience),
		CurrentEvolution:   int64(c.CurrentEvolution),
		NextEvolutionLevel: int64(c.NextEvolutionLevel),
		CreatedAt:          toMillis(c.CreatedAt),
		UpdatedAt:          toMillis(c.UpdatedAt),
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("companion for %s: %w", c.UserID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert companion: %w", err)
	}
	return nil
}

func (r *CompanionRepository) Update(ctx context.Context, c domain.Companion, expectedVersion int64) error {
	n, err := r.queries.UpdateCompanionProgress(ctx, db.UpdateCompanionProgressParams{
		Level:              int64(c.Level),
		Experience:         int64(c.Experience),
		CurrentEvolution:   int64(c.CurrentEvolution),
		NextEvolutionLevel: int64(c.NextEvolutionLevel),
		UpdatedAt:          toMillis(c.UpdatedAt),
		ID:                 c.ID,
		Version:            expectedVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to update companion: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
