package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"engagement-engine/internal/config"
	"engagement-engine/internal/constants"
	"engagement-engine/internal/domain"
	"engagement-engine/internal/logger"
	"engagement-engine/internal/repository"
	"engagement-engine/internal/tables"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type CompanionService struct {
	repo        *repository.CompanionRepository
	curve       *tables.EvolutionCurve
	defaultType string
	defaultName string
	logger      zerolog.Logger
	now         func() time.Time
}

func NewCompanionService(repo *repository.CompanionRepository, set *tables.Set, cfg *config.Config, log zerolog.Logger) *CompanionService {
	return &CompanionService{
		repo:        repo,
		curve:       set.Evolution,
		defaultType: cfg.DefaultCompanionType,
		defaultName: cfg.DefaultCompanionName,
		logger:      logger.Component(log, "companion"),
		now:         time.Now,
	}
}

func (s *CompanionService) Get(ctx context.Context, userID string) (*domain.Companion, error) {
	return s.repo.GetByUser(ctx, userID)
}

// Unlock gives the user their companion. A user holds at most one.
func (s *CompanionService) Unlock(ctx context.Context, userID, kind, name string) (*domain.Companion, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate companion id: %w", err)
	}
	c, err := domain.NewCompanion(id, userID, kind, name, s.curve.NextEvolutionLevel(0), s.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", userID).Str("type", kind).Str("name", name).Msg("companion unlocked")
	return &c, nil
}

// GrantExperience adds amount to the user's companion and evolves it once
// for every stage boundary crossed.
func (s *CompanionService) GrantExperience(ctx context.Context, userID string, amount int) (*domain.CompanionUpdateResult, error) {
	if amount < 0 {
		return nil, domain.NewValidationError("amount", "must not be negative")
	}
	if amount > constants.MaxCompanionExperience {
		return nil, domain.NewValidationError("amount", "exceeds the per-grant maximum")
	}

	for attempt := 0; attempt < constants.MaxConflictRetries; attempt++ {
		cur, err := s.repo.GetByUser(ctx, userID)
		if err != nil {
			return nil, err
		}

		next, evolutions := applyExperience(*cur, amount, s.curve)
		next.UpdatedAt = s.now().UTC()

		err = s.repo.Update(ctx, next, cur.Version)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		next.Version = cur.Version + 1

		evt := s.logger.Debug()
		if len(evolutions) > 0 {
			evt = s.logger.Info()
		}
		evt.Str("user_id", userID).
			Int("amount", amount).
			Int("level", next.Level).
			Int("evolution", next.CurrentEvolution).
			Int("evolutions", len(evolutions)).
			Msg("companion experience granted")

		return &domain.CompanionUpdateResult{
			Companion:     next,
			PreviousLevel: cur.Level,
			Evolutions:    evolutions,
		}, nil
	}

	return nil, fmt.Errorf("grant experience to %s: gave up after %d attempts: %w", userID, constants.MaxConflictRetries, repository.ErrConflict)
}

// GrantOrUnlock unlocks the default companion for a user who has none, then
// grants amount.
func (s *CompanionService) GrantOrUnlock(ctx context.Context, userID string, amount int) (*domain.CompanionUpdateResult, error) {
	unlocked := false
	if _, err := s.repo.GetByUser(ctx, userID); errors.Is(err, domain.ErrNotFound) {
		_, err := s.Unlock(ctx, userID, s.defaultType, s.defaultName)
		switch {
		case err == nil:
			unlocked = true
		case errors.Is(err, domain.ErrAlreadyExists):
		default:
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	res, err := s.GrantExperience(ctx, userID, amount)
	if err != nil {
		return nil, err
	}
	res.Unlocked = unlocked
	return res, nil
}

// applyExperience never lowers level or evolution.
func applyExperience(c domain.Companion, amount int, curve *tables.EvolutionCurve) (domain.Companion, []domain.Evolution) {
	if amount > math.MaxInt-c.Experience {
		c.Experience = math.MaxInt
	} else {
		c.Experience += amount
	}
	if level := curve.LevelFor(c.Experience); level > c.Level {
		c.Level = level
	}

	var evolutions []domain.Evolution
	for c.NextEvolutionLevel > 0 && c.Level >= c.NextEvolutionLevel {
		c.CurrentEvolution++
		evolutions = append(evolutions, domain.Evolution{
			Stage:     c.CurrentEvolution,
			StageName: curve.StageName(c.CurrentEvolution),
			AtLevel:   c.NextEvolutionLevel,
		})
		c.NextEvolutionLevel = curve.NextEvolutionLevel(c.CurrentEvolution)
	}
	return c, evolutions
}
