package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"engagement-engine/internal/constants"
	"engagement-engine/internal/domain"
	"engagement-engine/internal/logger"
	"engagement-engine/internal/repository"
	"engagement-engine/internal/tables"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// AwardRequest is one ledger write. EventID makes it idempotent; At stamps the
// history row (and so decides which ranking periods it counts toward).
type AwardRequest struct {
	EventID      string
	UserID       string
	Delta        int
	Reason       string
	ActivityType string
	At           time.Time
}

type PointLedger struct {
	progress *repository.ProgressRepository
	history  *repository.PointHistoryRepository
	levels   *tables.LevelTable
	logger   zerolog.Logger
	now      func() time.Time
}

func NewPointLedger(progress *repository.ProgressRepository, history *repository.PointHistoryRepository, set *tables.Set, log zerolog.Logger) *PointLedger {
	return &PointLedger{
		progress: progress,
		history:  history,
		levels:   set.Levels,
		logger:   logger.Component(log, "point_ledger"),
		now:      time.Now,
	}
}

// Register creates the user's progress row on the lowest level. Calling it
// again is harmless; a non-empty department replaces the stored one.
func (l *PointLedger) Register(ctx context.Context, userID, department string) (*domain.UserProgress, error) {
	p, err := domain.NewUserProgress(userID, department, l.levels.Lowest(), l.now().UTC())
	if err != nil {
		return nil, err
	}
	p.CurrentLevel = l.levels.LevelFor(0)

	stored, created, err := l.progress.Register(ctx, p)
	if err != nil {
		return nil, err
	}
	if created {
		l.logger.Info().Str("user_id", userID).Str("department", stored.Department).Msg("user registered")
	}
	return stored, nil
}

func (l *PointLedger) Get(ctx context.Context, userID string) (*domain.UserProgress, error) {
	return l.progress.Get(ctx, userID)
}

// ApplyPoints adds delta (which may be negative) to the user's total.
func (l *PointLedger) ApplyPoints(ctx context.Context, userID string, delta int, reason string) (*domain.UserProgress, error) {
	res, err := l.Apply(ctx, AwardRequest{UserID: userID, Delta: delta, Reason: reason})
	if err != nil {
		return nil, err
	}
	return &res.Progress, nil
}

// Apply writes one award. The total is floored at zero and the level is
// re-derived from the Level Table. A level-up reports only the final level.
func (l *PointLedger) Apply(ctx context.Context, req AwardRequest) (*domain.LedgerResult, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, domain.NewValidationError("user_id", "required")
	}
	if req.Delta > constants.MaxPointDelta || req.Delta < -constants.MaxPointDelta {
		return nil, domain.NewValidationError("delta", "exceeds the per-award maximum")
	}
	if req.At.IsZero() {
		req.At = l.now()
	}
	req.At = req.At.UTC()

	if req.EventID != "" {
		if res, err := l.duplicate(ctx, req); res != nil || err != nil {
			return res, err
		}
	}

	for attempt := 0; attempt < constants.MaxConflictRetries; attempt++ {
		cur, err := l.progress.Get(ctx, req.UserID)
		if err != nil {
			return nil, err
		}

		if req.Delta > 0 && cur.TotalPoints > constants.MaxTotalPoints-req.Delta {
			return nil, domain.NewValidationError("delta", "would push the total past its ceiling")
		}
		total := cur.TotalPoints + req.Delta
		if total < 0 {
			total = 0
		}
		level := l.levels.LevelFor(total)

		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate award id: %w", err)
		}
		now := l.now().UTC()

		next := *cur
		next.TotalPoints = total
		next.CurrentLevel = level
		next.UpdatedAt = now

		award := domain.PointAward{
			ID:           id,
			EventID:      req.EventID,
			UserID:       req.UserID,
			Delta:        total - cur.TotalPoints, // effective, so period sums match the running total
			Reason:       req.Reason,
			ActivityType: req.ActivityType,
			BalanceAfter: total,
			LevelAfter:   level,
			AwardedAt:    req.At,
			CreatedAt:    now,
		}

		err = l.progress.ApplyAward(ctx, next, cur.Version, award)
		if errors.Is(err, repository.ErrConflict) {
			l.logger.Debug().Str("user_id", req.UserID).Int("attempt", attempt+1).Msg("progress changed concurrently, retrying")
			continue
		}
		if errors.Is(err, domain.ErrAlreadyExists) && req.EventID != "" {
			return l.duplicate(ctx, req)
		}
		if err != nil {
			return nil, err
		}

		next.Version = cur.Version + 1
		res := &domain.LedgerResult{
			Progress:      next,
			PreviousLevel: cur.CurrentLevel,
			LeveledUp:     level > cur.CurrentLevel,
			Award:         &award,
		}

		evt := l.logger.Debug()
		if res.LeveledUp {
			evt = l.logger.Info()
		}
		evt.Str("user_id", req.UserID).
			Int("delta", req.Delta).
			Int("total_points", total).
			Int("level", level).
			Bool("leveled_up", res.LeveledUp).
			Msg("points applied")

		return res, nil
	}

	return nil, fmt.Errorf("apply points for %s: gave up after %d attempts: %w", req.UserID, constants.MaxConflictRetries, repository.ErrConflict)
}

// duplicate returns a result when req.EventID was already applied, nil otherwise.
func (l *PointLedger) duplicate(ctx context.Context, req AwardRequest) (*domain.LedgerResult, error) {
	prior, err := l.history.GetByEventID(ctx, req.EventID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if prior.UserID != req.UserID {
		return nil, domain.NewValidationError("event_id", "already used by another user")
	}

	cur, err := l.progress.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	l.logger.Debug().Str("user_id", req.UserID).Str("event_id", req.EventID).Msg("event already applied")
	return &domain.LedgerResult{
		Progress:      *cur,
		PreviousLevel: cur.CurrentLevel,
		Duplicate:     true,
		Award:         prior,
	}, nil
}

func (l *PointLedger) History(ctx context.Context, userID string, limit int) ([]domain.PointAward, error) {
	if limit <= 0 {
		limit = constants.DefaultHistoryLimit
	}
	if _, err := l.progress.Get(ctx, userID); err != nil {
		return nil, err
	}
	return l.history.GetByUser(ctx, userID, limit)
}

func (l *PointLedger) Levels() []domain.LevelDefinition {
	return l.levels.All()
}

func (l *PointLedger) LevelName(level int) string {
	return l.levels.Name(level)
}
