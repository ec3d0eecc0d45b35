package service

import (
	"context"
	"time"

	"engagement-engine/internal/domain"
	"engagement-engine/internal/lock"
	"engagement-engine/internal/logger"

	"github.com/rs/zerolog"
)

// AdminService holds the privileged commands: corrections, department moves,
// and ranking period control.
type AdminService struct {
	ledger    *PointLedger
	scheduler *RankingScheduler
	progress  *ProgressionService
	userLocks *lock.KeyedMutex
	logger    zerolog.Logger
	now       func() time.Time
}

func NewAdminService(ledger *PointLedger, scheduler *RankingScheduler, progress *ProgressionService, userLocks *lock.KeyedMutex, log zerolog.Logger) *AdminService {
	return &AdminService{
		ledger:    ledger,
		scheduler: scheduler,
		progress:  progress,
		userLocks: userLocks,
		logger:    logger.Component(log, "admin"),
		now:       time.Now,
	}
}

// CorrectPoints applies a signed adjustment. Unlike scored events it may be
// negative and may lower the level.
func (a *AdminService) CorrectPoints(ctx context.Context, userID string, delta int, reason string) (*domain.LedgerResult, error) {
	if reason == "" {
		return nil, domain.NewValidationError("reason", "required for corrections")
	}
	unlock := a.userLocks.Lock(userID)
	defer unlock()

	res, err := a.ledger.Apply(ctx, AwardRequest{
		UserID:       userID,
		Delta:        delta,
		Reason:       reason,
		ActivityType: "correction",
		At:           a.now(),
	})
	if err != nil {
		return nil, err
	}
	a.scheduler.MarkDirty()

	a.logger.Info().
		Str("user_id", userID).
		Int("delta", delta).
		Str("reason", reason).
		Int("total_points", res.Progress.TotalPoints).
		Int("level", res.Progress.CurrentLevel).
		Msg("points corrected")
	return res, nil
}

func (a *AdminService) SetDepartment(ctx context.Context, userID, department string) error {
	unlock := a.userLocks.Lock(userID)
	defer unlock()

	if err := a.ledger.progress.SetDepartment(ctx, userID, department, a.now().UTC()); err != nil {
		return err
	}
	a.scheduler.MarkDirty()
	a.logger.Info().Str("user_id", userID).Str("department", department).Msg("department updated")
	return nil
}

func (a *AdminService) RegisterUser(ctx context.Context, userID, department string) (*domain.UserProgress, error) {
	return a.progress.RegisterUser(ctx, userID, department)
}

// RefreshRankings rebuilds the open buckets now. The server picks corrections
// up on its next tick; a separate process has no tick to wait for.
func (a *AdminService) RefreshRankings(ctx context.Context) error {
	return a.scheduler.RefreshOpen(ctx)
}

func (a *AdminService) ClosePeriod(ctx context.Context, t domain.RankingType, at time.Time, department string) ([]domain.RankingEntry, error) {
	return a.scheduler.ClosePeriod(ctx, t, at, department)
}

func (a *AdminService) RecomputeRanking(ctx context.Context, t domain.RankingType, at time.Time, department string) ([]domain.RankingEntry, error) {
	return a.scheduler.Recompute(ctx, t, at, department)
}
