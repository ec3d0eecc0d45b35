package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

type StreakTracker struct {
	repo       *repository.StreakRepository
	milestones *tables.MilestoneTable
	loc        *time.Location
	logger     zerolog.Logger
	now        func() time.Time
}

func NewStreakTracker(repo *repository.StreakRepository, set *tables.Set, cfg *config.Config, log zerolog.Logger) *StreakTracker {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &StreakTracker{
		repo:       repo,
		milestones: set.Milestones,
		loc:        loc,
		logger:     logger.Component(log, "streak_tracker"),
		now:        time.Now,
	}
}

// RecordActivity advances the (user, activity) streak to at, creating it on
// first sight. Timestamps older than the stored last activity are rejected.
func (t *StreakTracker) RecordActivity(ctx context.Context, userID, activityType string, at time.Time) (*domain.StreakUpdateResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.NewValidationError("user_id", "required")
	}
	if strings.TrimSpace(activityType) == "" {
		return nil, domain.NewValidationError("activity_type", "required")
	}
	if at.IsZero() {
		return nil, domain.NewValidationError("timestamp", "required")
	}
	at = at.UTC()

	for attempt := 0; attempt < constants.MaxConflictRetries; attempt++ {
		stored, err := t.repo.Get(ctx, userID, activityType)
		if errors.Is(err, domain.ErrNotFound) {
			res, err := t.create(ctx, userID, activityType, at)
			if errors.Is(err, domain.ErrAlreadyExists) {
				continue
			}
			return res, err
		}
		if err != nil {
			return nil, err
		}

		next, transition, err := advanceStreak(*stored, at, t.loc)
		if err != nil {
			t.logger.Warn().
				Str("user_id", userID).
				Str("activity_type", activityType).
				Time("at", at).
				Time("last_activity", stored.LastActivity).
				Msg("out of order activity rejected")
			return nil, err
		}
		granted := t.grantMilestones(&next, transition)
		next.UpdatedAt = t.now().UTC()

		err = t.repo.Update(ctx, next, stored.Version, granted)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		next.Version = stored.Version + 1

		t.logTransition(next, transition, granted)
		return &domain.StreakUpdateResult{Streak: next, Transition: transition, Milestones: granted}, nil
	}

	return nil, fmt.Errorf("record activity for %s/%s: gave up after %d attempts: %w", userID, activityType, constants.MaxConflictRetries, repository.ErrConflict)
}

func (t *StreakTracker) create(ctx context.Context, userID, activityType string, at time.Time) (*domain.StreakUpdateResult, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate streak id: %w", err)
	}
	s, err := domain.NewStreak(id, userID, activityType, at)
	if err != nil {
		return nil, err
	}
	s.UpdatedAt = t.now().UTC()

	granted := t.grantMilestones(&s, domain.StreakStarted)
	if err := t.repo.Create(ctx, s, granted); err != nil {
		return nil, err
	}

	t.logTransition(s, domain.StreakStarted, granted)
	return &domain.StreakUpdateResult{Streak: s, Transition: domain.StreakStarted, Milestones: granted}, nil
}

// grantMilestones appends the reward for the new run length if the row has
// never received it. Rewards are never cleared, so a rebuilt run does not earn
// the same milestone twice.
func (t *StreakTracker) grantMilestones(s *domain.Streak, transition domain.StreakTransition) []domain.RewardReceipt {
	if transition == domain.StreakSameDay {
		return nil
	}
	reward, ok := t.milestones.RewardFor(s.ConsecutiveDays)
	if !ok || s.HasReward(s.ConsecutiveDays) {
		return nil
	}
	receipt := domain.RewardReceipt{Day: s.ConsecutiveDays, Reward: reward, ReceivedAt: t.now().UTC()}
	s.RewardsReceived = append(s.RewardsReceived, receipt)
	return []domain.RewardReceipt{receipt}
}

func (t *StreakTracker) logTransition(s domain.Streak, transition domain.StreakTransition, granted []domain.RewardReceipt) {
	evt := t.logger.Debug()
	if len(granted) > 0 {
		evt = t.logger.Info()
	}
	evt.Str("user_id", s.UserID).
		Str("activity_type", s.ActivityType).
		Str("transition", string(transition)).
		Int("consecutive_days", s.ConsecutiveDays).
		Int("longest_streak", s.LongestStreak).
		Int("milestones", len(granted)).
		Msg("streak updated")
}

func (t *StreakTracker) GetStreaks(ctx context.Context, userID string) ([]domain.Streak, error) {
	return t.repo.ListByUser(ctx, userID)
}

// advanceStreak applies one activity to s using calendar days in loc.
func advanceStreak(s domain.Streak, at time.Time, loc *time.Location) (domain.Streak, domain.StreakTransition, error) {
	if at.Before(s.LastActivity) {
		return s, "", fmt.Errorf("activity at %s precedes last activity %s: %w",
			at.Format(time.RFC3339), s.LastActivity.Format(time.RFC3339), domain.ErrOutOfOrderEvent)
	}

	var transition domain.StreakTransition
	switch d := domain.CalendarDays(s.LastActivity, at, loc); {
	case d == 0:
		transition = domain.StreakSameDay
	case d == 1:
		s.ConsecutiveDays++
		if s.ConsecutiveDays > s.LongestStreak {
			s.LongestStreak = s.ConsecutiveDays
		}
		transition = domain.StreakContinued
	default:
		s.ConsecutiveDays = 1
		transition = domain.StreakReset
	}
	s.LastActivity = at
	return s, transition, nil
}
