package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"engagement-engine/internal/constants"
	"engagement-engine/internal/domain"
	"engagement-engine/internal/lock"
	"engagement-engine/internal/logger"
	"engagement-engine/internal/notify"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ProgressionService is the entry point for scored events. Points are applied
// first and are authoritative; streak and companion updates run afterwards,
// side by side, and their failures are reported without undoing the points.
type ProgressionService struct {
	ledger     *PointLedger
	streaks    *StreakTracker
	companions *CompanionService
	scheduler  *RankingScheduler
	publisher  notify.Publisher
	userLocks  *lock.KeyedMutex
	logger     zerolog.Logger
	now        func() time.Time
}

func NewProgressionService(
	ledger *PointLedger,
	streaks *StreakTracker,
	companions *CompanionService,
	scheduler *RankingScheduler,
	publisher notify.Publisher,
	userLocks *lock.KeyedMutex,
	log zerolog.Logger,
) *ProgressionService {
	return &ProgressionService{
		ledger:     ledger,
		streaks:    streaks,
		companions: companions,
		scheduler:  scheduler,
		publisher:  publisher,
		userLocks:  userLocks,
		logger:     logger.Component(log, "progression"),
		now:        time.Now,
	}
}

func (s *ProgressionService) RegisterUser(ctx context.Context, userID, department string) (*domain.UserProgress, error) {
	unlock := s.userLocks.Lock(userID)
	defer unlock()

	p, err := s.ledger.Register(ctx, userID, department)
	if err != nil {
		return nil, err
	}
	s.scheduler.MarkDirty()
	return p, nil
}

func (s *ProgressionService) GetProgress(ctx context.Context, userID string) (*domain.UserProgress, error) {
	return s.ledger.Get(ctx, userID)
}

// HandleEvent processes one scored event. Events for the same user are
// serialized; events for different users run concurrently.
func (s *ProgressionService) HandleEvent(ctx context.Context, ev domain.ScoredEvent) (*domain.ProgressionOutcome, error) {
	if err := ev.ValidateAt(s.now()); err != nil {
		return nil, err
	}
	ev.Timestamp = ev.Timestamp.UTC()

	log := s.logger.With().Str("user_id", ev.UserID).Str("event_id", ev.EventID).Logger()
	log.Debug().Int("point_delta", ev.PointDelta).Str("activity_type", ev.ActivityType).Msg("handling event")

	unlock := s.userLocks.Lock(ev.UserID)
	defer unlock()

	ledgerRes, err := s.ledger.Apply(ctx, AwardRequest{
		EventID:      ev.EventID,
		UserID:       ev.UserID,
		Delta:        ev.PointDelta,
		Reason:       ev.Reason,
		ActivityType: ev.ActivityType,
		At:           ev.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("apply points: %w", err)
	}

	outcome := &domain.ProgressionOutcome{
		EventID:        ev.EventID,
		UserID:         ev.UserID,
		NewTotalPoints: ledgerRes.Progress.TotalPoints,
		NewLevel:       ledgerRes.Progress.CurrentLevel,
		PreviousLevel:  ledgerRes.PreviousLevel,
		LeveledUp:      ledgerRes.LeveledUp,
		Duplicate:      ledgerRes.Duplicate,
	}
	if ledgerRes.Duplicate {
		return outcome, nil
	}

	var (
		streakRes    *domain.StreakUpdateResult
		streakErr    error
		companionRes *domain.CompanionUpdateResult
		companionErr error
	)

	// sub-mechanic failures are captured, never returned, so neither cancels the other
	g := new(errgroup.Group)
	g.Go(func() error {
		streakRes, streakErr = s.streaks.RecordActivity(ctx, ev.UserID, ev.ActivityType, ev.Timestamp)
		return nil
	})
	if ev.CompanionExperience != nil {
		g.Go(func() error {
			companionRes, companionErr = s.companions.GrantOrUnlock(ctx, ev.UserID, *ev.CompanionExperience)
			return nil
		})
	}
	_ = g.Wait()

	if streakErr != nil {
		outcome.StreakError = streakErr.Error()
		log.Warn().Err(streakErr).Msg("streak update failed")
	} else {
		outcome.StreakResult = streakRes
	}
	if companionErr != nil {
		outcome.CompanionError = companionErr.Error()
		log.Warn().Err(companionErr).Msg("companion update failed")
	} else {
		outcome.EvolutionResult = companionRes
	}

	outcome.Notifications = s.buildNotifications(ev, outcome)
	s.publish(ctx, log, outcome.Notifications)
	s.scheduler.MarkDirty()

	log.Info().
		Int("total_points", outcome.NewTotalPoints).
		Int("level", outcome.NewLevel).
		Bool("leveled_up", outcome.LeveledUp).
		Bool("partial_failure", outcome.PartialFailure()).
		Int("notifications", len(outcome.Notifications)).
		Msg("event processed")

	return outcome, nil
}

func (s *ProgressionService) buildNotifications(ev domain.ScoredEvent, o *domain.ProgressionOutcome) []domain.Notification {
	var notes []domain.Notification
	at := ev.Timestamp

	if o.LeveledUp {
		notes = append(notes, domain.Notification{
			ID:         notificationID(ev.EventID, domain.NotifyLevelUp, strconv.Itoa(o.NewLevel)),
			Kind:       domain.NotifyLevelUp,
			UserID:     ev.UserID,
			OccurredAt: at,
			Level:      o.NewLevel,
			LevelName:  s.ledger.LevelName(o.NewLevel),
		})
	}

	if o.StreakResult != nil {
		for _, m := range o.StreakResult.Milestones {
			notes = append(notes, domain.Notification{
				ID:           notificationID(ev.EventID, domain.NotifyStreakMilestone, ev.ActivityType+"/"+strconv.Itoa(m.Day)),
				Kind:         domain.NotifyStreakMilestone,
				UserID:       ev.UserID,
				OccurredAt:   at,
				ActivityType: ev.ActivityType,
				StreakDay:    m.Day,
				Reward:       m.Reward,
			})
		}
	}

	if o.EvolutionResult != nil {
		for _, e := range o.EvolutionResult.Evolutions {
			notes = append(notes, domain.Notification{
				ID:             notificationID(ev.EventID, domain.NotifyCompanionEvolution, strconv.Itoa(e.Stage)),
				Kind:           domain.NotifyCompanionEvolution,
				UserID:         ev.UserID,
				OccurredAt:     at,
				CompanionName:  o.EvolutionResult.Companion.Name,
				EvolutionStage: e.Stage,
				StageName:      e.StageName,
			})
		}
	}
	return notes
}

// publish never fails the event; the state change has already committed.
func (s *ProgressionService) publish(ctx context.Context, log zerolog.Logger, notes []domain.Notification) {
	if len(notes) == 0 {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.NotifyTimeout)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, notes); err != nil {
		log.Error().Err(err).Int("notifications", len(notes)).Msg("failed to publish notifications")
	}
}

var notificationNamespace = uuid.MustParse("6f0b7c1e-4a52-4d8e-9a63-0c3f2d9e8b17")

// notificationID is stable for a redelivered event so downstream consumers
// can deduplicate; events without an id get a random one.
func notificationID(eventID string, kind domain.NotificationKind, detail string) string {
	if eventID == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(notificationNamespace, []byte(eventID+"/"+string(kind)+"/"+detail)).String()
}
