package server

import (
	"context"
	"errors"

	"engagement-engine/internal/domain"
	"engagement-engine/internal/service"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
)

type ProgressionServer struct {
	progression *service.ProgressionService
	ledger      *service.PointLedger
	streaks     *service.StreakTracker
	companions  *service.CompanionService
	rankings    *service.RankingAggregator
}

func NewProgressionServer(
	progression *service.ProgressionService,
	ledger *service.PointLedger,
	streaks *service.StreakTracker,
	companions *service.CompanionService,
	rankings *service.RankingAggregator,
) *ProgressionServer {
	return &ProgressionServer{
		progression: progression,
		ledger:      ledger,
		streaks:     streaks,
		companions:  companions,
		rankings:    rankings,
	}
}

func (s *ProgressionServer) RegisterUser(ctx context.Context, req *connect.Request[RegisterUserRequest]) (*connect.Response[ProgressResponse], error) {
	p, err := s.progression.RegisterUser(ctx, req.Msg.UserID, req.Msg.Department)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&ProgressResponse{Progress: s.toProgress(*p)}), nil
}

func (s *ProgressionServer) GetProgress(ctx context.Context, req *connect.Request[GetProgressRequest]) (*connect.Response[ProgressResponse], error) {
	p, err := s.progression.GetProgress(ctx, req.Msg.UserID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&ProgressResponse{Progress: s.toProgress(*p)}), nil
}

func (s *ProgressionServer) SubmitEvent(ctx context.Context, req *connect.Request[SubmitEventRequest]) (*connect.Response[SubmitEventResponse], error) {
	m := req.Msg
	outcome, err := s.progression.HandleEvent(ctx, domain.ScoredEvent{
		EventID:             m.EventID,
		UserID:              m.UserID,
		PointDelta:          m.PointDelta,
		ActivityType:        m.ActivityType,
		Reason:              m.Reason,
		Timestamp:           m.Timestamp,
		CompanionExperience: m.CompanionExperience,
	})
	if err != nil {
		return nil, toConnectError(ctx, err)
	}

	resp := &SubmitEventResponse{
		EventID:        outcome.EventID,
		UserID:         outcome.UserID,
		NewTotalPoints: outcome.NewTotalPoints,
		NewLevel:       outcome.NewLevel,
		PreviousLevel:  outcome.PreviousLevel,
		LeveledUp:      outcome.LeveledUp,
		Duplicate:      outcome.Duplicate,
		StreakError:    outcome.StreakError,
		CompanionError: outcome.CompanionError,
		PartialFailure: outcome.PartialFailure(),
		Notifications:  outcome.Notifications,
	}
	if r := outcome.StreakResult; r != nil {
		resp.StreakResult = &StreakResult{
			Streak:     toStreak(r.Streak),
			Transition: string(r.Transition),
			Milestones: r.Milestones,
		}
	}
	if r := outcome.EvolutionResult; r != nil {
		resp.EvolutionResult = &EvolutionResult{
			Companion:     toCompanion(r.Companion),
			PreviousLevel: r.PreviousLevel,
			Unlocked:      r.Unlocked,
			Evolutions:    r.Evolutions,
		}
	}
	return connect.NewResponse(resp), nil
}

func (s *ProgressionServer) GetHistory(ctx context.Context, req *connect.Request[GetHistoryRequest]) (*connect.Response[GetHistoryResponse], error) {
	awards, err := s.ledger.History(ctx, req.Msg.UserID, req.Msg.Limit)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}

	out := make([]PointAward, len(awards))
	for i, a := range awards {
		out[i] = PointAward{
			ID:           a.ID,
			EventID:      a.EventID,
			Delta:        a.Delta,
			Reason:       a.Reason,
			ActivityType: a.ActivityType,
			BalanceAfter: a.BalanceAfter,
			LevelAfter:   a.LevelAfter,
			AwardedAt:    a.AwardedAt,
		}
	}
	return connect.NewResponse(&GetHistoryResponse{Awards: out}), nil
}

func (s *ProgressionServer) GetStreaks(ctx context.Context, req *connect.Request[GetStreaksRequest]) (*connect.Response[GetStreaksResponse], error) {
	streaks, err := s.streaks.GetStreaks(ctx, req.Msg.UserID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	out := make([]Streak, len(streaks))
	for i, st := range streaks {
		out[i] = toStreak(st)
	}
	return connect.NewResponse(&GetStreaksResponse{Streaks: out}), nil
}

func (s *ProgressionServer) GetCompanion(ctx context.Context, req *connect.Request[GetCompanionRequest]) (*connect.Response[CompanionResponse], error) {
	c, err := s.companions.Get(ctx, req.Msg.UserID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&CompanionResponse{Companion: toCompanion(*c)}), nil
}

func (s *ProgressionServer) UnlockCompanion(ctx context.Context, req *connect.Request[UnlockCompanionRequest]) (*connect.Response[CompanionResponse], error) {
	if _, err := s.progression.GetProgress(ctx, req.Msg.UserID); err != nil {
		return nil, toConnectError(ctx, err)
	}
	c, err := s.companions.Unlock(ctx, req.Msg.UserID, req.Msg.Type, req.Msg.Name)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&CompanionResponse{Companion: toCompanion(*c)}), nil
}

func (s *ProgressionServer) GetRanking(ctx context.Context, req *connect.Request[GetRankingRequest]) (*connect.Response[GetRankingResponse], error) {
	t, err := domain.ParseRankingType(req.Msg.Type)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	p, err := s.rankings.Period(t, req.Msg.At)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}

	entries, err := s.rankings.GetRanking(ctx, t, p.Start, req.Msg.Department, req.Msg.Limit)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&GetRankingResponse{
		Type:        string(t),
		PeriodStart: p.Start,
		PeriodEnd:   p.End,
		Department:  req.Msg.Department,
		Entries:     entries,
	}), nil
}

func (s *ProgressionServer) GetUserRank(ctx context.Context, req *connect.Request[GetUserRankRequest]) (*connect.Response[GetUserRankResponse], error) {
	t, err := domain.ParseRankingType(req.Msg.Type)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	p, err := s.rankings.Period(t, req.Msg.At)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}

	rank, err := s.rankings.GetUserRank(ctx, t, p.Start, req.Msg.Department, req.Msg.UserID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&GetUserRankResponse{Entry: rank.Entry, TotalUsers: rank.TotalUsers}), nil
}

func (s *ProgressionServer) ListLevels(_ context.Context, _ *connect.Request[ListLevelsRequest]) (*connect.Response[ListLevelsResponse], error) {
	defs := s.ledger.Levels()
	out := make([]Level, len(defs))
	for i, d := range defs {
		out[i] = Level{
			Level:          d.Level,
			PointsRequired: d.PointsRequired,
			Name:           d.Name,
			Color:          d.Color,
			Benefits:       d.Benefits,
		}
	}
	return connect.NewResponse(&ListLevelsResponse{Levels: out}), nil
}

func (s *ProgressionServer) toProgress(p domain.UserProgress) Progress {
	out := Progress{
		UserID:       p.UserID,
		Department:   p.Department,
		TotalPoints:  p.TotalPoints,
		CurrentLevel: p.CurrentLevel,
		LevelName:    s.ledger.LevelName(p.CurrentLevel),
		UpdatedAt:    p.UpdatedAt,
	}
	for _, d := range s.ledger.Levels() {
		if d.Level > p.CurrentLevel {
			out.NextLevelPoints = d.PointsRequired
			break
		}
	}
	return out
}

func toStreak(s domain.Streak) Streak {
	return Streak{
		ActivityType:    s.ActivityType,
		ConsecutiveDays: s.ConsecutiveDays,
		LongestStreak:   s.LongestStreak,
		LastActivity:    s.LastActivity,
		RewardsReceived: s.RewardsReceived,
	}
}

func toCompanion(c domain.Companion) Companion {
	return Companion{
		Type:               c.Type,
		Name:               c.Name,
		Level:              c.Level,
		Experience:         c.Experience,
		CurrentEvolution:   c.CurrentEvolution,
		NextEvolutionLevel: c.NextEvolutionLevel,
	}
}

// toConnectError maps the domain taxonomy onto connect codes. Unmapped errors
// are logged with the request logger before they leave as Internal.
func toConnectError(ctx context.Context, err error) error {
	var code connect.Code
	switch {
	case errors.Is(err, domain.ErrValidation):
		code = connect.CodeInvalidArgument
	case errors.Is(err, domain.ErrOutOfOrderEvent):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, domain.ErrAlreadyExists):
		code = connect.CodeAlreadyExists
	case errors.Is(err, domain.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, domain.ErrAggregationInProgress):
		code = connect.CodeAborted
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	default:
		code = connect.CodeInternal
		zerolog.Ctx(ctx).Error().Err(err).Msg("request failed")
	}
	return connect.NewError(code, err)
}
