package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"engagement-engine/internal/cache"
	"engagement-engine/internal/config"
	"engagement-engine/internal/database"
	"engagement-engine/internal/db"
	"engagement-engine/internal/domain"
	"engagement-engine/internal/lock"
	"engagement-engine/internal/notify"
	"engagement-engine/internal/repository"
	"engagement-engine/internal/service"
	"engagement-engine/internal/tables"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
)

const testAdminToken = "s3cret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	sqlDB, err := database.Open(filepath.Join(t.TempDir(), "server.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	set, err := tables.Load("")
	if err != nil {
		t.Fatalf("tables.Load() error = %v", err)
	}
	cfg := &config.Config{
		Location:             time.UTC,
		RankingTypes:         []domain.RankingType{domain.RankingDaily},
		RankingSchedule:      "@every 1m",
		DefaultCompanionType: "sprout",
		DefaultCompanionName: "Buddy",
	}
	log := zerolog.Nop()
	q := db.New(sqlDB)

	progressRepo := repository.NewProgressRepository(sqlDB, q, log)
	historyRepo := repository.NewPointHistoryRepository(sqlDB, q, log)
	rankingRepo := repository.NewRankingRepository(sqlDB, q, log)
	userLocks := lock.NewKeyedMutex()

	ledger := service.NewPointLedger(progressRepo, historyRepo, set, log)
	streaks := service.NewStreakTracker(repository.NewStreakRepository(sqlDB, q, log), set, cfg, log)
	companions := service.NewCompanionService(repository.NewCompanionRepository(sqlDB, q, log), set, cfg, log)
	aggregator := service.NewRankingAggregator(historyRepo, rankingRepo, lock.NewLocalLocker(), cache.Noop{}, cfg, log)
	scheduler := service.NewRankingScheduler(aggregator, rankingRepo, progressRepo, cfg, log)
	progression := service.NewProgressionService(ledger, streaks, companions, scheduler, notify.NewLogPublisher(log), userLocks, log)
	admin := service.NewAdminService(ledger, scheduler, progression, userLocks, log)

	progressionServer := NewProgressionServer(progression, ledger, streaks, companions, aggregator)
	adminServer := NewAdminServer(admin, progressionServer)

	mux := http.NewServeMux()
	mux.Handle(NewProgressionServiceHandler(progressionServer))
	mux.Handle(NewAdminServiceHandler(adminServer, testAdminToken))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func call[Req, Res any](t *testing.T, srv *httptest.Server, procedure string, msg *Req, header ...string) (*Res, error) {
	t.Helper()
	client := connect.NewClient[Req, Res](srv.Client(), srv.URL+procedure, ClientOptions()...)
	req := connect.NewRequest(msg)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header().Set(header[i], header[i+1])
	}
	resp, err := client.CallUnary(context.Background(), req)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func TestSubmitEventOverConnect(t *testing.T) {
	srv := newTestServer(t)

	reg, err := call[RegisterUserRequest, ProgressResponse](t, srv, ProgressionRegisterUserProcedure, &RegisterUserRequest{UserID: "u1", Department: "eng"})
	if err != nil {
		t.Fatalf("RegisterUser error = %v", err)
	}
	if reg.Progress.CurrentLevel != 1 || reg.Progress.NextLevelPoints != 100 {
		t.Errorf("RegisterUser progress = %+v, want level 1 with next at 100", reg.Progress)
	}

	resp, err := call[SubmitEventRequest, SubmitEventResponse](t, srv, ProgressionSubmitEventProcedure, &SubmitEventRequest{
		EventID:      "ev-1",
		UserID:       "u1",
		PointDelta:   150,
		ActivityType: "task_completion",
		Reason:       "closed ticket",
		Timestamp:    time.Now(),
	})
	if err != nil {
		t.Fatalf("SubmitEvent error = %v", err)
	}
	if resp.NewTotalPoints != 150 || resp.NewLevel != 2 || !resp.LeveledUp {
		t.Errorf("SubmitEvent = %+v, want 150 points at level 2", resp)
	}
	if resp.StreakResult == nil || resp.StreakResult.Streak.ConsecutiveDays != 1 {
		t.Errorf("StreakResult = %+v, want a started streak", resp.StreakResult)
	}
	if resp.PartialFailure {
		t.Errorf("PartialFailure = true, errors: %q %q", resp.StreakError, resp.CompanionError)
	}

	hist, err := call[GetHistoryRequest, GetHistoryResponse](t, srv, ProgressionGetHistoryProcedure, &GetHistoryRequest{UserID: "u1"})
	if err != nil {
		t.Fatalf("GetHistory error = %v", err)
	}
	if len(hist.Awards) != 1 || hist.Awards[0].EventID != "ev-1" {
		t.Errorf("GetHistory = %+v, want one award for ev-1", hist.Awards)
	}
}

func TestErrorCodes(t *testing.T) {
	srv := newTestServer(t)

	_, err := call[GetProgressRequest, ProgressResponse](t, srv, ProgressionGetProgressProcedure, &GetProgressRequest{UserID: "ghost"})
	if got := connect.CodeOf(err); got != connect.CodeNotFound {
		t.Errorf("GetProgress(unknown) code = %v, want NotFound", got)
	}

	_, err = call[SubmitEventRequest, SubmitEventResponse](t, srv, ProgressionSubmitEventProcedure, &SubmitEventRequest{UserID: "u1", PointDelta: 5})
	if got := connect.CodeOf(err); got != connect.CodeInvalidArgument {
		t.Errorf("SubmitEvent(no activity) code = %v, want InvalidArgument", got)
	}

	_, err = call[GetRankingRequest, GetRankingResponse](t, srv, ProgressionGetRankingProcedure, &GetRankingRequest{Type: "hourly"})
	if got := connect.CodeOf(err); got != connect.CodeInvalidArgument {
		t.Errorf("GetRanking(hourly) code = %v, want InvalidArgument", got)
	}
}

func TestRankingOverConnect(t *testing.T) {
	srv := newTestServer(t)
	now := time.Now()

	for _, u := range []struct {
		id     string
		points int
	}{{"a", 30}, {"b", 80}} {
		if _, err := call[RegisterUserRequest, ProgressResponse](t, srv, ProgressionRegisterUserProcedure, &RegisterUserRequest{UserID: u.id}); err != nil {
			t.Fatal(err)
		}
		if _, err := call[SubmitEventRequest, SubmitEventResponse](t, srv, ProgressionSubmitEventProcedure, &SubmitEventRequest{
			UserID: u.id, PointDelta: u.points, ActivityType: "task_completion", Timestamp: now,
		}); err != nil {
			t.Fatal(err)
		}
	}

	empty, err := call[GetRankingRequest, GetRankingResponse](t, srv, ProgressionGetRankingProcedure, &GetRankingRequest{Type: "daily", At: now})
	if err != nil {
		t.Fatalf("GetRanking error = %v", err)
	}
	if len(empty.Entries) != 0 {
		t.Errorf("GetRanking before recompute = %d entries, want 0", len(empty.Entries))
	}

	_, err = call[PeriodRequest, PeriodResponse](t, srv, AdminRecomputeRankingProcedure, &PeriodRequest{Type: "daily", At: now},
		"Authorization", "Bearer "+testAdminToken)
	if err != nil {
		t.Fatalf("RecomputeRanking error = %v", err)
	}

	ranking, err := call[GetRankingRequest, GetRankingResponse](t, srv, ProgressionGetRankingProcedure, &GetRankingRequest{Type: "daily", At: now})
	if err != nil {
		t.Fatalf("GetRanking error = %v", err)
	}
	if len(ranking.Entries) != 2 || ranking.Entries[0].UserID != "b" || ranking.Entries[0].Position != 1 {
		t.Errorf("GetRanking entries = %+v, want b first", ranking.Entries)
	}

	rank, err := call[GetUserRankRequest, GetUserRankResponse](t, srv, ProgressionGetUserRankProcedure, &GetUserRankRequest{Type: "daily", At: now, UserID: "a"})
	if err != nil {
		t.Fatalf("GetUserRank error = %v", err)
	}
	if rank.Entry.Position != 2 || rank.TotalUsers != 2 {
		t.Errorf("GetUserRank = %+v, want position 2 of 2", rank)
	}
}

func TestAdminRequiresToken(t *testing.T) {
	srv := newTestServer(t)
	req := &CorrectPointsRequest{UserID: "u1", Delta: -10, Reason: "fix"}

	tests := []struct {
		name   string
		header []string
		want   connect.Code
	}{
		{"missing", nil, connect.CodeUnauthenticated},
		{"wrong", []string{"Authorization", "Bearer nope"}, connect.CodeUnauthenticated},
		{"valid but unknown user", []string{"Authorization", "Bearer " + testAdminToken}, connect.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call[CorrectPointsRequest, CorrectPointsResponse](t, srv, AdminCorrectPointsProcedure, req, tt.header...)
			if got := connect.CodeOf(err); got != tt.want {
				t.Errorf("code = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	interceptor := NewAdminAuthInterceptor("")
	next := func(context.Context, connect.AnyRequest) (connect.AnyResponse, error) {
		t.Fatal("next called with admin disabled")
		return nil, nil
	}
	_, err := interceptor(next)(context.Background(), connect.NewRequest(&SetDepartmentRequest{}))
	if got := connect.CodeOf(err); got != connect.CodePermissionDenied {
		t.Errorf("code = %v, want PermissionDenied", got)
	}
}

func TestListLevels(t *testing.T) {
	srv := newTestServer(t)

	resp, err := call[ListLevelsRequest, ListLevelsResponse](t, srv, ProgressionListLevelsProcedure, &ListLevelsRequest{})
	if err != nil {
		t.Fatalf("ListLevels error = %v", err)
	}
	if len(resp.Levels) == 0 || resp.Levels[0].Level != 1 || resp.Levels[0].PointsRequired != 0 {
		t.Fatalf("ListLevels = %+v, want level 1 at 0 points first", resp.Levels)
	}
	for i := 1; i < len(resp.Levels); i++ {
		if resp.Levels[i].PointsRequired <= resp.Levels[i-1].PointsRequired {
			t.Errorf("levels not strictly increasing at %d: %+v", i, resp.Levels)
		}
	}
}

func TestCompanionAndStreakReads(t *testing.T) {
	srv := newTestServer(t)

	if _, err := call[RegisterUserRequest, ProgressResponse](t, srv, ProgressionRegisterUserProcedure, &RegisterUserRequest{UserID: "u1"}); err != nil {
		t.Fatal(err)
	}

	unlock := &UnlockCompanionRequest{UserID: "u1", Type: "sprout", Name: "Pip"}
	first, err := call[UnlockCompanionRequest, CompanionResponse](t, srv, ProgressionUnlockCompanionProcedure, unlock)
	if err != nil {
		t.Fatalf("UnlockCompanion error = %v", err)
	}
	if first.Companion.Name != "Pip" || first.Companion.Level != 1 {
		t.Errorf("UnlockCompanion = %+v, want Pip at level 1", first.Companion)
	}
	_, err = call[UnlockCompanionRequest, CompanionResponse](t, srv, ProgressionUnlockCompanionProcedure, unlock)
	if got := connect.CodeOf(err); got != connect.CodeAlreadyExists {
		t.Errorf("second UnlockCompanion code = %v, want AlreadyExists", got)
	}

	if _, err := call[SubmitEventRequest, SubmitEventResponse](t, srv, ProgressionSubmitEventProcedure, &SubmitEventRequest{
		UserID: "u1", PointDelta: 10, ActivityType: "training", Timestamp: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
	streaks, err := call[GetStreaksRequest, GetStreaksResponse](t, srv, ProgressionGetStreaksProcedure, &GetStreaksRequest{UserID: "u1"})
	if err != nil {
		t.Fatalf("GetStreaks error = %v", err)
	}
	if len(streaks.Streaks) != 1 || streaks.Streaks[0].ActivityType != "training" {
		t.Errorf("GetStreaks = %+v, want one training streak", streaks.Streaks)
	}
}
