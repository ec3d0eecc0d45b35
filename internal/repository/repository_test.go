package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"engagement-engine/internal/database"
	"engagement-engine/internal/db"
	"engagement-engine/internal/domain"

	"github.com/rs/zerolog"
)

func openTestDB(t *testing.T) (*sql.DB, *db.Queries) {
	t.Helper()
	sqlDB, err := database.Open(filepath.Join(t.TempDir(), "repo.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return sqlDB, db.New(sqlDB)
}

func registerUser(t *testing.T, repo *ProgressRepository, userID, department string) *domain.UserProgress {
	t.Helper()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	p, err := domain.NewUserProgress(userID, department, 1, now)
	if err != nil {
		t.Fatal(err)
	}
	out, _, err := repo.Register(context.Background(), p)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return out
}

func TestRegisterIsIdempotent(t *testing.T) {
	sqlDB, q := openTestDB(t)
	repo := NewProgressRepository(sqlDB, q, zerolog.Nop())
	ctx := context.Background()

	p, _ := domain.NewUserProgress("u1", "eng", 1, time.Now())
	first, created, err := repo.Register(ctx, p)
	if err != nil || !created {
		t.Fatalf("first Register() = %v, created=%v", err, created)
	}

	p.Department = "ops"
	second, created, err := repo.Register(ctx, p)
	if err != nil {
		t.Fatalf("second Register() error = %v", err)
	}
	if created {
		t.Error("second Register() reported created")
	}
	if second.Department != "ops" {
		t.Errorf("Department = %q, want ops", second.Department)
	}
	if second.Version != first.Version {
		t.Errorf("Version changed from %d to %d", first.Version, second.Version)
	}
}

func TestApplyAwardVersionAndEventID(t *testing.T) {
	sqlDB, q := openTestDB(t)
	progress := NewProgressRepository(sqlDB, q, zerolog.Nop())
	history := NewPointHistoryRepository(sqlDB, q, zerolog.Nop())
	ctx := context.Background()

	p := registerUser(t, progress, "u1", "")
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	next := *p
	next.TotalPoints = 150
	next.CurrentLevel = 2
	next.UpdatedAt = at
	award := domain.PointAward{ID: "a1", EventID: "evt-1", UserID: "u1", Delta: 150, BalanceAfter: 150, LevelAfter: 2, AwardedAt: at, CreatedAt: at}

	if err := progress.ApplyAward(ctx, next, p.Version, award); err != nil {
		t.Fatalf("ApplyAward() error = %v", err)
	}

	if err := progress.ApplyAward(ctx, next, p.Version, domain.PointAward{ID: "a2", UserID: "u1", AwardedAt: at, CreatedAt: at}); !errors.Is(err, ErrConflict) {
		t.Errorf("stale version error = %v, want ErrConflict", err)
	}

	current, err := progress.Get(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	award.ID = "a3"
	if err := progress.ApplyAward(ctx, *current, current.Version, award); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("duplicate event error = %v, want ErrAlreadyExists", err)
	}

	got, err := history.GetByEventID(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetByEventID() error = %v", err)
	}
	if got.BalanceAfter != 150 || !got.AwardedAt.Equal(at) {
		t.Errorf("award = %+v", got)
	}
	if current.TotalPoints != 150 || current.CurrentLevel != 2 {
		t.Errorf("progress = %+v", current)
	}
}

func TestPeriodTotalsRespectsWindowAndDepartment(t *testing.T) {
	sqlDB, q := openTestDB(t)
	progress := NewProgressRepository(sqlDB, q, zerolog.Nop())
	history := NewPointHistoryRepository(sqlDB, q, zerolog.Nop())
	ctx := context.Background()

	registerUser(t, progress, "a", "eng")
	registerUser(t, progress, "b", "ops")

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	awards := []struct {
		user  string
		delta int
		at    time.Time
	}{
		{"a", 10, day.Add(1 * time.Hour)},
		{"a", 20, day.Add(2 * time.Hour)},
		{"b", 5, day.Add(3 * time.Hour)},
		{"a", 99, day.Add(25 * time.Hour)},
	}
	for i, a := range awards {
		cur, err := progress.Get(ctx, a.user)
		if err != nil {
			t.Fatal(err)
		}
		next := *cur
		next.TotalPoints += a.delta
		award := domain.PointAward{ID: string(rune('p' + i)), UserID: a.user, Delta: a.delta, BalanceAfter: next.TotalPoints, LevelAfter: 1, AwardedAt: a.at, CreatedAt: a.at}
		if err := progress.ApplyAward(ctx, next, cur.Version, award); err != nil {
			t.Fatalf("ApplyAward(%d) error = %v", i, err)
		}
	}

	totals, err := history.PeriodTotals(ctx, day, day.AddDate(0, 0, 1), "")
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]PeriodTotal{}
	for _, pt := range totals {
		got[pt.UserID] = pt
	}
	if got["a"].Points != 30 || got["b"].Points != 5 {
		t.Errorf("totals = %+v", totals)
	}
	if !got["a"].FirstActivityAt.Equal(day.Add(time.Hour)) {
		t.Errorf("first activity = %v", got["a"].FirstActivityAt)
	}

	scoped, err := history.PeriodTotals(ctx, day, day.AddDate(0, 0, 1), "ops")
	if err != nil {
		t.Fatal(err)
	}
	if len(scoped) != 1 || scoped[0].UserID != "b" {
		t.Errorf("ops totals = %+v", scoped)
	}
}

func TestStreakCreateAndUpdate(t *testing.T) {
	sqlDB, q := openTestDB(t)
	progress := NewProgressRepository(sqlDB, q, zerolog.Nop())
	streaks := NewStreakRepository(sqlDB, q, zerolog.Nop())
	ctx := context.Background()

	registerUser(t, progress, "u1", "")
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s, _ := domain.NewStreak("s1", "u1", "training", at)

	if err := streaks.Create(ctx, s, nil); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := streaks.Create(ctx, s, nil); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("second Create() error = %v, want ErrAlreadyExists", err)
	}

	stored, err := streaks.Get(ctx, "u1", "training")
	if err != nil {
		t.Fatal(err)
	}
	stored.ConsecutiveDays = 3
	stored.LongestStreak = 3
	stored.LastActivity = at.AddDate(0, 0, 2)
	reward := domain.RewardReceipt{Day: 3, Reward: "streak_bronze", ReceivedAt: stored.LastActivity}
	if err := streaks.Update(ctx, *stored, stored.Version, []domain.RewardReceipt{reward}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := streaks.Update(ctx, *stored, stored.Version, nil); !errors.Is(err, ErrConflict) {
		t.Errorf("stale Update() error = %v, want ErrConflict", err)
	}

	reloaded, err := streaks.Get(ctx, "u1", "training")
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.ConsecutiveDays != 3 || !reloaded.HasReward(3) {
		t.Errorf("streak = %+v", reloaded)
	}
}

func TestReplaceBucketSwapsVersions(t *testing.T) {
	sqlDB, q := openTestDB(t)
	progress := NewProgressRepository(sqlDB, q, zerolog.Nop())
	rankings := NewRankingRepository(sqlDB, q, zerolog.Nop())
	ctx := context.Background()

	registerUser(t, progress, "a", "")
	registerUser(t, progress, "b", "")

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	bucket := domain.RankingBucket{Type: domain.RankingDaily, PeriodStart: start, PeriodEnd: start.AddDate(0, 0, 1), ComputedAt: start}

	if _, err := rankings.ListCurrent(ctx, domain.RankingDaily, start, "", 10); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ListCurrent() before compute error = %v, want ErrNotFound", err)
	}

	first := []domain.RankingEntry{{UserID: "a", Points: 10, Position: 1, FirstActivityAt: start}}
	b1, err := rankings.ReplaceBucket(ctx, bucket, first)
	if err != nil {
		t.Fatalf("ReplaceBucket() error = %v", err)
	}

	second := []domain.RankingEntry{
		{UserID: "b", Points: 20, Position: 1, FirstActivityAt: start},
		{UserID: "a", Points: 10, Position: 2, FirstActivityAt: start},
	}
	b2, err := rankings.ReplaceBucket(ctx, bucket, second)
	if err != nil {
		t.Fatalf("second ReplaceBucket() error = %v", err)
	}
	if b2.Version != b1.Version+1 {
		t.Errorf("version = %d, want %d", b2.Version, b1.Version+1)
	}

	entries, err := rankings.ListCurrent(ctx, domain.RankingDaily, start, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].UserID != "b" || entries[1].Position != 2 {
		t.Errorf("entries = %+v", entries)
	}

	var stale int
	if err := sqlDB.QueryRow("SELECT COUNT(*) FROM ranking_entries WHERE version < ?", b2.Version).Scan(&stale); err != nil {
		t.Fatal(err)
	}
	if stale != 0 {
		t.Errorf("stale entries = %d", stale)
	}

	rank, err := rankings.GetUserEntry(ctx, domain.RankingDaily, start, "", "a")
	if err != nil {
		t.Fatal(err)
	}
	if rank.Entry.Position != 2 || rank.TotalUsers != 2 {
		t.Errorf("rank = %+v", rank)
	}
}

func TestMarkClosedOnce(t *testing.T) {
	sqlDB, q := openTestDB(t)
	rankings := NewRankingRepository(sqlDB, q, zerolog.Nop())
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	closed, err := rankings.IsClosed(ctx, domain.RankingWeekly, start, "")
	if err != nil || closed {
		t.Fatalf("IsClosed() = %v, %v", closed, err)
	}
	first, err := rankings.MarkClosed(ctx, domain.RankingWeekly, start, "", start)
	if err != nil || !first {
		t.Fatalf("MarkClosed() = %v, %v", first, err)
	}
	again, err := rankings.MarkClosed(ctx, domain.RankingWeekly, start, "", start)
	if err != nil || again {
		t.Errorf("second MarkClosed() = %v, %v", again, err)
	}
}

func TestEarliestAward(t *testing.T) {
	sqlDB, q := openTestDB(t)
	progress := NewProgressRepository(sqlDB, q, zerolog.Nop())
	history := NewPointHistoryRepository(sqlDB, q, zerolog.Nop())
	ctx := context.Background()

	if _, ok, err := history.Earliest(ctx); err != nil || ok {
		t.Fatalf("Earliest() on empty history = %v, %v; want not ok", ok, err)
	}

	registerUser(t, progress, "a", "")
	first := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{first.Add(48 * time.Hour), first} {
		cur, err := progress.Get(ctx, "a")
		if err != nil {
			t.Fatal(err)
		}
		next := *cur
		next.TotalPoints += 5
		award := domain.PointAward{ID: string(rune('e' + i)), UserID: "a", Delta: 5, BalanceAfter: next.TotalPoints, LevelAfter: 1, AwardedAt: at, CreatedAt: at}
		if err := progress.ApplyAward(ctx, next, cur.Version, award); err != nil {
			t.Fatalf("ApplyAward(%d) error = %v", i, err)
		}
	}

	got, ok, err := history.Earliest(ctx)
	if err != nil || !ok {
		t.Fatalf("Earliest() = %v, %v", ok, err)
	}
	if !got.Equal(first) {
		t.Errorf("Earliest() = %v, want %v", got, first)
	}
}
