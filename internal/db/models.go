package db

import "database/sql"

// Timestamps are unix milliseconds (UTC) so range predicates compare numerically.

type UserProgress struct {
	UserID       string
	Department   string
	TotalPoints  int64
	CurrentLevel int64
	Version      int64
	CreatedAt    int64
	UpdatedAt    int64
}

type PointAward struct {
	ID           string
	EventID      sql.NullString
	UserID       string
	Delta        int64
	Reason       string
	ActivityType string
	BalanceAfter int64
	LevelAfter   int64
	AwardedAt    int64
	CreatedAt    int64
}

type Streak struct {
	ID              string
	UserID          string
	ActivityType    string
	ConsecutiveDays int64
	LongestStreak   int64
	LastActivity    int64
	Version         int64
	CreatedAt       int64
	UpdatedAt       int64
}

type StreakReward struct {
	StreakID   string
	Day        int64
	Reward     string
	ReceivedAt int64
}

type Companion struct {
	ID                 string
	UserID             string
	Type               string
	Name               string
	Level              int64
	Experience         int64
	CurrentEvolution   int64
	NextEvolutionLevel int64
	Version            int64
	CreatedAt          int64
	UpdatedAt          int64
}

type RankingBucket struct {
	RankingType string
	PeriodStart int64
	Department  string
	PeriodEnd   int64
	Version     int64
	EntryCount  int64
	ComputedAt  int64
}

type RankingEntry struct {
	RankingType     string
	PeriodStart     int64
	Department      string
	Version         int64
	UserID          string
	Points          int64
	Position        int64
	FirstActivityAt int64
}
