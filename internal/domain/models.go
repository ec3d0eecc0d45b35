package domain

import (
	"time"
)

type LevelDefinition struct {
	Level          int
	PointsRequired int
	Name           string
	Color          string
	Benefits       []string
}

type UserProgress struct {
	UserID       string
	Department   string
	TotalPoints  int
	CurrentLevel int
	Version      int64 // optimistic concurrency token
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PointAward is one row of the point history. Ranking periods are summed from
// these rows, never from UserProgress.TotalPoints.
type PointAward struct {
	ID           string // nanoid
	EventID      string // empty when the submitter gave no idempotency key
	UserID       string
	Delta        int
	Reason       string
	ActivityType string
	BalanceAfter int
	LevelAfter   int
	AwardedAt    time.Time
	CreatedAt    time.Time
}

type RewardReceipt struct {
	Day        int       `json:"day"`
	Reward     string    `json:"reward"`
	ReceivedAt time.Time `json:"received_at"`
}

type Streak struct {
	ID              string
	UserID          string
	ActivityType    string
	ConsecutiveDays int
	LongestStreak   int
	LastActivity    time.Time
	RewardsReceived []RewardReceipt // ascending by Day
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s *Streak) HasReward(day int) bool {
	for _, r := range s.RewardsReceived {
		if r.Day == day {
			return true
		}
	}
	return false
}

type Companion struct {
	ID                 string
	UserID             string
	Type               string
	Name               string
	Level              int
	Experience         int
	CurrentEvolution   int
	NextEvolutionLevel int
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type RankingEntry struct {
	Type            RankingType `json:"type"`
	PeriodStart     time.Time   `json:"period_start"`
	PeriodEnd       time.Time   `json:"period_end"`
	Department      string      `json:"department,omitempty"`
	UserID          string      `json:"user_id"`
	Points          int         `json:"points"`
	Position        int         `json:"position"`
	FirstActivityAt time.Time   `json:"first_activity_at"`
}

// RankingBucket is the pointer row for one (type, periodStart, department)
// bucket; Version names the entry set readers should see.
type RankingBucket struct {
	Type        RankingType
	PeriodStart time.Time
	PeriodEnd   time.Time
	Department  string
	Version     int64
	EntryCount  int
	ComputedAt  time.Time
}

type UserRank struct {
	Entry      RankingEntry
	TotalUsers int
}
