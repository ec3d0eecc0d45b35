package server

import (
	"time"

	"engagement-engine/internal/domain"
)

type Progress struct {
	UserID          string    `json:"user_id"`
	Department      string    `json:"department,omitempty"`
	TotalPoints     int       `json:"total_points"`
	CurrentLevel    int       `json:"current_level"`
	LevelName       string    `json:"level_name,omitempty"`
	NextLevelPoints int       `json:"next_level_points,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type RegisterUserRequest struct {
	UserID     string `json:"user_id"`
	Department string `json:"department,omitempty"`
}

type GetProgressRequest struct {
	UserID string `json:"user_id"`
}

type ProgressResponse struct {
	Progress Progress `json:"progress"`
}

type SubmitEventRequest struct {
	EventID             string    `json:"event_id,omitempty"`
	UserID              string    `json:"user_id"`
	PointDelta          int       `json:"point_delta"`
	ActivityType        string    `json:"activity_type"`
	Reason              string    `json:"reason,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
	CompanionExperience *int      `json:"companion_experience,omitempty"`
}

type StreakResult struct {
	Streak     Streak                 `json:"streak"`
	Transition string                 `json:"transition"`
	Milestones []domain.RewardReceipt `json:"milestones,omitempty"`
}

type EvolutionResult struct {
	Companion     Companion          `json:"companion"`
	PreviousLevel int                `json:"previous_level"`
	Unlocked      bool               `json:"unlocked,omitempty"`
	Evolutions    []domain.Evolution `json:"evolutions,omitempty"`
}

type SubmitEventResponse struct {
	EventID         string                `json:"event_id,omitempty"`
	UserID          string                `json:"user_id"`
	NewTotalPoints  int                   `json:"new_total_points"`
	NewLevel        int                   `json:"new_level"`
	PreviousLevel   int                   `json:"previous_level"`
	LeveledUp       bool                  `json:"leveled_up"`
	Duplicate       bool                  `json:"duplicate,omitempty"`
	StreakResult    *StreakResult         `json:"streak_result,omitempty"`
	StreakError     string                `json:"streak_error,omitempty"`
	EvolutionResult *EvolutionResult      `json:"evolution_result,omitempty"`
	CompanionError  string                `json:"companion_error,omitempty"`
	PartialFailure  bool                  `json:"partial_failure,omitempty"`
	Notifications   []domain.Notification `json:"notifications,omitempty"`
}

type GetHistoryRequest struct {
	UserID string `json:"user_id"`
	Limit  int    `json:"limit,omitempty"`
}

type PointAward struct {
	ID           string    `json:"id"`
	EventID      string    `json:"event_id,omitempty"`
	Delta        int       `json:"delta"`
	Reason       string    `json:"reason,omitempty"`
	ActivityType string    `json:"activity_type,omitempty"`
	BalanceAfter int       `json:"balance_after"`
	LevelAfter   int       `json:"level_after"`
	AwardedAt    time.Time `json:"awarded_at"`
}

type GetHistoryResponse struct {
	Awards []PointAward `json:"awards"`
}

type Streak struct {
	ActivityType    string                 `json:"activity_type"`
	ConsecutiveDays int                    `json:"consecutive_days"`
	LongestStreak   int                    `json:"longest_streak"`
	LastActivity    time.Time              `json:"last_activity"`
	RewardsReceived []domain.RewardReceipt `json:"rewards_received,omitempty"`
}

type GetStreaksRequest struct {
	UserID string `json:"user_id"`
}

type GetStreaksResponse struct {
	Streaks []Streak `json:"streaks"`
}

type Companion struct {
	Type               string `json:"type"`
	Name               string `json:"name"`
	Level              int    `json:"level"`
	Experience         int    `json:"experience"`
	CurrentEvolution   int    `json:"current_evolution"`
	NextEvolutionLevel int    `json:"next_evolution_level"`
}

type GetCompanionRequest struct {
	UserID string `json:"user_id"`
}

type UnlockCompanionRequest struct {
	UserID string `json:"user_id"`
	Type   string `json:"type"`
	Name   string `json:"name"`
}

type CompanionResponse struct {
	Companion Companion `json:"companion"`
}

type GetRankingRequest struct {
	Type       string    `json:"type"`
	At         time.Time `json:"at,omitempty"` // any instant inside the period; zero means now
	Department string    `json:"department,omitempty"`
	Limit      int       `json:"limit,omitempty"`
}

type GetRankingResponse struct {
	Type        string                `json:"type"`
	PeriodStart time.Time             `json:"period_start"`
	PeriodEnd   time.Time             `json:"period_end"`
	Department  string                `json:"department,omitempty"`
	Entries     []domain.RankingEntry `json:"entries"`
}

type GetUserRankRequest struct {
	Type       string    `json:"type"`
	At         time.Time `json:"at,omitempty"`
	Department string    `json:"department,omitempty"`
	UserID     string    `json:"user_id"`
}

type GetUserRankResponse struct {
	Entry      domain.RankingEntry `json:"entry"`
	TotalUsers int                 `json:"total_users"`
}

type ListLevelsRequest struct{}

type Level struct {
	Level          int      `json:"level"`
	PointsRequired int      `json:"points_required"`
	Name           string   `json:"name"`
	Color          string   `json:"color,omitempty"`
	Benefits       []string `json:"benefits,omitempty"`
}

type ListLevelsResponse struct {
	Levels []Level `json:"levels"`
}

type CorrectPointsRequest struct {
	UserID string `json:"user_id"`
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

type CorrectPointsResponse struct {
	Progress      Progress `json:"progress"`
	PreviousLevel int      `json:"previous_level"`
}

type SetDepartmentRequest struct {
	UserID     string `json:"user_id"`
	Department string `json:"department"`
}

type SetDepartmentResponse struct{}

type PeriodRequest struct {
	Type       string    `json:"type"`
	At         time.Time `json:"at"`
	Department string    `json:"department,omitempty"`
}

type PeriodResponse struct {
	Entries []domain.RankingEntry `json:"entries"`
}
