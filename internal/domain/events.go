package domain

import (
	"strings"
	"time"

	"engagement-engine/internal/constants"
)

// ScoredEvent is what task, training and recognition collaborators submit.
type ScoredEvent struct {
	EventID      string // optional idempotency key
	UserID       string
	PointDelta   int
	ActivityType string
	Reason       string
	Timestamp    time.Time
	// optional; nil means the event carries no companion experience
	CompanionExperience *int
}

// Validate rejects malformed events. Negative deltas are reserved for
// administrative corrections, which do not travel as scored events.
func (e ScoredEvent) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return NewValidationError("user_id", "required")
	}
	if strings.TrimSpace(e.ActivityType) == "" {
		return NewValidationError("activity_type", "required")
	}
	if e.Timestamp.IsZero() {
		return NewValidationError("timestamp", "required")
	}
	if e.PointDelta < 0 {
		return NewValidationError("point_delta", "must not be negative")
	}
	if e.PointDelta > constants.MaxPointDelta {
		return NewValidationError("point_delta", "exceeds the per-event maximum")
	}
	if e.CompanionExperience != nil {
		if *e.CompanionExperience < 0 {
			return NewValidationError("companion_experience", "must not be negative")
		}
		if *e.CompanionExperience > constants.MaxCompanionExperience {
			return NewValidationError("companion_experience", "exceeds the per-event maximum")
		}
	}
	return nil
}

// ValidateAt is Validate plus a bound on how far in the future the event may
// be dated relative to now.
func (e ScoredEvent) ValidateAt(now time.Time) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.Timestamp.After(now.Add(constants.MaxEventClockSkew)) {
		return NewValidationError("timestamp", "is in the future")
	}
	return nil
}

type LedgerResult struct {
	Progress      UserProgress
	PreviousLevel int
	LeveledUp     bool
	// Duplicate is set when the event id was already applied; Progress is the
	// current state and nothing was written.
	Duplicate bool
	Award     *PointAward
}

type StreakTransition string

const (
	StreakStarted   StreakTransition = "started"
	StreakSameDay   StreakTransition = "same_day"
	StreakContinued StreakTransition = "continued"
	StreakReset     StreakTransition = "reset"
)

type StreakUpdateResult struct {
	Streak     Streak
	Transition StreakTransition
	Milestones []RewardReceipt // granted by this update only
}

type Evolution struct {
	Stage     int    `json:"stage"`
	StageName string `json:"stage_name,omitempty"`
	AtLevel   int    `json:"at_level"`
}

type CompanionUpdateResult struct {
	Companion     Companion
	PreviousLevel int
	Unlocked      bool        // created by this update
	Evolutions    []Evolution // one per stage crossed
}

type ProgressionOutcome struct {
	EventID        string
	UserID         string
	NewTotalPoints int
	NewLevel       int
	PreviousLevel  int
	LeveledUp      bool
	Duplicate      bool

	StreakResult *StreakUpdateResult
	StreakError  string

	EvolutionResult *CompanionUpdateResult
	CompanionError  string

	Notifications []Notification
}

// PartialFailure reports whether a sub-mechanic failed after points applied.
func (o *ProgressionOutcome) PartialFailure() bool {
	return o.StreakError != "" || o.CompanionError != ""
}

type NotificationKind string

const (
	NotifyLevelUp            NotificationKind = "level_up"
	NotifyStreakMilestone    NotificationKind = "streak_milestone"
	NotifyCompanionEvolution NotificationKind = "companion_evolution"
)

type Notification struct {
	ID         string           `json:"id"`
	Kind       NotificationKind `json:"kind"`
	UserID     string           `json:"user_id"`
	OccurredAt time.Time        `json:"occurred_at"`

	Level     int    `json:"level,omitempty"`
	LevelName string `json:"level_name,omitempty"`

	ActivityType string `json:"activity_type,omitempty"`
	StreakDay    int    `json:"streak_day,omitempty"`
	Reward       string `json:"reward,omitempty"`

	CompanionName  string `json:"companion_name,omitempty"`
	EvolutionStage int    `json:"evolution_stage,omitempty"`
	StageName      string `json:"stage_name,omitempty"`
}
