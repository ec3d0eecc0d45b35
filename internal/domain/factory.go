package domain

import (
	"strings"
	"time"
)

func NewLevelDefinition(level, pointsRequired int, name, color string, benefits []string) (LevelDefinition, error) {
	if level < 1 {
		return LevelDefinition{}, NewValidationError("level", "must be at least 1")
	}
	if pointsRequired < 0 {
		return LevelDefinition{}, NewValidationError("points_required", "must not be negative")
	}
	if strings.TrimSpace(name) == "" {
		return LevelDefinition{}, NewValidationError("name", "required")
	}
	return LevelDefinition{
		Level:          level,
		PointsRequired: pointsRequired,
		Name:           name,
		Color:          color,
		Benefits:       append([]string(nil), benefits...),
	}, nil
}

// NewUserProgress registers a user at zero points on the given starting level.
func NewUserProgress(userID, department string, startLevel int, now time.Time) (UserProgress, error) {
	if strings.TrimSpace(userID) == "" {
		return UserProgress{}, NewValidationError("user_id", "required")
	}
	if startLevel < 1 {
		startLevel = 1
	}
	return UserProgress{
		UserID:       userID,
		Department:   strings.TrimSpace(department),
		CurrentLevel: startLevel,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NewStreak is the lazily created row for a first qualifying activity.
func NewStreak(id, userID, activityType string, at time.Time) (Streak, error) {
	if strings.TrimSpace(userID) == "" {
		return Streak{}, NewValidationError("user_id", "required")
	}
	if strings.TrimSpace(activityType) == "" {
		return Streak{}, NewValidationError("activity_type", "required")
	}
	if at.IsZero() {
		return Streak{}, NewValidationError("timestamp", "required")
	}
	return Streak{
		ID:              id,
		UserID:          userID,
		ActivityType:    activityType,
		ConsecutiveDays: 1,
		LongestStreak:   1,
		LastActivity:    at,
		CreatedAt:       at,
		UpdatedAt:       at,
	}, nil
}

func NewCompanion(id, userID, kind, name string, nextEvolutionLevel int, now time.Time) (Companion, error) {
	if strings.TrimSpace(userID) == "" {
		return Companion{}, NewValidationError("user_id", "required")
	}
	if strings.TrimSpace(kind) == "" {
		return Companion{}, NewValidationError("type", "required")
	}
	if strings.TrimSpace(name) == "" {
		return Companion{}, NewValidationError("name", "required")
	}
	if nextEvolutionLevel < 2 {
		return Companion{}, NewValidationError("next_evolution_level", "must be above the starting level")
	}
	return Companion{
		ID:                 id,
		UserID:             userID,
		Type:               kind,
		Name:               name,
		Level:              1,
		NextEvolutionLevel: nextEvolutionLevel,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}
