package db

import (
	"context"
)

const streakColumns = `id, user_id, activity_type, consecutive_days, longest_streak, last_activity, version, created_at, updated_at`

func scanStreak(scanner interface{ Scan(...any) error }) (Streak, error) {
	var i Streak
	err := scanner.Scan(
		&i.ID,
		&i.UserID,
		&i.ActivityType,
		&i.ConsecutiveDays,
		&i.LongestStreak,
		&i.LastActivity,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getStreak = `SELECT ` + streakColumns + ` FROM streaks WHERE user_id = ? AND activity_type = ?`

type GetStreakParams struct {
	UserID       string
	ActivityType string
}

func (q *Queries) GetStreak(ctx context.Context, arg GetStreakParams) (Streak, error) {
	return scanStreak(q.db.QueryRowContext(ctx, getStreak, arg.UserID, arg.ActivityType))
}

const listStreaksByUser = `SELECT ` + streakColumns + ` FROM streaks WHERE user_id = ? ORDER BY activity_type`

func (q *Queries) ListStreaksByUser(ctx context.Context, userID string) ([]Streak, error) {
	rows, err := q.db.QueryContext(ctx, listStreaksByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Streak
	for rows.Next() {
		i, err := scanStreak(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertStreak = `
INSERT INTO streaks (id, user_id, activity_type, consecutive_days, longest_streak, last_activity, version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
`

type InsertStreakParams struct {
	ID              string
	UserID          string
	ActivityType    string
	ConsecutiveDays int64
	LongestStreak   int64
	LastActivity    int64
	CreatedAt       int64
	UpdatedAt       int64
}

func (q *Queries) InsertStreak(ctx context.Context, arg InsertStreakParams) error {
	_, err := q.db.ExecContext(ctx, insertStreak,
		arg.ID,
		arg.UserID,
		arg.ActivityType,
		arg.ConsecutiveDays,
		arg.LongestStreak,
		arg.LastActivity,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const updateStreak = `
UPDATE streaks
SET consecutive_days = ?, longest_streak = ?, last_activity = ?, version = version + 1, updated_at = ?
WHERE id = ? AND version = ?
`

type UpdateStreakParams struct {
	ConsecutiveDays int64
	LongestStreak   int64
	LastActivity    int64
	UpdatedAt       int64
	ID              string
	Version         int64
}

func (q *Queries) UpdateStreak(ctx context.Context, arg UpdateStreakParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateStreak,
		arg.ConsecutiveDays,
		arg.LongestStreak,
		arg.LastActivity,
		arg.UpdatedAt,
		arg.ID,
		arg.Version,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listStreakRewards = `
SELECT streak_id, day, reward, received_at
FROM streak_rewards
WHERE streak_id = ?
ORDER BY day
`

func (q *Queries) ListStreakRewards(ctx context.Context, streakID string) ([]StreakReward, error) {
	rows, err := q.db.QueryContext(ctx, listStreakRewards, streakID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StreakReward
	for rows.Next() {
		var i StreakReward
		if err := rows.Scan(&i.StreakID, &i.Day, &i.Reward, &i.ReceivedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertStreakReward = `
INSERT INTO streak_rewards (streak_id, day, reward, received_at)
VALUES (?, ?, ?, ?)
`

type InsertStreakRewardParams struct {
	StreakID   string
	Day        int64
	Reward     string
	ReceivedAt int64
}

func (q *Queries) InsertStreakReward(ctx context.Context, arg InsertStreakRewardParams) error {
	_, err := q.db.ExecContext(ctx, insertStreakReward, arg.StreakID, arg.Day, arg.Reward, arg.ReceivedAt)
	return err
}
