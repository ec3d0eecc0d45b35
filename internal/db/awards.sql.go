package db

import (
	"context"
	"database/sql"
)

const insertPointAward = `
INSERT INTO point_awards (id, event_id, user_id, delta, reason, activity_type, balance_after, level_after, awarded_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type InsertPointAwardParams struct {
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

func (q *Queries) InsertPointAward(ctx context.Context, arg InsertPointAwardParams) error {
	_, err := q.db.ExecContext(ctx, insertPointAward,
		arg.ID,
		arg.EventID,
		arg.UserID,
		arg.Delta,
		arg.Reason,
		arg.ActivityType,
		arg.BalanceAfter,
		arg.LevelAfter,
		arg.AwardedAt,
		arg.CreatedAt,
	)
	return err
}

const pointAwardColumns = `id, event_id, user_id, delta, reason, activity_type, balance_after, level_after, awarded_at, created_at`

func scanPointAward(scanner interface{ Scan(...any) error }) (PointAward, error) {
	var i PointAward
	err := scanner.Scan(
		&i.ID,
		&i.EventID,
		&i.UserID,
		&i.Delta,
		&i.Reason,
		&i.ActivityType,
		&i.BalanceAfter,
		&i.LevelAfter,
		&i.AwardedAt,
		&i.CreatedAt,
	)
	return i, err
}

const getPointAwardByEventID = `SELECT ` + pointAwardColumns + ` FROM point_awards WHERE event_id = ?`

func (q *Queries) GetPointAwardByEventID(ctx context.Context, eventID string) (PointAward, error) {
	return scanPointAward(q.db.QueryRowContext(ctx, getPointAwardByEventID, eventID))
}

const listPointAwardsByUser = `SELECT ` + pointAwardColumns + `
FROM point_awards
WHERE user_id = ?
ORDER BY awarded_at DESC, created_at DESC
LIMIT ?
`

type ListPointAwardsByUserParams struct {
	UserID string
	Limit  int64
}

func (q *Queries) ListPointAwardsByUser(ctx context.Context, arg ListPointAwardsByUserParams) ([]PointAward, error) {
	rows, err := q.db.QueryContext(ctx, listPointAwardsByUser, arg.UserID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PointAward
	for rows.Next() {
		i, err := scanPointAward(rows)
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

const sumPointAwardsInRange = `
SELECT pa.user_id, SUM(pa.delta) AS points, MIN(pa.awarded_at) AS first_activity_at
FROM point_awards pa
JOIN user_progress up ON up.user_id = pa.user_id
WHERE pa.awarded_at >= ? AND pa.awarded_at < ?
  AND (? = '' OR up.department = ?)
GROUP BY pa.user_id
`

type SumPointAwardsInRangeParams struct {
	Start      int64
	End        int64
	Department string
}

type SumPointAwardsInRangeRow struct {
	UserID          string
	Points          int64
	FirstActivityAt int64
}

func (q *Queries) SumPointAwardsInRange(ctx context.Context, arg SumPointAwardsInRangeParams) ([]SumPointAwardsInRangeRow, error) {
	rows, err := q.db.QueryContext(ctx, sumPointAwardsInRange, arg.Start, arg.End, arg.Department, arg.Department)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SumPointAwardsInRangeRow
	for rows.Next() {
		var i SumPointAwardsInRangeRow
		if err := rows.Scan(&i.UserID, &i.Points, &i.FirstActivityAt); err != nil {
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

const earliestPointAward = `SELECT MIN(awarded_at) FROM point_awards`

func (q *Queries) EarliestPointAward(ctx context.Context) (sql.NullInt64, error) {
	row := q.db.QueryRowContext(ctx, earliestPointAward)
	var awardedAt sql.NullInt64
	err := row.Scan(&awardedAt)
	return awardedAt, err
}
