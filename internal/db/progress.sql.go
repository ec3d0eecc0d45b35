package db

import (
	"context"
)

const getUserProgress = `
SELECT user_id, department, total_points, current_level, version, created_at, updated_at
FROM user_progress
WHERE user_id = ?
`

func (q *Queries) GetUserProgress(ctx context.Context, userID string) (UserProgress, error) {
	row := q.db.QueryRowContext(ctx, getUserProgress, userID)
	var i UserProgress
	err := row.Scan(
		&i.UserID,
		&i.Department,
		&i.TotalPoints,
		&i.CurrentLevel,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const insertUserProgress = `
INSERT INTO user_progress (user_id, department, total_points, current_level, version, created_at, updated_at)
VALUES (?, ?, ?, ?, 0, ?, ?)
ON CONFLICT (user_id) DO NOTHING
`

type InsertUserProgressParams struct {
	UserID       string
	Department   string
	TotalPoints  int64
	CurrentLevel int64
	CreatedAt    int64
	UpdatedAt    int64
}

// InsertUserProgress reports whether a row was created.
func (q *Queries) InsertUserProgress(ctx context.Context, arg InsertUserProgressParams) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertUserProgress,
		arg.UserID,
		arg.Department,
		arg.TotalPoints,
		arg.CurrentLevel,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

const updateUserProgressPoints = `
UPDATE user_progress
SET total_points = ?, current_level = ?, version = version + 1, updated_at = ?
WHERE user_id = ? AND version = ?
`

type UpdateUserProgressPointsParams struct {
	TotalPoints  int64
	CurrentLevel int64
	UpdatedAt    int64
	UserID       string
	Version      int64
}

func (q *Queries) UpdateUserProgressPoints(ctx context.Context, arg UpdateUserProgressPointsParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateUserProgressPoints,
		arg.TotalPoints,
		arg.CurrentLevel,
		arg.UpdatedAt,
		arg.UserID,
		arg.Version,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const updateUserDepartment = `
UPDATE user_progress
SET department = ?, updated_at = ?
WHERE user_id = ?
`

type UpdateUserDepartmentParams struct {
	Department string
	UpdatedAt  int64
	UserID     string
}

func (q *Queries) UpdateUserDepartment(ctx context.Context, arg UpdateUserDepartmentParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateUserDepartment, arg.Department, arg.UpdatedAt, arg.UserID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listDepartments = `
SELECT DISTINCT department
FROM user_progress
WHERE department != ''
ORDER BY department
`

func (q *Queries) ListDepartments(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listDepartments)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var department string
		if err := rows.Scan(&department); err != nil {
			return nil, err
		}
		items = append(items, department)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
