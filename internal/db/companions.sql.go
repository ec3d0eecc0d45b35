package db

import (
	"context"
)

const getCompanionByUser = `
SELECT id, user_id, type, name, level, experience, current_evolution, next_evolution_level, version, created_at, updated_at
FROM companions
WHERE user_id = ?
`

func (q *Queries) GetCompanionByUser(ctx context.Context, userID string) (Companion, error) {
	row := q.db.QueryRowContext(ctx, getCompanionByUser, userID)
	var i Companion
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Type,
		&i.Name,
		&i.Level,
		&i.Experience,
		&i.CurrentEvolution,
		&i.NextEvolutionLevel,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const insertCompanion = `
INSERT INTO companions (id, user_id, type, name, level, experience, current_evolution, next_evolution_level, version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
`

type InsertCompanionParams struct {
	ID                 string
	UserID             string
	Type               string
	Name               string
	Level              int64
	Experience         int64
	CurrentEvolution   int64
	NextEvolutionLevel int64
	CreatedAt          int64
	UpdatedAt          int64
}

func (q *Queries) InsertCompanion(ctx context.Context, arg InsertCompanionParams) error {
	_, err := q.db.ExecContext(ctx, insertCompanion,
		arg.ID,
		arg.UserID,
		arg.Type,
		arg.Name,
		arg.Level,
		arg.Experience,
		arg.CurrentEvolution,
		arg.NextEvolutionLevel,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const updateCompanionProgress = `
UPDATE companions
SET level = ?, experience = ?, current_evolution = ?, next_evolution_level = ?, version = version + 1, updated_at = ?
WHERE id = ? AND version = ?
`

type UpdateCompanionProgressParams struct {
	Level              int64
	Experience         int64
	CurrentEvolution   int64
	NextEvolutionLevel int64
	UpdatedAt          int64
	ID                 string
	Version            int64
}

func (q *Queries) UpdateCompanionProgress(ctx context.Context, arg UpdateCompanionProgressParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateCompanionProgress,
		arg.Level,
		arg.Experience,
		arg.CurrentEvolution,
		arg.NextEvolutionLevel,
		arg.UpdatedAt,
		arg.ID,
		arg.Version,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
