package db

import (
	"context"
)

const getRankingBucket = `
SELECT ranking_type, period_start, department, period_end, version, entry_count, computed_at
FROM ranking_buckets
WHERE ranking_type = ? AND period_start = ? AND department = ?
`

type GetRankingBucketParams struct {
	RankingType string
	PeriodStart int64
	Department  string
}

func (q *Queries) GetRankingBucket(ctx context.Context, arg GetRankingBucketParams) (RankingBucket, error) {
	row := q.db.QueryRowContext(ctx, getRankingBucket, arg.RankingType, arg.PeriodStart, arg.Department)
	var i RankingBucket
	err := row.Scan(
		&i.RankingType,
		&i.PeriodStart,
		&i.Department,
		&i.PeriodEnd,
		&i.Version,
		&i.EntryCount,
		&i.ComputedAt,
	)
	return i, err
}

const upsertRankingBucket = `
INSERT INTO ranking_buckets (ranking_type, period_start, department, period_end, version, entry_count, computed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (ranking_type, period_start, department) DO UPDATE SET
    period_end = excluded.period_end,
    version = excluded.version,
    entry_count = excluded.entry_count,
    computed_at = excluded.computed_at
`

func (q *Queries) UpsertRankingBucket(ctx context.Context, arg RankingBucket) error {
	_, err := q.db.ExecContext(ctx, upsertRankingBucket,
		arg.RankingType,
		arg.PeriodStart,
		arg.Department,
		arg.PeriodEnd,
		arg.Version,
		arg.EntryCount,
		arg.ComputedAt,
	)
	return err
}

const insertRankingEntry = `
INSERT INTO ranking_entries (ranking_type, period_start, department, version, user_id, points, position, first_activity_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertRankingEntry(ctx context.Context, arg RankingEntry) error {
	_, err := q.db.ExecContext(ctx, insertRankingEntry,
		arg.RankingType,
		arg.PeriodStart,
		arg.Department,
		arg.Version,
		arg.UserID,
		arg.Points,
		arg.Position,
		arg.FirstActivityAt,
	)
	return err
}

const deleteStaleRankingEntries = `
DELETE FROM ranking_entries
WHERE ranking_type = ? AND period_start = ? AND department = ? AND version < ?
`

type DeleteStaleRankingEntriesParams struct {
	RankingType string
	PeriodStart int64
	Department  string
	Version     int64
}

func (q *Queries) DeleteStaleRankingEntries(ctx context.Context, arg DeleteStaleRankingEntriesParams) error {
	_, err := q.db.ExecContext(ctx, deleteStaleRankingEntries, arg.RankingType, arg.PeriodStart, arg.Department, arg.Version)
	return err
}

const rankingEntryColumns = `e.ranking_type, e.period_start, e.department, e.version, e.user_id, e.points, e.position, e.first_activity_at`

func scanRankingEntry(scanner interface{ Scan(...any) error }) (RankingEntry, error) {
	var i RankingEntry
	err := scanner.Scan(
		&i.RankingType,
		&i.PeriodStart,
		&i.Department,
		&i.Version,
		&i.UserID,
		&i.Points,
		&i.Position,
		&i.FirstActivityAt,
	)
	return i, err
}

// Joining on the bucket pointer makes a read see exactly one version.
const listCurrentRankingEntries = `SELECT ` + rankingEntryColumns + `
FROM ranking_entries e
JOIN ranking_buckets b
  ON b.ranking_type = e.ranking_type
 AND b.period_start = e.period_start
 AND b.department = e.department
 AND b.version = e.version
WHERE e.ranking_type = ? AND e.period_start = ? AND e.department = ?
ORDER BY e.position
LIMIT ?
`

type ListCurrentRankingEntriesParams struct {
	RankingType string
	PeriodStart int64
	Department  string
	Limit       int64
}

func (q *Queries) ListCurrentRankingEntries(ctx context.Context, arg ListCurrentRankingEntriesParams) ([]RankingEntry, error) {
	rows, err := q.db.QueryContext(ctx, listCurrentRankingEntries, arg.RankingType, arg.PeriodStart, arg.Department, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RankingEntry
	for rows.Next() {
		i, err := scanRankingEntry(rows)
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

const getCurrentRankingEntryForUser = `SELECT ` + rankingEntryColumns + `, b.entry_count
FROM ranking_entries e
JOIN ranking_buckets b
  ON b.ranking_type = e.ranking_type
 AND b.period_start = e.period_start
 AND b.department = e.department
 AND b.version = e.version
WHERE e.ranking_type = ? AND e.period_start = ? AND e.department = ? AND e.user_id = ?
`

type GetCurrentRankingEntryForUserParams struct {
	RankingType string
	PeriodStart int64
	Department  string
	UserID      string
}

type GetCurrentRankingEntryForUserRow struct {
	RankingEntry
	EntryCount int64
}

func (q *Queries) GetCurrentRankingEntryForUser(ctx context.Context, arg GetCurrentRankingEntryForUserParams) (GetCurrentRankingEntryForUserRow, error) {
	row := q.db.QueryRowContext(ctx, getCurrentRankingEntryForUser, arg.RankingType, arg.PeriodStart, arg.Department, arg.UserID)
	var i GetCurrentRankingEntryForUserRow
	err := row.Scan(
		&i.RankingType,
		&i.PeriodStart,
		&i.Department,
		&i.Version,
		&i.UserID,
		&i.Points,
		&i.Position,
		&i.FirstActivityAt,
		&i.EntryCount,
	)
	return i, err
}

const insertRankingCloseout = `
INSERT INTO ranking_closeouts (ranking_type, period_start, department, closed_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (ranking_type, period_start, department) DO NOTHING
`

type InsertRankingCloseoutParams struct {
	RankingType string
	PeriodStart int64
	Department  string
	ClosedAt    int64
}

// InsertRankingCloseout reports whether this call recorded the close-out.
func (q *Queries) InsertRankingCloseout(ctx context.Context, arg InsertRankingCloseoutParams) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertRankingCloseout, arg.RankingType, arg.PeriodStart, arg.Department, arg.ClosedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

const countRankingCloseout = `
SELECT COUNT(*)
FROM ranking_closeouts
WHERE ranking_type = ? AND period_start = ? AND department = ?
`

type CountRankingCloseoutParams struct {
	RankingType string
	PeriodStart int64
	Department  string
}

func (q *Queries) CountRankingCloseout(ctx context.Context, arg CountRankingCloseoutParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countRankingCloseout, arg.RankingType, arg.PeriodStart, arg.Department)
	var count int64
	err := row.Scan(&count)
	return count, err
}
