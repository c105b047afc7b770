// Package postgres is a PostgreSQL-backed TaskRepository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PabloGalante/v2-coach/internal/domain"
)

// Store keeps tasks, completion history and the longest streak in tables
// keyed by user.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn and ensures the tables exist.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := NewStore(pool)
	if err := s.EnsureTable(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure tables: %w", err)
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// EnsureTable creates the tasks, completions and streaks tables if they
// don't exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS coach_tasks (
			user_id            TEXT NOT NULL,
			id                 TEXT NOT NULL,
			position           INTEGER NOT NULL,
			title              TEXT NOT NULL,
			priority           TEXT NOT NULL,
			category           TEXT NOT NULL,
			type               TEXT NOT NULL,
			completed          BOOLEAN NOT NULL DEFAULT FALSE,
			created_at         TIMESTAMPTZ NOT NULL,
			completed_at       TIMESTAMPTZ,
			is_habit           BOOLEAN NOT NULL DEFAULT FALSE,
			victory_reflection TEXT NOT NULL DEFAULT '',
			period             JSONB NOT NULL DEFAULT '{}',
			PRIMARY KEY (user_id, id)
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS coach_completions (
			user_id      TEXT NOT NULL,
			seq          INTEGER NOT NULL,
			task_id      TEXT NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, seq)
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS coach_streaks (
			user_id TEXT PRIMARY KEY,
			longest INTEGER NOT NULL
		)`)
	return err
}

func (s *Store) Load(ctx context.Context, userID domain.UserID) (domain.Snapshot, error) {
	var out domain.Snapshot

	rows, err := s.pool.Query(ctx, `
		SELECT id, title, priority, category, type, completed, created_at, completed_at, is_habit, victory_reflection, period
		FROM coach_tasks WHERE user_id = $1 ORDER BY position`, string(userID))
	if err != nil {
		return out, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, title, priority, category, typ string
			t                                  domain.Task
			periodJSON                         []byte
		)
		if err := rows.Scan(&id, &title, &priority, &category, &typ, &t.Completed,
			&t.CreatedAt, &t.CompletedAt, &t.IsHabit, &t.VictoryReflection, &periodJSON); err != nil {
			return domain.Snapshot{}, fmt.Errorf("scan task: %w", err)
		}
		t.ID = domain.TaskID(id)
		t.Title = title
		t.Priority = domain.Priority(priority)
		t.Category = domain.Category(category)
		t.Type = domain.TaskType(typ)
		if err := json.Unmarshal(periodJSON, &t.Period); err != nil {
			return domain.Snapshot{}, fmt.Errorf("decode period of %s: %w", id, err)
		}
		out.Tasks = append(out.Tasks, t)
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("iterate tasks: %w", err)
	}

	crows, err := s.pool.Query(ctx, `
		SELECT task_id, completed_at FROM coach_completions WHERE user_id = $1 ORDER BY seq`, string(userID))
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("query completions: %w", err)
	}
	defer crows.Close()

	for crows.Next() {
		var (
			taskID string
			at     time.Time
		)
		if err := crows.Scan(&taskID, &at); err != nil {
			return domain.Snapshot{}, fmt.Errorf("scan completion: %w", err)
		}
		out.Completions = append(out.Completions, domain.CompletionRecord{TaskID: domain.TaskID(taskID), CompletedAt: at})
	}
	if err := crows.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("iterate completions: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT longest FROM coach_streaks WHERE user_id = $1`, string(userID)).Scan(&out.LongestStreak)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.Snapshot{}, fmt.Errorf("query streak: %w", err)
	}
	return out, nil
}

// Save replaces the user's rows in one transaction.
func (s *Store) Save(ctx context.Context, userID domain.UserID, snap domain.Snapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	uid := string(userID)
	if _, err := tx.Exec(ctx, `DELETE FROM coach_tasks WHERE user_id = $1`, uid); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM coach_completions WHERE user_id = $1`, uid); err != nil {
		return fmt.Errorf("clear completions: %w", err)
	}

	batch := &pgx.Batch{}
	for i, t := range snap.Tasks {
		period, err := json.Marshal(t.Period)
		if err != nil {
			return fmt.Errorf("encode period of %s: %w", t.ID, err)
		}
		batch.Queue(`
			INSERT INTO coach_tasks (user_id, id, position, title, priority, category, type, completed, created_at, completed_at, is_habit, victory_reflection, period)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb)`,
			uid, string(t.ID), i, t.Title, string(t.Priority), string(t.Category), string(t.Type),
			t.Completed, t.CreatedAt, t.CompletedAt, t.IsHabit, t.VictoryReflection, string(period))
	}
	for i, c := range snap.Completions {
		batch.Queue(`
			INSERT INTO coach_completions (user_id, seq, task_id, completed_at)
			VALUES ($1, $2, $3, $4)`,
			uid, i, string(c.TaskID), c.CompletedAt)
	}
	batch.Queue(`
		INSERT INTO coach_streaks (user_id, longest) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET longest = EXCLUDED.longest`,
		uid, snap.LongestStreak)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
