// Package sqlite is an embedded, file-backed TaskRepository.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PabloGalante/v2-coach/internal/domain"
)

const timeLayout = time.RFC3339Nano

type Store struct {
	db *sql.DB
}

func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; also keeps :memory: on a single connection
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS tasks (
  user_id TEXT NOT NULL,
  id TEXT NOT NULL,
  position INTEGER NOT NULL,
  title TEXT NOT NULL,
  priority TEXT NOT NULL,
  category TEXT NOT NULL,
  type TEXT NOT NULL,
  completed INTEGER NOT NULL,
  created_at TEXT NOT NULL,
  completed_at TEXT,
  is_habit INTEGER NOT NULL,
  victory_reflection TEXT NOT NULL DEFAULT '',
  period TEXT NOT NULL DEFAULT '{}',
  PRIMARY KEY (user_id, id)
);
CREATE TABLE IF NOT EXISTS completions (
  user_id TEXT NOT NULL,
  seq INTEGER NOT NULL,
  task_id TEXT NOT NULL,
  completed_at TEXT NOT NULL,
  PRIMARY KEY (user_id, seq)
);
CREATE TABLE IF NOT EXISTS streaks (
  user_id TEXT PRIMARY KEY,
  longest INTEGER NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, userID domain.UserID) (domain.Snapshot, error) {
	var out domain.Snapshot

	rows, err := s.db.QueryContext(ctx, `
SELECT id, title, priority, category, type, completed, created_at, completed_at, is_habit, victory_reflection, period
FROM tasks WHERE user_id = ? ORDER BY position`, string(userID))
	if err != nil {
		return out, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t           domain.Task
			createdAt   string
			completedAt sql.NullString
			period      string
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.Priority, &t.Category, &t.Type, &t.Completed,
			&createdAt, &completedAt, &t.IsHabit, &t.VictoryReflection, &period); err != nil {
			return domain.Snapshot{}, fmt.Errorf("scan task: %w", err)
		}
		if t.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return domain.Snapshot{}, fmt.Errorf("parse created_at of %s: %w", t.ID, err)
		}
		if completedAt.Valid {
			ts, err := time.Parse(timeLayout, completedAt.String)
			if err != nil {
				return domain.Snapshot{}, fmt.Errorf("parse completed_at of %s: %w", t.ID, err)
			}
			t.CompletedAt = &ts
		}
		if err := json.Unmarshal([]byte(period), &t.Period); err != nil {
			return domain.Snapshot{}, fmt.Errorf("decode period of %s: %w", t.ID, err)
		}
		out.Tasks = append(out.Tasks, t)
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("iterate tasks: %w", err)
	}

	crow, err := s.db.QueryContext(ctx, `
SELECT task_id, completed_at FROM completions WHERE user_id = ? ORDER BY seq`, string(userID))
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("query completions: %w", err)
	}
	defer crow.Close()

	for crow.Next() {
		var (
			rec domain.CompletionRecord
			at  string
		)
		if err := crow.Scan(&rec.TaskID, &at); err != nil {
			return domain.Snapshot{}, fmt.Errorf("scan completion: %w", err)
		}
		if rec.CompletedAt, err = time.Parse(timeLayout, at); err != nil {
			return domain.Snapshot{}, fmt.Errorf("parse completion time: %w", err)
		}
		out.Completions = append(out.Completions, rec)
	}
	if err := crow.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("iterate completions: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT longest FROM streaks WHERE user_id = ?`, string(userID)).Scan(&out.LongestStreak)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, fmt.Errorf("query streak: %w", err)
	}
	return out, nil
}

// Save replaces every row of the user in one transaction.
func (s *Store) Save(ctx context.Context, userID domain.UserID, snap domain.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	uid := string(userID)
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ?`, uid); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM completions WHERE user_id = ?`, uid); err != nil {
		return fmt.Errorf("clear completions: %w", err)
	}

	const insertTask = `
INSERT INTO tasks (user_id, id, position, title, priority, category, type, completed, created_at, completed_at, is_habit, victory_reflection, period)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for i, t := range snap.Tasks {
		period, err := json.Marshal(t.Period)
		if err != nil {
			return fmt.Errorf("encode period of %s: %w", t.ID, err)
		}
		var completedAt any
		if t.CompletedAt != nil {
			completedAt = t.CompletedAt.UTC().Format(timeLayout)
		}
		if _, err := tx.ExecContext(ctx, insertTask,
			uid, string(t.ID), i, t.Title, string(t.Priority), string(t.Category), string(t.Type),
			t.Completed, t.CreatedAt.UTC().Format(timeLayout), completedAt, t.IsHabit,
			t.VictoryReflection, string(period),
		); err != nil {
			return fmt.Errorf("insert task %s: %w", t.ID, err)
		}
	}

	for i, c := range snap.Completions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO completions (user_id, seq, task_id, completed_at) VALUES (?, ?, ?, ?)`,
			uid, i, string(c.TaskID), c.CompletedAt.UTC().Format(timeLayout),
		); err != nil {
			return fmt.Errorf("insert completion: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO streaks (user_id, longest) VALUES (?, ?)
ON CONFLICT (user_id) DO UPDATE SET longest = excluded.longest`, uid, snap.LongestStreak); err != nil {
		return fmt.Errorf("save streak: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
