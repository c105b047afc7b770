// Package tasks holds a user's goals and habits together with the
// history of their completions.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/v2-coach/internal/app/progress"
	"github.com/PabloGalante/v2-coach/internal/domain"
	"github.com/PabloGalante/v2-coach/internal/observability"
)

// Options configures a Store. Zero values fall back to time.Now, UTC,
// no persistence and UUIDv7 ids.
type Options struct {
	Now        func() time.Time
	Location   *time.Location
	Repository domain.TaskRepository
	NewID      func() domain.TaskID
}

// Store is the authoritative task list of one user. Every mutation is
// applied to a copy, persisted, and only then made visible, so a failed
// mutation leaves no trace.
type Store struct {
	mu     sync.RWMutex
	userID domain.UserID
	snap   domain.Snapshot

	repo  domain.TaskRepository
	now   func() time.Time
	loc   *time.Location
	newID func() domain.TaskID
}

func NewStore(userID domain.UserID, opts Options) *Store {
	s := &Store{
		userID: userID,
		repo:   opts.Repository,
		now:    opts.Now,
		loc:    opts.Location,
		newID:  opts.NewID,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.newID == nil {
		s.newID = func() domain.TaskID {
			return domain.TaskID(uuid.Must(uuid.NewV7()).String())
		}
	}
	return s
}

// Load replaces the in-memory state with what the repository holds.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	snap, err := s.repo.Load(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("load tasks for %s: %w", s.userID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap.Clone()
	return nil
}

type AddInput struct {
	Title    string
	Priority domain.Priority
	Category domain.Category
	Type     domain.TaskType
	Period   domain.Period
	IsHabit  bool
}

// AddTask creates a pending task.
func (s *Store) AddTask(ctx context.Context, in AddInput) (domain.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Task{}, &domain.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if in.Priority == "" {
		in.Priority = domain.PriorityMedium
	}
	if !in.Priority.Valid() {
		return domain.Task{}, &domain.ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", in.Priority)}
	}
	if in.Category == "" {
		in.Category = domain.CategoryPersonal
	}
	if !in.Category.Valid() {
		return domain.Task{}, &domain.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", in.Category)}
	}
	if err := ValidatePeriod(in.Type, in.Period); err != nil {
		return domain.Task{}, err
	}

	task := domain.Task{
		ID:        s.newID(),
		Title:     title,
		Priority:  in.Priority,
		Category:  in.Category,
		Type:      in.Type,
		CreatedAt: s.now(),
		IsHabit:   in.IsHabit,
		Period:    in.Period,
	}
	task = task.Clone()

	err := s.mutate(ctx, func(next *domain.Snapshot) error {
		next.Tasks = append(next.Tasks, task)
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}

	observability.LoggerFromContext(ctx).Info("task added",
		"user_id", s.userID,
		"task_id", task.ID,
		"type", task.Type,
		"is_habit", task.IsHabit,
	)
	return task.Clone(), nil
}

// ToggleCompletion flips the completed flag. Completing stamps
// CompletedAt and records the event in the history. Un-completing clears
// CompletedAt and revokes the task's latest event if it happened today;
// earlier days are sealed.
func (s *Store) ToggleCompletion(ctx context.Context, id domain.TaskID) (domain.Task, error) {
	var out domain.Task

	err := s.mutate(ctx, func(next *domain.Snapshot) error {
		i := indexOf(next.Tasks, id)
		if i < 0 {
			return &domain.NotFoundError{Kind: "task", ID: string(id)}
		}
		t := &next.Tasks[i]
		now := s.now()

		if !t.Completed {
			t.Completed = true
			t.CompletedAt = &now
			next.Completions = append(next.Completions, domain.CompletionRecord{TaskID: id, CompletedAt: now})
		} else {
			t.Completed = false
			t.CompletedAt = nil
			t.VictoryReflection = ""
			next.Completions = s.revokeToday(next.Completions, id, now)
		}
		out = t.Clone()
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}

	observability.LoggerFromContext(ctx).Info("task toggled",
		"user_id", s.userID,
		"task_id", id,
		"completed", out.Completed,
	)
	return out, nil
}

func (s *Store) revokeToday(history []domain.CompletionRecord, id domain.TaskID, now time.Time) []domain.CompletionRecord {
	today := domain.DayOf(now, s.loc)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].TaskID != id {
			continue
		}
		if domain.DayOf(history[i].CompletedAt, s.loc) != today {
			return history
		}
		return append(history[:i], history[i+1:]...)
	}
	return history
}

// EditInput carries optional changes; nil fields are left alone.
type EditInput struct {
	Title    *string
	Priority *domain.Priority
}

func (s *Store) EditTask(ctx context.Context, id domain.TaskID, in EditInput) (domain.Task, error) {
	var title string
	if in.Title != nil {
		title = strings.TrimSpace(*in.Title)
		if title == "" {
			return domain.Task{}, &domain.ValidationError{Field: "title", Reason: "must not be empty"}
		}
	}
	if in.Priority != nil && !in.Priority.Valid() {
		return domain.Task{}, &domain.ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", *in.Priority)}
	}

	var out domain.Task
	err := s.mutate(ctx, func(next *domain.Snapshot) error {
		i := indexOf(next.Tasks, id)
		if i < 0 {
			return &domain.NotFoundError{Kind: "task", ID: string(id)}
		}
		if in.Title != nil {
			next.Tasks[i].Title = title
		}
		if in.Priority != nil {
			next.Tasks[i].Priority = *in.Priority
		}
		out = next.Tasks[i].Clone()
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	return out, nil
}

func (s *Store) EditTitle(ctx context.Context, id domain.TaskID, newTitle string) (domain.Task, error) {
	return s.EditTask(ctx, id, EditInput{Title: &newTitle})
}

// RecordVictory stores what almost prevented a completed task.
func (s *Store) RecordVictory(ctx context.Context, id domain.TaskID, reflection string) (domain.Task, error) {
	var out domain.Task
	err := s.mutate(ctx, func(next *domain.Snapshot) error {
		i := indexOf(next.Tasks, id)
		if i < 0 {
			return &domain.NotFoundError{Kind: "task", ID: string(id)}
		}
		if !next.Tasks[i].Completed {
			return &domain.ValidationError{Field: "victory_reflection", Reason: "task is not completed"}
		}
		next.Tasks[i].VictoryReflection = strings.TrimSpace(reflection)
		out = next.Tasks[i].Clone()
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	return out, nil
}

// DeleteTask removes the task if present. The completion history is kept.
func (s *Store) DeleteTask(ctx context.Context, id domain.TaskID) error {
	removed := false
	err := s.mutate(ctx, func(next *domain.Snapshot) error {
		i := indexOf(next.Tasks, id)
		if i < 0 {
			return errNoChange
		}
		next.Tasks = append(next.Tasks[:i], next.Tasks[i+1:]...)
		removed = true
		return nil
	})
	if err != nil {
		return err
	}
	if removed {
		observability.LoggerFromContext(ctx).Info("task deleted", "user_id", s.userID, "task_id", id)
	}
	return nil
}

// ResetAll clears the tasks, the completion history and the longest
// streak together.
func (s *Store) ResetAll(ctx context.Context) error {
	err := s.mutate(ctx, func(next *domain.Snapshot) error {
		*next = domain.Snapshot{}
		return nil
	})
	if err != nil {
		return err
	}
	observability.LoggerFromContext(ctx).Info("tasks reset", "user_id", s.userID)
	return nil
}

func (s *Store) Get(id domain.TaskID) (domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := indexOf(s.snap.Tasks, id)
	if i < 0 {
		return domain.Task{}, &domain.NotFoundError{Kind: "task", ID: string(id)}
	}
	return s.snap.Tasks[i].Clone(), nil
}

// List returns every task in insertion order.
func (s *Store) List() []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Task, 0, len(s.snap.Tasks))
	for _, t := range s.snap.Tasks {
		out = append(out, t.Clone())
	}
	return out
}

// ListByType returns the tasks of one horizon in insertion order.
func (s *Store) ListByType(typ domain.TaskType) []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Task
	for _, t := range s.snap.Tasks {
		if t.Type == typ {
			out = append(out, t.Clone())
		}
	}
	return out
}

func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, t := range s.snap.Tasks {
		if !t.Completed {
			n++
		}
	}
	return n
}

// Snapshot returns a consistent copy of tasks and history.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

func (s *Store) Sections() []Section {
	return Partition(s.List())
}

// errNoChange aborts a mutation without an error reaching the caller.
var errNoChange = errors.New("no change")

func (s *Store) mutate(ctx context.Context, fn func(next *domain.Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap.Clone()
	if err := fn(&next); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	observed := progress.LongestStreak(progress.CompletionDays(next.Completions, s.loc))
	next.LongestStreak = max(next.LongestStreak, observed)

	if s.repo != nil {
		if err := s.repo.Save(ctx, s.userID, next); err != nil {
			observability.LoggerFromContext(ctx).Error("failed to save tasks", "user_id", s.userID, "error", err)
			return fmt.Errorf("save tasks for %s: %w", s.userID, err)
		}
	}

	s.snap = next
	return nil
}

func indexOf(tasks []domain.Task, id domain.TaskID) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
