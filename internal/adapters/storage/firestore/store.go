package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/v2-coach/internal/domain"
)

// Store keeps one document per user with the completion history, the
// longest streak and a tasks subcollection ordered by position.
type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store for the given project.
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) userDoc(id domain.UserID) *firestore.DocumentRef {
	return s.client.Collection("users").Doc(string(id))
}

func (s *Store) tasksCol(id domain.UserID) *firestore.CollectionRef {
	return s.userDoc(id).Collection("tasks")
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type userDoc struct {
	Completions   []completionDoc `firestore:"completions"`
	LongestStreak int             `firestore:"longest_streak"`
	UpdatedAt     time.Time       `firestore:"updated_at"`
}

type completionDoc struct {
	TaskID      string    `firestore:"task_id"`
	CompletedAt time.Time `firestore:"completed_at"`
}

type taskDoc struct {
	Position          int        `firestore:"position"`
	Title             string     `firestore:"title"`
	Priority          string     `firestore:"priority"`
	Category          string     `firestore:"category"`
	Type              string     `firestore:"type"`
	Completed         bool       `firestore:"completed"`
	CreatedAt         time.Time  `firestore:"created_at"`
	CompletedAt       *time.Time `firestore:"completed_at"`
	IsHabit           bool       `firestore:"is_habit"`
	VictoryReflection string     `firestore:"victory_reflection"`

	TargetDate *time.Time `firestore:"target_date"`
	WeekStart  *time.Time `firestore:"week_start"`
	WeekEnd    *time.Time `firestore:"week_end"`
	MonthStart *time.Time `firestore:"month_start"`
	MonthEnd   *time.Time `firestore:"month_end"`
	YearStart  *time.Time `firestore:"year_start"`
	YearEnd    *time.Time `firestore:"year_end"`
}

func toTaskDoc(pos int, t domain.Task) taskDoc {
	return taskDoc{
		Position:          pos,
		Title:             t.Title,
		Priority:          string(t.Priority),
		Category:          string(t.Category),
		Type:              string(t.Type),
		Completed:         t.Completed,
		CreatedAt:         t.CreatedAt,
		CompletedAt:       t.CompletedAt,
		IsHabit:           t.IsHabit,
		VictoryReflection: t.VictoryReflection,
		TargetDate:        t.Period.TargetDate,
		WeekStart:         t.Period.WeekStart,
		WeekEnd:           t.Period.WeekEnd,
		MonthStart:        t.Period.MonthStart,
		MonthEnd:          t.Period.MonthEnd,
		YearStart:         t.Period.YearStart,
		YearEnd:           t.Period.YearEnd,
	}
}

func (d taskDoc) toDomain(id string) domain.Task {
	return domain.Task{
		ID:                domain.TaskID(id),
		Title:             d.Title,
		Priority:          domain.Priority(d.Priority),
		Category:          domain.Category(d.Category),
		Type:              domain.TaskType(d.Type),
		Completed:         d.Completed,
		CreatedAt:         d.CreatedAt,
		CompletedAt:       d.CompletedAt,
		IsHabit:           d.IsHabit,
		VictoryReflection: d.VictoryReflection,
		Period: domain.Period{
			TargetDate: d.TargetDate,
			WeekStart:  d.WeekStart,
			WeekEnd:    d.WeekEnd,
			MonthStart: d.MonthStart,
			MonthEnd:   d.MonthEnd,
			YearStart:  d.YearStart,
			YearEnd:    d.YearEnd,
		},
	}
}

// ─────────────────────────────────────────
// TaskRepository implementation
// ─────────────────────────────────────────

func (s *Store) Load(ctx context.Context, userID domain.UserID) (domain.Snapshot, error) {
	var out domain.Snapshot

	snap, err := s.userDoc(userID).Get(ctx)
	switch {
	case status.Code(err) == codes.NotFound:
		return out, nil
	case err != nil:
		return out, fmt.Errorf("firestore Load user: %w", err)
	}

	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return out, fmt.Errorf("firestore Load decode: %w", err)
	}
	out.LongestStreak = doc.LongestStreak
	for _, c := range doc.Completions {
		out.Completions = append(out.Completions, domain.CompletionRecord{
			TaskID:      domain.TaskID(c.TaskID),
			CompletedAt: c.CompletedAt,
		})
	}

	iter := s.tasksCol(userID).OrderBy("position", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	for {
		tsnap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return domain.Snapshot{}, fmt.Errorf("firestore Load tasks: %w", err)
		}

		var td taskDoc
		if err := tsnap.DataTo(&td); err != nil {
			return domain.Snapshot{}, fmt.Errorf("decode taskDoc: %w", err)
		}
		out.Tasks = append(out.Tasks, td.toDomain(tsnap.Ref.ID))
	}
	return out, nil
}

// Save replaces the stored snapshot in one transaction.
func (s *Store) Save(ctx context.Context, userID domain.UserID, snap domain.Snapshot) error {
	keep := make(map[string]bool, len(snap.Tasks))
	for _, t := range snap.Tasks {
		keep[string(t.ID)] = true
	}

	doc := userDoc{LongestStreak: snap.LongestStreak, UpdatedAt: time.Now().UTC()}
	for _, c := range snap.Completions {
		doc.Completions = append(doc.Completions, completionDoc{
			TaskID:      string(c.TaskID),
			CompletedAt: c.CompletedAt,
		})
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// reads first
		existing, err := tx.Documents(s.tasksCol(userID)).GetAll()
		if err != nil {
			return err
		}

		for _, e := range existing {
			if !keep[e.Ref.ID] {
				if err := tx.Delete(e.Ref); err != nil {
					return err
				}
			}
		}
		for i, t := range snap.Tasks {
			if err := tx.Set(s.tasksCol(userID).Doc(string(t.ID)), toTaskDoc(i, t)); err != nil {
				return err
			}
		}
		return tx.Set(s.userDoc(userID), doc)
	})
	if err != nil {
		return fmt.Errorf("firestore Save: %w", err)
	}
	return nil
}
