package timeline

import (
	"context"
	"sort"
	"time"

	"github.com/PabloGalante/v2-coach/internal/domain"
	"github.com/PabloGalante/v2-coach/internal/observability"
)

// TaskSource is satisfied by *tasks.Store.
type TaskSource interface {
	List() []domain.Task
}

// Day groups the timeline entries that fall on one calendar day.
type Day struct {
	Date  string        `json:"date"`
	Today bool          `json:"today"`
	Tasks []domain.Task `json:"tasks"`
}

// Service holds the logic of reading the achievement timeline
type Service struct {
	src TaskSource
	now func() time.Time
	loc *time.Location
}

// NewService creates a timeline service over the user's tasks
func NewService(src TaskSource, now func() time.Time, loc *time.Location) *Service {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{src: src, now: now, loc: loc}
}

// GetTimeline returns the last `limit` days carrying completed tasks or
// habits, newest day first. If limit <= 0 every day is returned.
func (s *Service) GetTimeline(ctx context.Context, limit int) []Day {
	days := Group(s.src.List(), s.now(), s.loc)
	if limit > 0 && len(days) > limit {
		days = days[:limit]
	}

	observability.LoggerFromContext(ctx).Debug("timeline built", "days", len(days))
	return days
}

// Group keeps completed tasks with a completion time and all habits,
// buckets them by the day of their relevant time and orders newest
// first on both levels.
func Group(tasks []domain.Task, now time.Time, loc *time.Location) []Day {
	entries := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if (t.Completed && t.CompletedAt != nil) || t.IsHabit {
			entries = append(entries, t)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].RelevantTime().After(entries[j].RelevantTime())
	})

	today := domain.DayOf(now, loc)
	var out []Day
	index := map[domain.Day]int{}
	for _, t := range entries {
		d := domain.DayOf(t.RelevantTime(), loc)
		i, ok := index[d]
		if !ok {
			i = len(out)
			index[d] = i
			out = append(out, Day{Date: d.String(), Today: d == today})
		}
		out[i].Tasks = append(out[i].Tasks, t)
	}
	if out == nil {
		out = []Day{}
	}
	return out
}
