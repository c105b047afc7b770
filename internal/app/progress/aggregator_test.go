package progress_test

import (
	"context"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/PabloGalante/v2-coach/internal/app/progress"
	"github.com/PabloGalante/v2-coach/internal/app/tasks"
	"github.com/PabloGalante/v2-coach/internal/domain"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

const day = 24 * time.Hour

func setup(t *testing.T) (*tasks.Store, *progress.Aggregator, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	store := tasks.NewStore("test-user", tasks.Options{Now: clock.Now})
	return store, progress.NewAggregator(store, clock.Now, time.UTC), clock
}

func addAndComplete(t *testing.T, store *tasks.Store, clock *fakeClock, title string) domain.Task {
	t.Helper()
	ctx := context.Background()
	now := clock.Now()
	task, err := store.AddTask(ctx, tasks.AddInput{
		Title:    title,
		Priority: domain.PriorityHigh,
		Type:     domain.TypeDay,
		Period:   domain.Period{TargetDate: &now},
	})
	if err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	task, err = store.ToggleCompletion(ctx, task.ID)
	if err != nil {
		t.Fatalf("ToggleCompletion failed: %v", err)
	}
	return task
}

func TestEmptyStore(t *testing.T) {
	_, agg, _ := setup(t)
	p := agg.Progress()
	if p.DisciplineLevel != 0 || p.CurrentStreak != 0 || p.LongestStreak != 0 || p.TotalTasksCompleted != 0 {
		t.Fatalf("expected zero progress, got %+v", p)
	}
	if len(p.WeeklyStats) != progress.WeekDays {
		t.Fatalf("expected %d weekly entries, got %d", progress.WeekDays, len(p.WeeklyStats))
	}
}

func TestSingleCompletion(t *testing.T) {
	store, agg, clock := setup(t)
	addAndComplete(t, store, clock, "Run 5km")

	p := agg.Progress()
	if p.DisciplineLevel != 100 {
		t.Fatalf("expected discipline 100, got %d", p.DisciplineLevel)
	}
	if p.TotalTasksCompleted != 1 {
		t.Fatalf("expected 1 completed, got %d", p.TotalTasksCompleted)
	}
	if p.CurrentStreak != 1 {
		t.Fatalf("expected streak 1, got %d", p.CurrentStreak)
	}
}

func TestStreakBreaksAfterEmptyDay(t *testing.T) {
	store, agg, clock := setup(t)

	addAndComplete(t, store, clock, "day 1")
	clock.Advance(day)
	addAndComplete(t, store, clock, "day 2")
	clock.Advance(2 * day) // day 3 has no completions
	addAndComplete(t, store, clock, "today")

	p := agg.Progress()
	if p.CurrentStreak != 1 {
		t.Fatalf("expected current streak 1, got %d", p.CurrentStreak)
	}
	if p.LongestStreak != 2 {
		t.Fatalf("expected longest streak 2, got %d", p.LongestStreak)
	}
}

func TestGraceDay(t *testing.T) {
	store, agg, clock := setup(t)

	addAndComplete(t, store, clock, "day 1")
	clock.Advance(day)
	addAndComplete(t, store, clock, "day 2")

	// Today has nothing yet: the streak still runs through yesterday.
	clock.Advance(day)
	if got := agg.Progress().CurrentStreak; got != 2 {
		t.Fatalf("expected streak 2 on grace day, got %d", got)
	}

	// The missed day is now more than one day in the past.
	clock.Advance(day)
	p := agg.Progress()
	if p.CurrentStreak != 0 {
		t.Fatalf("expected streak 0, got %d", p.CurrentStreak)
	}
	if p.LongestStreak != 2 {
		t.Fatalf("longest streak must survive, got %d", p.LongestStreak)
	}
}

func TestLongestStreakKeepsStoredMark(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	snap := domain.Snapshot{
		Completions: []domain.CompletionRecord{
			{TaskID: "a", CompletedAt: now.Add(-day)},
			{TaskID: "b", CompletedAt: now},
		},
		LongestStreak: 5,
	}
	if got := progress.Compute(snap, now, time.UTC).LongestStreak; got != 5 {
		t.Fatalf("expected stored mark 5, got %d", got)
	}

	snap.LongestStreak = 1
	if got := progress.Compute(snap, now, time.UTC).LongestStreak; got != 2 {
		t.Fatalf("expected history to win over a stale mark, got %d", got)
	}
}

func TestStreakUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	clock := &fakeClock{t: time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)} // 22:00 on the 9th locally
	store := tasks.NewStore("test-user", tasks.Options{Now: clock.Now, Location: loc})
	agg := progress.NewAggregator(store, clock.Now, loc)

	addAndComplete(t, store, clock, "late night")
	clock.Advance(4 * time.Hour) // 02:00 on the 10th locally
	addAndComplete(t, store, clock, "early morning")

	if got := agg.Progress().CurrentStreak; got != 2 {
		t.Fatalf("expected local-day streak 2, got %d", got)
	}
}

func TestDisciplineLevelRounding(t *testing.T) {
	tests := []struct {
		completed, total, want int
	}{
		{0, 0, 0},
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{3, 3, 100},
		{5, 3, 100},
	}
	for _, tt := range tests {
		if got := progress.DisciplineLevel(tt.completed, tt.total); got != tt.want {
			t.Errorf("DisciplineLevel(%d, %d) = %d, want %d", tt.completed, tt.total, got, tt.want)
		}
	}
}

func TestWeeklyStats(t *testing.T) {
	store, agg, clock := setup(t)
	ctx := context.Background()

	addAndComplete(t, store, clock, "done yesterday")
	clock.Advance(day)
	now := clock.Now()
	if _, err := store.AddTask(ctx, tasks.AddInput{Title: "pending today", Type: domain.TypeDay, Period: domain.Period{TargetDate: &now}}); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	addAndComplete(t, store, clock, "done today")

	stats := agg.Progress().WeeklyStats
	last := stats[len(stats)-1]
	if last.Date != "2026-03-11" {
		t.Fatalf("expected last entry to be today, got %s", last.Date)
	}
	if last.TasksTotal != 2 || last.TasksCompleted != 1 || last.DisciplineScore != 50 {
		t.Fatalf("unexpected today stats: %+v", last)
	}
	prev := stats[len(stats)-2]
	if prev.TasksTotal != 1 || prev.TasksCompleted != 1 || prev.DisciplineScore != 100 {
		t.Fatalf("unexpected yesterday stats: %+v", prev)
	}
	if stats[0].Date != "2026-03-05" {
		t.Fatalf("expected window to start 2026-03-05, got %s", stats[0].Date)
	}
}

func TestDeletedTasksLeaveDisciplineButKeepTotals(t *testing.T) {
	store, agg, clock := setup(t)
	task := addAndComplete(t, store, clock, "gone")

	if err := store.DeleteTask(context.Background(), task.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	p := agg.Progress()
	if p.DisciplineLevel != 0 {
		t.Fatalf("expected discipline 0 with no active tasks, got %d", p.DisciplineLevel)
	}
	if p.TotalTasksCompleted != 1 || p.CurrentStreak != 1 {
		t.Fatalf("history must survive deletion, got %+v", p)
	}
}

// Random operation sequences never make the aggregate drift from a
// recomputation over the store's snapshot.
func TestNoDriftUnderRandomOperations(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	store, agg, clock := setup(t)

	var ids []domain.TaskID
	longest := 0
	for step := 0; step < 300; step++ {
		switch op := rng.Intn(10); {
		case op < 4:
			now := clock.Now()
			task, err := store.AddTask(ctx, tasks.AddInput{Title: "t", Type: domain.TypeDay, Period: domain.Period{TargetDate: &now}})
			if err != nil {
				t.Fatalf("AddTask failed: %v", err)
			}
			ids = append(ids, task.ID)
		case op < 8 && len(ids) > 0:
			_, _ = store.ToggleCompletion(ctx, ids[rng.Intn(len(ids))])
		case op < 9 && len(ids) > 0:
			_ = store.DeleteTask(ctx, ids[rng.Intn(len(ids))])
		default:
			clock.Advance(time.Duration(rng.Intn(30)) * time.Hour)
		}

		got := agg.Progress()
		want := progress.Compute(store.Snapshot(), clock.Now(), time.UTC)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("step %d: progress drifted\n got  %+v\n want %+v", step, got, want)
		}
		if got.DisciplineLevel < 0 || got.DisciplineLevel > 100 {
			t.Fatalf("step %d: discipline out of range: %d", step, got.DisciplineLevel)
		}
		if got.LongestStreak < got.CurrentStreak {
			t.Fatalf("step %d: longest %d < current %d", step, got.LongestStreak, got.CurrentStreak)
		}
		if got.LongestStreak < longest {
			t.Fatalf("step %d: longest streak decreased %d -> %d", step, longest, got.LongestStreak)
		}
		longest = got.LongestStreak

		active := store.List()
		done := 0
		for _, task := range active {
			if task.Completed {
				done++
			}
		}
		if want := progress.DisciplineLevel(done, len(active)); got.DisciplineLevel != want {
			t.Fatalf("step %d: discipline %d, want %d", step, got.DisciplineLevel, want)
		}
	}
}
