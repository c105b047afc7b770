// Package progress derives streaks and discipline metrics from a task
// snapshot. Nothing here holds state: every figure is recomputed, with the
// snapshot's stored longest streak as a floor.
package progress

import (
	"math"
	"sort"
	"time"

	"github.com/PabloGalante/v2-coach/internal/domain"
)

// WeekDays is the length of the trailing stats window.
const WeekDays = 7

// SnapshotSource is satisfied by *tasks.Store.
type SnapshotSource interface {
	Snapshot() domain.Snapshot
}

type Aggregator struct {
	src SnapshotSource
	now func() time.Time
	loc *time.Location
}

func NewAggregator(src SnapshotSource, now func() time.Time, loc *time.Location) *Aggregator {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{src: src, now: now, loc: loc}
}

// Progress recomputes UserProgress from the current snapshot.
func (a *Aggregator) Progress() domain.UserProgress {
	return Compute(a.src.Snapshot(), a.now(), a.loc)
}

// Compute is the pure derivation of UserProgress.
func Compute(snap domain.Snapshot, now time.Time, loc *time.Location) domain.UserProgress {
	days := CompletionDays(snap.Completions, loc)
	today := domain.DayOf(now, loc)

	completed := 0
	for _, t := range snap.Tasks {
		if t.Completed {
			completed++
		}
	}

	return domain.UserProgress{
		CurrentStreak:       CurrentStreak(days, today),
		LongestStreak:       max(LongestStreak(days), snap.LongestStreak),
		TotalTasksCompleted: len(snap.Completions),
		DisciplineLevel:     DisciplineLevel(completed, len(snap.Tasks)),
		WeeklyStats:         WeeklyStats(snap.Tasks, today, loc),
	}
}

// CompletionDays is the set of local days with at least one completion.
func CompletionDays(completions []domain.CompletionRecord, loc *time.Location) map[domain.Day]bool {
	days := make(map[domain.Day]bool, len(completions))
	for _, c := range completions {
		days[domain.DayOf(c.CompletedAt, loc)] = true
	}
	return days
}

// CurrentStreak counts consecutive days with completions ending today.
// A today without completions yet does not break the streak: counting
// then starts from yesterday.
func CurrentStreak(days map[domain.Day]bool, today domain.Day) int {
	cursor := today
	if !days[cursor] {
		cursor = cursor.AddDays(-1)
	}

	n := 0
	for days[cursor] {
		n++
		cursor = cursor.AddDays(-1)
	}
	return n
}

// LongestStreak is the longest run of consecutive days in the set.
func LongestStreak(days map[domain.Day]bool) int {
	if len(days) == 0 {
		return 0
	}

	sorted := make([]domain.Day, 0, len(days))
	for d := range days {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	longest, run := 1, 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].AddDays(1) == sorted[i] {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

// DisciplineLevel is round(100*completed/total) clamped to [0,100], and 0
// for an empty list.
func DisciplineLevel(completed, total int) int {
	if total <= 0 {
		return 0
	}
	level := int(math.Round(100 * float64(completed) / float64(total)))
	return min(max(level, 0), 100)
}

// WeeklyStats returns one entry per day of the trailing week, oldest
// first. A task is counted on the day of its relevant time.
func WeeklyStats(tasks []domain.Task, today domain.Day, loc *time.Location) []domain.DailyStats {
	type counts struct{ done, total int }
	byDay := make(map[domain.Day]counts)
	for _, t := range tasks {
		d := domain.DayOf(t.RelevantTime(), loc)
		c := byDay[d]
		c.total++
		if t.Completed {
			c.done++
		}
		byDay[d] = c
	}

	out := make([]domain.DailyStats, 0, WeekDays)
	for i := WeekDays - 1; i >= 0; i-- {
		d := today.AddDays(-i)
		c := byDay[d]
		out = append(out, domain.DailyStats{
			Date:            d.String(),
			TasksCompleted:  c.done,
			TasksTotal:      c.total,
			DisciplineScore: DisciplineLevel(c.done, c.total),
		})
	}
	return out
}
