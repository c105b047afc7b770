package domain

import "time"

// Period holds the calendar bounds of a task. Only the group matching
// the task type is populated.
type Period struct {
	TargetDate *time.Time `json:"target_date,omitempty"`

	WeekStart *time.Time `json:"week_start,omitempty"`
	WeekEnd   *time.Time `json:"week_end,omitempty"`

	MonthStart *time.Time `json:"month_start,omitempty"`
	MonthEnd   *time.Time `json:"month_end,omitempty"`

	YearStart *time.Time `json:"year_start,omitempty"`
	YearEnd   *time.Time `json:"year_end,omitempty"`
}

// Task is a unit of commitment scoped to a day, week, month or year.
type Task struct {
	ID       TaskID   `json:"id"`
	Title    string   `json:"title"`
	Priority Priority `json:"priority"`
	Category Category `json:"category"`
	Type     TaskType `json:"type"`

	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// IsHabit marks a negative habit being tracked: completing it means
	// the habit was avoided.
	IsHabit bool `json:"is_habit"`

	// What almost prevented success, captured on completion.
	VictoryReflection string `json:"victory_reflection,omitempty"`

	Period Period `json:"period"`
}

// RelevantTime is the completion time for completed tasks and the
// creation time otherwise.
func (t Task) RelevantTime() time.Time {
	if t.Completed && t.CompletedAt != nil {
		return *t.CompletedAt
	}
	return t.CreatedAt
}

// StatusLabel keeps the habit inversion visible to renderers.
func (t Task) StatusLabel() string {
	switch {
	case t.IsHabit && t.Completed:
		return "avoided"
	case t.IsHabit:
		return "tracked"
	case t.Completed:
		return "completed"
	default:
		return "pending"
	}
}

// CompletionRecord is one false→true transition of a task.
type CompletionRecord struct {
	TaskID      TaskID    `json:"task_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// Snapshot is everything the task store owns for one user: the tasks in
// insertion order, the completion history and the longest streak seen so
// far. LongestStreak only grows; revoking a completion does not lower it.
type Snapshot struct {
	Tasks         []Task             `json:"tasks"`
	Completions   []CompletionRecord `json:"completions"`
	LongestStreak int                `json:"longest_streak"`
}

// Clone returns a deep copy so callers can't reach into store state.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Tasks:         make([]Task, len(s.Tasks)),
		Completions:   make([]CompletionRecord, len(s.Completions)),
		LongestStreak: s.LongestStreak,
	}
	for i, t := range s.Tasks {
		out.Tasks[i] = t.Clone()
	}
	copy(out.Completions, s.Completions)
	return out
}

// Clone returns a copy of the task that shares no pointers.
func (t Task) Clone() Task {
	c := t
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.Period = Period{
		TargetDate: cloneTime(t.Period.TargetDate),
		WeekStart:  cloneTime(t.Period.WeekStart),
		WeekEnd:    cloneTime(t.Period.WeekEnd),
		MonthStart: cloneTime(t.Period.MonthStart),
		MonthEnd:   cloneTime(t.Period.MonthEnd),
		YearStart:  cloneTime(t.Period.YearStart),
		YearEnd:    cloneTime(t.Period.YearEnd),
	}
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
