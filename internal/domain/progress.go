package domain

// DailyStats summarises one calendar day of the trailing week.
type DailyStats struct {
	Date            string `json:"date"`
	TasksCompleted  int    `json:"tasks_completed"`
	TasksTotal      int    `json:"tasks_total"`
	DisciplineScore int    `json:"discipline_score"`
	CoachFeedback   string `json:"coach_feedback,omitempty"`
}

// UserProgress is derived from a Snapshot and a clock. It has no
// mutation path of its own.
type UserProgress struct {
	CurrentStreak       int          `json:"current_streak"`
	LongestStreak       int          `json:"longest_streak"`
	TotalTasksCompleted int          `json:"total_tasks_completed"`
	DisciplineLevel     int          `json:"discipline_level"`
	WeeklyStats         []DailyStats `json:"weekly_stats"`
}

// UserStats is the slice of progress sent to the completion service.
type UserStats struct {
	Streak          int `json:"streak"`
	DisciplineLevel int `json:"disciplineLevel"`
	TasksCompleted  int `json:"tasksCompleted"`
}

func (p UserProgress) Stats() UserStats {
	return UserStats{
		Streak:          p.CurrentStreak,
		DisciplineLevel: p.DisciplineLevel,
		TasksCompleted:  p.TotalTasksCompleted,
	}
}
