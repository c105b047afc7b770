package domain

// CoachMessage is an entry of the append-only conversation log.
type CoachMessage struct {
	ID        MessageID   `json:"id"`
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	Timestamp Timestamp   `json:"timestamp"`
	Type      MessageType `json:"type,omitempty"`
}

// TimerState is a read-only view of the focus timer.
type TimerState struct {
	Active           bool `json:"is_timer_active"`
	RemainingSeconds int  `json:"remaining_seconds"`
	DurationSeconds  int  `json:"duration_seconds"`
}
