package domain

import "time"

type TaskID string
type UserID string
type MessageID string

type Timestamp = time.Time

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Category string

const (
	CategoryHealth   Category = "health"
	CategoryWork     Category = "work"
	CategoryStudy    Category = "study"
	CategoryPersonal Category = "personal"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryHealth, CategoryWork, CategoryStudy, CategoryPersonal:
		return true
	}
	return false
}

// TaskType is the time horizon of a task. It picks the display section
// and which period fields must be populated.
type TaskType string

const (
	TypeDay   TaskType = "day"
	TypeWeek  TaskType = "week"
	TypeMonth TaskType = "month"
	TypeYear  TaskType = "year"
)

// TaskTypes lists the horizons in display order.
var TaskTypes = []TaskType{TypeDay, TypeWeek, TypeMonth, TypeYear}

func (t TaskType) Valid() bool {
	switch t {
	case TypeDay, TypeWeek, TypeMonth, TypeYear:
		return true
	}
	return false
}

type Role string

const (
	RoleUser  Role = "user"
	RoleCoach Role = "coach"
)

// MessageType is only set on coach-authored messages.
type MessageType string

const (
	MessageMotivation MessageType = "motivation"
	MessageFeedback   MessageType = "feedback"
	MessageChallenge  MessageType = "challenge"
)
