package domain

import "context"

// CoachClient defines how the core asks an external text completion
// service for a coach reply.
type CoachClient interface {
	GenerateReply(ctx context.Context, userMessage string, stats UserStats) (string, error)
}

// TaskRepository persists a user's task snapshot. Load returns an empty
// snapshot when nothing was stored yet. Save replaces what is stored.
type TaskRepository interface {
	Load(ctx context.Context, userID UserID) (Snapshot, error)
	Save(ctx context.Context, userID UserID, snap Snapshot) error
}
