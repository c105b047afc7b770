package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/v2-coach/internal/domain"
)

// TaskRepository is a simple in-memory implementation of domain.TaskRepository.
// It is NOT persistent and is only suitable for development / local mode.
type TaskRepository struct {
	mu     sync.RWMutex
	byUser map[domain.UserID]domain.Snapshot
}

func NewTaskRepository() *TaskRepository {
	return &TaskRepository{
		byUser: make(map[domain.UserID]domain.Snapshot),
	}
}

func (r *TaskRepository) Load(_ context.Context, userID domain.UserID) (domain.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.byUser[userID]
	if !ok {
		return domain.Snapshot{}, nil
	}
	return snap.Clone(), nil
}

func (r *TaskRepository) Save(_ context.Context, userID domain.UserID, snap domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(snap.Tasks) == 0 && len(snap.Completions) == 0 && snap.LongestStreak == 0 {
		delete(r.byUser, userID)
		return nil
	}
	r.byUser[userID] = snap.Clone()
	return nil
}
