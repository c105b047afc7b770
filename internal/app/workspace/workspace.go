// Package workspace wires the per-user services together: one task
// store, its progress view, the coach session and the timeline.
package workspace

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/PabloGalante/v2-coach/internal/app/coach"
	"github.com/PabloGalante/v2-coach/internal/app/progress"
	"github.com/PabloGalante/v2-coach/internal/app/tasks"
	"github.com/PabloGalante/v2-coach/internal/app/timeline"
	"github.com/PabloGalante/v2-coach/internal/domain"
	"github.com/PabloGalante/v2-coach/internal/observability"
)

type Options struct {
	Client     domain.CoachClient
	Repository domain.TaskRepository
	Location   *time.Location
	Now        func() time.Time
	Coach      coach.Config
}

// Workspace is the state owned by one user.
type Workspace struct {
	UserID   domain.UserID
	Tasks    *tasks.Store
	Progress *progress.Aggregator
	Coach    *coach.Session
	Timeline *timeline.Service
}

// New builds a workspace and restores its tasks from the repository.
func New(ctx context.Context, userID domain.UserID, opts Options) (*Workspace, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	store := tasks.NewStore(userID, tasks.Options{
		Now:        opts.Now,
		Location:   opts.Location,
		Repository: opts.Repository,
	})
	if err := store.Load(ctx); err != nil {
		return nil, err
	}

	agg := progress.NewAggregator(store, opts.Now, opts.Location)

	coachCfg := opts.Coach
	if coachCfg.Now == nil {
		coachCfg.Now = opts.Now
	}

	return &Workspace{
		UserID:   userID,
		Tasks:    store,
		Progress: agg,
		Coach:    coach.NewSession(userID, opts.Client, agg, store, coachCfg),
		Timeline: timeline.NewService(store, opts.Now, opts.Location),
	}, nil
}

func (w *Workspace) Close() {
	w.Coach.Close()
}

// Registry keeps one workspace per user in memory.
type Registry struct {
	mu     sync.RWMutex
	byUser map[domain.UserID]*Workspace
	opts   Options
}

func NewRegistry(opts Options) *Registry {
	return &Registry{
		byUser: make(map[domain.UserID]*Workspace),
		opts:   opts,
	}
}

// Get returns the user's workspace, creating it on first use. The
// repository load runs without the registry lock, so a slow first load
// only delays its own user. When two first requests race, one workspace
// wins and the other is closed.
func (r *Registry) Get(ctx context.Context, userID domain.UserID) (*Workspace, error) {
	if userID == "" {
		return nil, &domain.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}

	r.mu.RLock()
	ws, ok := r.byUser[userID]
	r.mu.RUnlock()
	if ok {
		return ws, nil
	}

	fresh, err := New(ctx, userID, r.opts)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}

	r.mu.Lock()
	if ws, ok := r.byUser[userID]; ok {
		r.mu.Unlock()
		fresh.Close()
		return ws, nil
	}
	r.byUser[userID] = fresh
	r.mu.Unlock()

	observability.LoggerFromContext(ctx).Info("workspace opened", "user_id", userID)
	return fresh, nil
}

// Remove closes and forgets the user's workspace. Persisted tasks stay
// in the repository.
func (r *Registry) Remove(userID domain.UserID) {
	r.mu.Lock()
	ws, ok := r.byUser[userID]
	delete(r.byUser, userID)
	r.mu.Unlock()

	if ok {
		ws.Close()
	}
}

// Users lists the users with an open workspace, sorted.
func (r *Registry) Users() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.UserID, 0, len(r.byUser))
	for id := range r.byUser {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close closes every workspace.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.byUser
	r.byUser = make(map[domain.UserID]*Workspace)
	r.mu.Unlock()

	for _, ws := range all {
		ws.Close()
	}
}
