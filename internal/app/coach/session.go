// Package coach runs the conversation with the coach persona: the
// message log, the recalibration mode and the focus timer.
package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/v2-coach/internal/domain"
	"github.com/PabloGalante/v2-coach/internal/observability"
)

var (
	// ErrReplyPending rejects a message while the previous one is still
	// being answered. Overlapping completion requests are never issued.
	ErrReplyPending = errors.New("coach: a reply is still pending")

	ErrSessionClosed = errors.New("coach: session closed")
)

type State string

const (
	StateIdle                       State = "idle"
	StateAwaitingCompletionReply    State = "awaiting_completion_reply"
	StateAwaitingRecalibrationReply State = "awaiting_recalibration_reply"
)

const (
	DefaultFocusDuration      = 25 * time.Minute
	DefaultRecalibrationDelay = 1500 * time.Millisecond
)

// ProgressSource is satisfied by *progress.Aggregator.
type ProgressSource interface {
	Progress() domain.UserProgress
}

// TaskCounter is satisfied by *tasks.Store.
type TaskCounter interface {
	PendingCount() int
}

type Config struct {
	FocusDuration      time.Duration
	RecalibrationDelay time.Duration
	// ReplyTimeout bounds one completion call; zero means no limit.
	ReplyTimeout time.Duration

	Now       func() time.Time
	NewTicker TickerFactory
	NewID     func() domain.MessageID
}

// Session is the single active conversation of one user.
type Session struct {
	mu       sync.Mutex
	userID   domain.UserID
	messages []domain.CoachMessage
	state    State
	inFlight bool
	closed   bool

	client   domain.CoachClient
	progress ProgressSource
	tasks    TaskCounter
	timer    *FocusTimer

	focusSeconds       int
	recalibrationDelay time.Duration
	replyTimeout       time.Duration
	now                func() time.Time
	newID              func() domain.MessageID

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession starts a session seeded with the coach greeting.
func NewSession(
	userID domain.UserID,
	client domain.CoachClient,
	progress ProgressSource,
	tasks TaskCounter,
	cfg Config,
) *Session {
	if cfg.FocusDuration <= 0 {
		cfg.FocusDuration = DefaultFocusDuration
	}
	if cfg.RecalibrationDelay < 0 {
		cfg.RecalibrationDelay = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() domain.MessageID {
			return domain.MessageID(uuid.Must(uuid.NewV7()).String())
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		userID:             userID,
		state:              StateIdle,
		client:             client,
		progress:           progress,
		tasks:              tasks,
		focusSeconds:       int(cfg.FocusDuration / time.Second),
		recalibrationDelay: cfg.RecalibrationDelay,
		replyTimeout:       cfg.ReplyTimeout,
		now:                cfg.Now,
		newID:              cfg.NewID,
		ctx:                ctx,
		cancel:             cancel,
	}
	s.timer = NewFocusTimer(s.focusSeconds, cfg.NewTicker, s.onTimerExpired)
	s.appendLocked(domain.RoleCoach, greetingText, domain.MessageMotivation)
	return s
}

type SendResult struct {
	UserMessage  domain.CoachMessage
	CoachMessage domain.CoachMessage
}

// SendMessage appends the user's message and the coach answer. While
// idle the answer comes from the completion service; any failure there
// is absorbed into FallbackReply. After ReportFailure the answer is
// composed locally and the service is not called.
func (s *Session) SendMessage(ctx context.Context, text string) (*SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &domain.ValidationError{Field: "message", Reason: "must not be empty"}
	}

	log := observability.LoggerFromContext(ctx).With("user_id", s.userID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.inFlight {
		s.mu.Unlock()
		log.Warn("message rejected, reply pending")
		return nil, ErrReplyPending
	}
	recalibrating := s.state == StateAwaitingRecalibrationReply
	userMsg := s.appendLocked(domain.RoleUser, text, "")
	s.inFlight = true
	if !recalibrating {
		s.state = StateAwaitingCompletionReply
	}
	s.mu.Unlock()

	var (
		reply domain.CoachMessage
		err   error
	)
	if recalibrating {
		log.Info("answering recalibration locally")
		reply, err = s.recalibrate(ctx, text)
	} else {
		log.Info("requesting coach reply")
		reply, err = s.complete(ctx, text)
	}
	if err != nil {
		return nil, err
	}

	return &SendResult{UserMessage: userMsg, CoachMessage: reply}, nil
}

func (s *Session) complete(ctx context.Context, text string) (domain.CoachMessage, error) {
	log := observability.LoggerFromContext(ctx).With("user_id", s.userID)
	stats := s.progress.Progress().Stats()

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	start := time.Now()
	reply, err := s.client.GenerateReply(callCtx, text, stats)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty reply")
	}

	content := strings.TrimSpace(reply)
	if err != nil {
		cerr := &domain.CompletionServiceError{Err: err}
		log.Warn("coach reply failed, using fallback", "error", cerr, "elapsed_ms", time.Since(start).Milliseconds())
		content = FallbackReply
	} else {
		log.Info("coach reply received", "elapsed_ms", time.Since(start).Milliseconds())
	}

	return s.finish(content, domain.MessageFeedback)
}

func (s *Session) recalibrate(ctx context.Context, obstacle string) (domain.CoachMessage, error) {
	if s.recalibrationDelay > 0 {
		callCtx, cancel := s.callContext(ctx)
		t := time.NewTimer(s.recalibrationDelay)
		select {
		case <-t.C:
		case <-callCtx.Done():
			t.Stop()
		}
		cancel()
	}
	return s.finish(fmt.Sprintf(recalibrationText, obstacle), domain.MessageChallenge)
}

// finish returns the session to idle and appends the coach reply,
// unless the session was closed in the meantime.
func (s *Session) finish(content string, typ domain.MessageType) (domain.CoachMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight = false
	s.state = StateIdle
	if s.closed {
		return domain.CoachMessage{}, ErrSessionClosed
	}
	return s.appendLocked(domain.RoleCoach, content, typ), nil
}

// callContext is cancelled by the caller, by Close, or by the reply
// timeout, whichever comes first.
func (s *Session) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)

	if s.replyTimeout <= 0 {
		return callCtx, func() { stop(); cancel() }
	}
	timed, cancelTimeout := context.WithTimeout(callCtx, s.replyTimeout)
	return timed, func() { cancelTimeout(); stop(); cancel() }
}

// ReportFailure switches to recalibration mode and asks what the
// obstacle was. It never calls the completion service.
func (s *Session) ReportFailure(ctx context.Context) (domain.CoachMessage, error) {
	pending := s.tasks.PendingCount()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.CoachMessage{}, ErrSessionClosed
	}
	if s.inFlight {
		return domain.CoachMessage{}, ErrReplyPending
	}
	s.state = StateAwaitingRecalibrationReply

	observability.LoggerFromContext(ctx).Info("failure reported", "user_id", s.userID, "pending_tasks", pending)
	return s.appendLocked(domain.RoleCoach, fmt.Sprintf(failurePromptText, pending), domain.MessageFeedback), nil
}

// StartFocusTimer arms a full focus countdown and announces it.
func (s *Session) StartFocusTimer(ctx context.Context) (domain.CoachMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.CoachMessage{}, ErrSessionClosed
	}
	s.timer.Start(s.focusSeconds)

	observability.LoggerFromContext(ctx).Info("focus timer started", "user_id", s.userID, "seconds", s.focusSeconds)
	return s.appendLocked(domain.RoleCoach, fmt.Sprintf(focusStartText, s.focusSeconds/60), domain.MessageChallenge), nil
}

func (s *Session) PauseTimer()  { s.timer.Pause() }
func (s *Session) ResumeTimer() { s.timer.Resume() }
func (s *Session) ResetTimer()  { s.timer.Reset() }

func (s *Session) Timer() domain.TimerState {
	return s.timer.State()
}

// TimerExpired is closed when the current focus countdown completes and
// its announcement is in the log.
func (s *Session) TimerExpired() <-chan struct{} {
	return s.timer.Expired()
}

func (s *Session) onTimerExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	observability.WithFields("user_id", s.userID).Info("focus timer finished")
	s.appendLocked(domain.RoleCoach, focusDoneText, domain.MessageMotivation)
}

// Close cancels the timer and any in-flight request. A reply arriving
// afterwards is dropped.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.timer.Cancel()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the log in order.
func (s *Session) Messages() []domain.CoachMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.CoachMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// View is what a renderer needs in one consistent read.
type View struct {
	State    State                 `json:"state"`
	Pending  bool                  `json:"pending"`
	Messages []domain.CoachMessage `json:"messages"`
	Timer    domain.TimerState     `json:"timer"`
}

func (s *Session) View() View {
	s.mu.Lock()
	v := View{
		State:    s.state,
		Pending:  s.inFlight,
		Messages: make([]domain.CoachMessage, len(s.messages)),
	}
	copy(v.Messages, s.messages)
	s.mu.Unlock()

	v.Timer = s.timer.State()
	return v
}

func (s *Session) appendLocked(role domain.Role, content string, typ domain.MessageType) domain.CoachMessage {
	msg := domain.CoachMessage{
		ID:        s.newID(),
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
		Type:      typ,
	}
	s.messages = append(s.messages, msg)
	return msg
}
