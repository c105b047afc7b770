package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PabloGalante/v2-coach/internal/domain"
	"github.com/PabloGalante/v2-coach/internal/observability"
)

type fakeClient struct {
	mu    sync.Mutex
	calls []domain.UserStats
	reply string
	err   error
}

func (f *fakeClient) GenerateReply(_ context.Context, _ string, stats domain.UserStats) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, stats)
	return f.reply, f.err
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// blockingClient holds every call until release is closed or the
// context ends.
type blockingClient struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingClient() *blockingClient {
	return &blockingClient{started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (b *blockingClient) GenerateReply(ctx context.Context, _ string, _ domain.UserStats) (string, error) {
	b.started <- struct{}{}
	select {
	case <-b.release:
		return "late but here", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type staticProgress domain.UserProgress

func (p staticProgress) Progress() domain.UserProgress { return domain.UserProgress(p) }

type staticCounter int

func (c staticCounter) PendingCount() int { return int(c) }

func newTestSession(client domain.CoachClient, pending int, cfg Config) *Session {
	prog := staticProgress{CurrentStreak: 4, LongestStreak: 6, TotalTasksCompleted: 12, DisciplineLevel: 75}
	if cfg.RecalibrationDelay == 0 {
		cfg.RecalibrationDelay = time.Millisecond
	}
	return NewSession("u1", client, prog, staticCounter(pending), cfg)
}

func TestNewSession_SeedsGreeting(t *testing.T) {
	s := newTestSession(&fakeClient{reply: "ok"}, 0, Config{})
	defer s.Close()

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 seed message, got %d", len(msgs))
	}
	if msgs[0].Role != domain.RoleCoach || msgs[0].Type != domain.MessageMotivation {
		t.Fatalf("unexpected seed message: %+v", msgs[0])
	}
	if s.State() != StateIdle {
		t.Fatalf("expected idle, got %s", s.State())
	}
}

func TestSendMessage_CallsClientWithStats(t *testing.T) {
	client := &fakeClient{reply: "  Keep pushing!  "}
	s := newTestSession(client, 0, Config{})
	defer s.Close()

	res, err := s.SendMessage(context.Background(), "  how am I doing?  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.UserMessage.Content != "how am I doing?" || res.UserMessage.Role != domain.RoleUser {
		t.Fatalf("unexpected user message: %+v", res.UserMessage)
	}
	if res.CoachMessage.Content != "Keep pushing!" || res.CoachMessage.Type != domain.MessageFeedback {
		t.Fatalf("unexpected coach message: %+v", res.CoachMessage)
	}
	if client.callCount() != 1 {
		t.Fatalf("expected 1 call, got %d", client.callCount())
	}
	want := domain.UserStats{Streak: 4, DisciplineLevel: 75, TasksCompleted: 12}
	if client.calls[0] != want {
		t.Fatalf("stats = %+v, want %+v", client.calls[0], want)
	}
	if got := len(s.Messages()); got != 3 {
		t.Fatalf("expected 3 messages, got %d", got)
	}
	if s.State() != StateIdle {
		t.Fatalf("expected idle, got %s", s.State())
	}
}

func TestSendMessage_EmptyRejected(t *testing.T) {
	client := &fakeClient{reply: "x"}
	s := newTestSession(client, 0, Config{})
	defer s.Close()

	_, err := s.SendMessage(context.Background(), "   ")
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(s.Messages()) != 1 || client.callCount() != 0 {
		t.Fatal("empty message must not change the log or call the client")
	}
}

func TestSendMessage_FailureUsesFallbackOnce(t *testing.T) {
	cases := []struct {
		name   string
		client *fakeClient
	}{
		{"error", &fakeClient{err: errors.New("boom")}},
		{"empty reply", &fakeClient{reply: "   "}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestSession(tc.client, 0, Config{})
			defer s.Close()

			res, err := s.SendMessage(context.Background(), "hello")
			if err != nil {
				t.Fatalf("failure must not surface to caller: %v", err)
			}
			if res.CoachMessage.Content != FallbackReply {
				t.Fatalf("expected fallback, got %q", res.CoachMessage.Content)
			}

			fallbacks := 0
			for _, m := range s.Messages() {
				if m.Content == FallbackReply {
					fallbacks++
				}
			}
			if fallbacks != 1 {
				t.Fatalf("expected exactly one fallback, got %d", fallbacks)
			}
			if s.State() != StateIdle {
				t.Fatalf("expected idle, got %s", s.State())
			}
		})
	}
}

func TestReportFailure_RecalibrationFlow(t *testing.T) {
	client := &fakeClient{reply: "remote"}
	s := newTestSession(client, 3, Config{})
	defer s.Close()

	msg, err := s.ReportFailure(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(msg.Content, "3 pending tasks") || msg.Type != domain.MessageFeedback {
		t.Fatalf("unexpected failure prompt: %+v", msg)
	}
	if s.State() != StateAwaitingRecalibrationReply {
		t.Fatalf("expected recalibration state, got %s", s.State())
	}

	res, err := s.SendMessage(context.Background(), "I was tired")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.callCount() != 0 {
		t.Fatal("recalibration reply must not call the completion service")
	}
	if !strings.Contains(res.CoachMessage.Content, "I was tired") || res.CoachMessage.Type != domain.MessageChallenge {
		t.Fatalf("unexpected recalibration reply: %+v", res.CoachMessage)
	}
	if s.State() != StateIdle {
		t.Fatalf("expected idle, got %s", s.State())
	}

	// back to normal routing
	if _, err := s.SendMessage(context.Background(), "next"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.callCount() != 1 {
		t.Fatalf("expected 1 call after recalibration, got %d", client.callCount())
	}
	if got := len(s.Messages()); got != 6 {
		t.Fatalf("expected 6 messages, got %d", got)
	}
}

func TestSendMessage_RejectsWhilePending(t *testing.T) {
	client := newBlockingClient()
	s := newTestSession(client, 2, Config{})
	defer s.Close()

	done := make(chan error, 1)
	go func() {
		_, err := s.SendMessage(context.Background(), "first")
		done <- err
	}()
	<-client.started

	if s.State() != StateAwaitingCompletionReply {
		t.Fatalf("expected awaiting completion, got %s", s.State())
	}
	if !s.View().Pending {
		t.Fatal("expected view to report pending")
	}
	if _, err := s.SendMessage(context.Background(), "second"); !errors.Is(err, ErrReplyPending) {
		t.Fatalf("expected ErrReplyPending, got %v", err)
	}
	if _, err := s.ReportFailure(context.Background()); !errors.Is(err, ErrReplyPending) {
		t.Fatalf("expected ErrReplyPending from ReportFailure, got %v", err)
	}

	close(client.release)
	if err := <-done; err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[1].Content != "first" || msgs[2].Content != "late but here" {
		t.Fatalf("unexpected log: %+v", msgs)
	}
}

func TestSendMessage_TimeoutFallsBack(t *testing.T) {
	client := newBlockingClient()
	s := newTestSession(client, 0, Config{ReplyTimeout: 20 * time.Millisecond})
	defer s.Close()

	res, err := s.SendMessage(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CoachMessage.Content != FallbackReply {
		t.Fatalf("expected fallback on timeout, got %q", res.CoachMessage.Content)
	}
}

func TestClose_DropsInFlightReply(t *testing.T) {
	client := newBlockingClient()
	s := newTestSession(client, 0, Config{})

	done := make(chan error, 1)
	go func() {
		_, err := s.SendMessage(context.Background(), "hello")
		done <- err
	}()
	<-client.started

	s.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrSessionClosed) {
			t.Fatalf("expected ErrSessionClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close did not cancel the in-flight request")
	}

	for _, m := range s.Messages() {
		if m.Role == domain.RoleCoach && m.Content != greetingText {
			t.Fatalf("no coach reply expected after close, got %q", m.Content)
		}
	}
	if _, err := s.SendMessage(context.Background(), "again"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestFocusTimer_ThroughSession(t *testing.T) {
	f := newTickerFactory()
	s := newTestSession(&fakeClient{reply: "ok"}, 0, Config{
		FocusDuration: 25 * time.Minute,
		NewTicker:     f.New,
	})
	defer s.Close()

	msg, err := s.StartFocusTimer(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(msg.Content, "25 minutes") || msg.Type != domain.MessageChallenge {
		t.Fatalf("unexpected start message: %+v", msg)
	}
	st := s.Timer()
	if !st.Active || st.RemainingSeconds != 1500 {
		t.Fatalf("unexpected timer state: %+v", st)
	}

	expired := s.TimerExpired()
	before := len(s.Messages())
	tk := f.next(t)
	for i := 0; i < 1500; i++ {
		tk.tick(t)
	}

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not expire")
	}

	msgs := s.Messages()
	if len(msgs) != before+1 {
		t.Fatalf("expected exactly one expiry message, got %d new", len(msgs)-before)
	}
	last := msgs[len(msgs)-1]
	if last.Type != domain.MessageMotivation || last.Content != focusDoneText {
		t.Fatalf("unexpected expiry message: %+v", last)
	}
	if s.Timer().Active {
		t.Fatal("timer should be inactive after expiry")
	}
}

func TestFocusTimer_ResetAfterExpiryAnnouncesAgain(t *testing.T) {
	f := newTickerFactory()
	s := newTestSession(&fakeClient{reply: "ok"}, 0, Config{
		FocusDuration: 2 * time.Second,
		NewTicker:     f.New,
	})
	defer s.Close()

	if _, err := s.StartFocusTimer(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expired := s.TimerExpired()
	tk := f.next(t)
	tk.tick(t)
	tk.tick(t)
	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("first countdown did not expire")
	}

	s.ResetTimer()
	s.ResumeTimer()
	expired = s.TimerExpired()
	tk = f.next(t)
	tk.tick(t)
	tk.tick(t)
	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("second countdown did not expire")
	}

	done := 0
	for _, m := range s.Messages() {
		if m.Type == domain.MessageMotivation && m.Content == focusDoneText {
			done++
		}
	}
	if done != 2 {
		t.Fatalf("expected two expiry messages, got %d", done)
	}
	if s.Timer().Active {
		t.Fatal("timer should be inactive after the second expiry")
	}
}

func TestFocusTimer_ExpiryLogCarriesUser(t *testing.T) {
	var buf bytes.Buffer
	observability.Setup(&buf, "info", "json")
	defer observability.Setup(io.Discard, "info", "json")

	f := newTickerFactory()
	s := newTestSession(&fakeClient{reply: "ok"}, 0, Config{
		FocusDuration: time.Second,
		NewTicker:     f.New,
	})
	defer s.Close()

	if _, err := s.StartFocusTimer(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expired := s.TimerExpired()
	f.next(t).tick(t)
	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not expire")
	}

	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var line map[string]any
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			continue
		}
		if line["msg"] == "focus timer finished" {
			if line["user_id"] != "u1" {
				t.Fatalf("expected user_id u1, got %v", line["user_id"])
			}
			return
		}
	}
	t.Fatalf("expiry not logged: %q", buf.String())
}

func TestTimerControls_DoNotLogMessages(t *testing.T) {
	f := newTickerFactory()
	s := newTestSession(&fakeClient{reply: "ok"}, 0, Config{
		FocusDuration: time.Minute,
		NewTicker:     f.New,
	})
	defer s.Close()

	if _, err := s.StartFocusTimer(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tk := f.next(t)
	tk.tick(t)
	waitFor(t, func() bool { return s.Timer().RemainingSeconds == 59 })

	before := len(s.Messages())
	s.PauseTimer()
	if s.Timer().Active {
		t.Fatal("expected paused")
	}
	s.ResumeTimer()
	f.next(t)
	if !s.Timer().Active {
		t.Fatal("expected active after resume")
	}
	s.ResetTimer()
	if st := s.Timer(); st.Active || st.RemainingSeconds != 60 {
		t.Fatalf("unexpected state after reset: %+v", st)
	}
	if got := len(s.Messages()); got != before {
		t.Fatalf("timer controls must not log messages, got %d new", got-before)
	}
}

func TestClose_CancelsTimer(t *testing.T) {
	f := newTickerFactory()
	s := newTestSession(&fakeClient{reply: "ok"}, 0, Config{NewTicker: f.New})

	if _, err := s.StartFocusTimer(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tk := f.next(t)
	s.Close()

	select {
	case <-tk.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("ticker not stopped on close")
	}
	if s.Timer().Active {
		t.Fatal("timer should be inactive after close")
	}
	if _, err := s.StartFocusTimer(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}
