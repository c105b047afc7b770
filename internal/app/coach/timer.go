package coach

import (
	"sync"
	"time"

	"github.com/PabloGalante/v2-coach/internal/domain"
)

// Ticker is the subset of *time.Ticker the focus timer needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFactory func(d time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// FocusTimer counts down once per second while active and calls
// onExpire exactly once when it reaches zero. Pause, Resume and Reset
// only change state.
type FocusTimer struct {
	mu        sync.Mutex
	duration  int
	remaining int
	run       *timerRun
	expired   chan struct{}
	cancelled bool

	newTicker TickerFactory
	onExpire  func()
}

type timerRun struct {
	stop chan struct{}
}

func NewFocusTimer(durationSeconds int, newTicker TickerFactory, onExpire func()) *FocusTimer {
	if newTicker == nil {
		newTicker = NewRealTicker
	}
	if onExpire == nil {
		onExpire = func() {}
	}
	return &FocusTimer{
		duration:  durationSeconds,
		remaining: durationSeconds,
		expired:   make(chan struct{}),
		newTicker: newTicker,
		onExpire:  onExpire,
	}
}

// Start (re)arms the timer with a full countdown of durationSeconds.
func (t *FocusTimer) Start(durationSeconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled {
		return
	}
	t.stopLocked()
	t.duration = durationSeconds
	t.remaining = durationSeconds
	t.expired = make(chan struct{})
	t.launchLocked()
}

func (t *FocusTimer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *FocusTimer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled || t.run != nil || t.remaining <= 0 {
		return
	}
	t.launchLocked()
}

// Reset stops the countdown and restores the full duration. The next
// countdown gets a fresh Expired channel.
func (t *FocusTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.remaining = t.duration
	t.expired = make(chan struct{})
}

// Cancel stops the timer for good. Later calls to Start and Resume are
// ignored.
func (t *FocusTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.cancelled = true
}

func (t *FocusTimer) State() domain.TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()

	return domain.TimerState{
		Active:           t.run != nil,
		RemainingSeconds: t.remaining,
		DurationSeconds:  t.duration,
	}
}

// Expired is closed once the countdown started by the latest Start
// reaches zero and onExpire has returned.
func (t *FocusTimer) Expired() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expired
}

func (t *FocusTimer) launchLocked() {
	run := &timerRun{stop: make(chan struct{})}
	t.run = run
	tk := t.newTicker(time.Second)
	go t.loop(run, tk)
}

func (t *FocusTimer) stopLocked() {
	if t.run == nil {
		return
	}
	close(t.run.stop)
	t.run = nil
}

func (t *FocusTimer) loop(run *timerRun, tk Ticker) {
	defer tk.Stop()

	for {
		select {
		case <-run.stop:
			return
		case <-tk.C():
			done, expired := t.tick(run)
			if done {
				t.onExpire()
				close(expired)
				return
			}
		}
	}
}

// tick ignores ticks from a run that was paused or replaced.
func (t *FocusTimer) tick(run *timerRun) (bool, chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.run != run {
		return false, nil
	}
	t.remaining--
	if t.remaining > 0 {
		return false, nil
	}
	t.remaining = 0
	t.run = nil
	return true, t.expired
}
