package service

import (
	"sync"
	"time"

	"github.com/noah-isme/gema-workbench/internal/observability"
	"github.com/noah-isme/gema-workbench/pkg/classroom"
)

// SaveState is the feedback shown next to an editable artifact.
type SaveState string

// Save states. Allowed transitions: idle->saving, saving->saved,
// saving->error, saved->idle, error->idle.
const (
	SaveIdle   SaveState = "idle"
	SaveSaving SaveState = "saving"
	SaveSaved  SaveState = "saved"
	SaveError  SaveState = "error"
)

// AfterFunc schedules f to run after d and returns a function that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

// RealAfterFunc schedules on the wall clock.
func RealAfterFunc(d time.Duration, f func()) func() bool {
	timer := time.AfterFunc(d, f)
	return timer.Stop
}

// SaveListener receives every state transition of a tracker.
type SaveListener func(state SaveState, message string)

type saveTransition struct {
	state   SaveState
	message string
}

// SaveTracker tracks the save feedback of one artifact. Every Begin returns a
// sequence number; only the completion of the most recently issued save may
// change the state, older completions are dropped.
type SaveTracker struct {
	artifact string
	delay    time.Duration
	after    AfterFunc
	listener SaveListener

	mu      sync.Mutex
	state   SaveState
	message string
	issued  uint64
	cancel  func() bool
}

// NewSaveTracker creates a tracker in the idle state. artifact labels the
// transitions metric.
func NewSaveTracker(artifact string, delay time.Duration, after AfterFunc, listener SaveListener) *SaveTracker {
	if after == nil {
		after = RealAfterFunc
	}
	return &SaveTracker{
		artifact: artifact,
		delay:    delay,
		after:    after,
		listener: listener,
		state:    SaveIdle,
	}
}

// State returns the current state and, in the error state, the message.
func (t *SaveTracker) State() (SaveState, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.message
}

// Begin records a new save attempt and returns its sequence number.
func (t *SaveTracker) Begin() uint64 {
	t.mu.Lock()
	var pending []saveTransition
	t.stopTimerLocked()
	if t.state == SaveSaved || t.state == SaveError {
		pending = append(pending, t.setLocked(SaveIdle, ""))
	}
	t.issued++
	seq := t.issued
	if t.state != SaveSaving {
		pending = append(pending, t.setLocked(SaveSaving, ""))
	}
	t.mu.Unlock()

	t.notify(pending)
	return seq
}

// Finish records the outcome of save seq. It reports whether the outcome was
// applied; completions of superseded saves return false.
func (t *SaveTracker) Finish(seq uint64, err error) bool {
	t.mu.Lock()
	if seq != t.issued || t.state != SaveSaving {
		t.mu.Unlock()
		return false
	}

	var pending []saveTransition
	if err != nil {
		pending = append(pending, t.setLocked(SaveError, classroom.Message(err)))
	} else {
		pending = append(pending, t.setLocked(SaveSaved, ""))
		t.cancel = t.after(t.delay, func() { t.expire(seq) })
	}
	t.mu.Unlock()

	t.notify(pending)
	return true
}

// Touch is called when the artifact is edited. A stale saved or error
// indicator goes back to idle.
func (t *SaveTracker) Touch() {
	t.mu.Lock()
	var pending []saveTransition
	if t.state == SaveSaved || t.state == SaveError {
		t.stopTimerLocked()
		pending = append(pending, t.setLocked(SaveIdle, ""))
	}
	t.mu.Unlock()

	t.notify(pending)
}

// Reset discards the indicator. Saves still in flight are invalidated.
func (t *SaveTracker) Reset() {
	t.mu.Lock()
	t.stopTimerLocked()
	t.issued++
	changed := t.state != SaveIdle
	t.state = SaveIdle
	t.message = ""
	t.mu.Unlock()

	if changed && t.listener != nil {
		t.listener(SaveIdle, "")
	}
}

func (t *SaveTracker) expire(seq uint64) {
	t.mu.Lock()
	var pending []saveTransition
	if seq == t.issued && t.state == SaveSaved {
		t.cancel = nil
		pending = append(pending, t.setLocked(SaveIdle, ""))
	}
	t.mu.Unlock()

	t.notify(pending)
}

func (t *SaveTracker) setLocked(state SaveState, message string) saveTransition {
	t.state = state
	t.message = message
	observability.SaveTransitions().WithLabelValues(t.artifact, string(state)).Inc()
	return saveTransition{state: state, message: message}
}

func (t *SaveTracker) stopTimerLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

func (t *SaveTracker) notify(pending []saveTransition) {
	if t.listener == nil {
		return
	}
	for _, transition := range pending {
		t.listener(transition.state, transition.message)
	}
}
