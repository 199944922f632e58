package syncer

import (
	"sync"
	"time"

	"staff-sync/internal/util"
)

// RefreshTrigger coalesces bursts of watched-category notification arrivals
// into at most one refetch per quiet window. This is a trailing-edge
// debounce: every new arrival cancels a scheduled-but-unfired refetch and
// reschedules from the arrival time, so a continuous burst defers the
// refetch until the burst stops.
//
// When the consuming view is not focused at the moment the window elapses,
// the refresh intent is retained as a pending flag and consumed on the next
// focus gain instead of firing against an invisible view.
type RefreshTrigger struct {
	mu sync.Mutex

	window  time.Duration
	fire    func()
	timer   *time.Timer
	last    int
	focused bool
	pending bool
	stopped bool
}

// NewRefreshTrigger creates a trigger with the given quiet window. fire is
// invoked without the trigger lock held and must be safe to call from a
// timer goroutine. The trigger starts focused.
func NewRefreshTrigger(window time.Duration, fire func()) *RefreshTrigger {
	return &RefreshTrigger{
		window:  window,
		fire:    fire,
		focused: true,
	}
}

// Observe feeds the current watched-category count. Every increase
// (re)schedules the trailing-edge timer; decreases only record the new
// baseline so a later re-increase schedules again.
func (t *RefreshTrigger) Observe(count int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if count <= t.last {
		t.last = count
		return
	}
	t.last = count

	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.window, t.elapsed)
	util.RefreshesScheduledTotal.Inc()
}

func (t *RefreshTrigger) elapsed() {
	t.mu.Lock()
	t.timer = nil
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if !t.focused {
		t.pending = true
		t.mu.Unlock()
		util.RefreshesDeferredTotal.Inc()
		return
	}
	t.mu.Unlock()

	util.RefreshesFiredTotal.Inc()
	t.fire()
}

// SetFocused records view visibility. Gaining focus consumes a pending
// refresh exactly once.
func (t *RefreshTrigger) SetFocused(focused bool) {
	t.mu.Lock()
	t.focused = focused
	consume := focused && t.pending && !t.stopped
	if consume {
		t.pending = false
	}
	t.mu.Unlock()

	if consume {
		util.RefreshesFiredTotal.Inc()
		t.fire()
	}
}

// Stop cancels any outstanding timer; the trigger accepts no further work.
// Called when the owning view is torn down.
func (t *RefreshTrigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.stopped = true
	t.pending = false
}
