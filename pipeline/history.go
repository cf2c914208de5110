package pipeline

import "sync"

// Window is the bounded, ordered buffer of recent chat turns used as context
// for the AI call. Insertion order is arrival order; the oldest entry is
// evicted when the capacity is exceeded.
type Window struct {
	mu    sync.Mutex
	cap   int
	turns []ChatTurn
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 100
	}
	return &Window{cap: capacity}
}

// Append adds to the tail, evicting the head on overflow.
func (w *Window) Append(turn ChatTurn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = append(w.turns, turn)
	if len(w.turns) > w.cap {
		w.turns = w.turns[len(w.turns)-w.cap:]
	}
}

// Snapshot returns an independent copy of the current sequence. The worker
// must operate on a point-in-time view because the window keeps mutating
// while a job is in flight.
func (w *Window) Snapshot() []ChatTurn {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]ChatTurn, len(w.turns))
	copy(out, w.turns)
	return out
}

// Clear empties the window; used on room switch.
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = nil
}

// Len reports the current window length.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.turns)
}
