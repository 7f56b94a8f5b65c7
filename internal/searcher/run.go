package searcher

import (
	"fmt"
	"slices"
	"time"

	"booksearcher/internal/sessioncache"
)

// State is a step in the lifecycle of one search invocation.
type State string

const (
	StateIdle         State = "idle"
	StateTagsResolved State = "tags_resolved"
	StateSearching    State = "searching"
	StatePersisted    State = "persisted"
	StateDisplayed    State = "displayed"
	StateFailed       State = "failed"
)

var allowedTransitions = map[State][]State{
	StateIdle:         {StateTagsResolved, StateFailed},
	StateTagsResolved: {StateSearching, StateFailed},
	StateSearching:    {StatePersisted, StateIdle, StateFailed},
	StatePersisted:    {StateDisplayed},
	StateDisplayed:    {StateIdle},
}

// Request describes one search.
type Request struct {
	Query    string
	Kind     sessioncache.Kind
	Protocol string
	Mode     sessioncache.Mode
}

// Run is the record of one search invocation. SessionID is zero when nothing
// was saved, either because the search found nothing or because SaveErr is set.
type Run struct {
	Request    Request
	SessionID  int
	Results    []sessioncache.Result
	History    []State
	SaveErr    error
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

func newRun(req Request, now time.Time) *Run {
	return &Run{Request: req, History: []State{StateIdle}, StartedAt: now}
}

// State returns the current state.
func (r *Run) State() State {
	if r == nil || len(r.History) == 0 {
		return StateIdle
	}
	return r.History[len(r.History)-1]
}

// Saved reports whether the results were persisted as a session.
func (r *Run) Saved() bool {
	return r != nil && r.SessionID > 0
}

func (r *Run) transition(to State) error {
	from := r.State()
	if !slices.Contains(allowedTransitions[from], to) {
		return fmt.Errorf("searcher: invalid transition %s -> %s", from, to)
	}
	if to == StateSearching && slices.Contains(r.History, StateSearching) {
		return fmt.Errorf("searcher: search already ran for this invocation")
	}
	r.History = append(r.History, to)
	return nil
}

func (r *Run) fail(err error) {
	if r.State() != StateFailed {
		r.History = append(r.History, StateFailed)
	}
	if r.Err == nil {
		r.Err = err
	}
}
