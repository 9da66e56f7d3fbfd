// internal/pipeline/state.go
package pipeline

import "time"

// State is the lifecycle position of one analysis run
type State string

const (
	StateReceived    State = "RECEIVED"
	StateFetching    State = "FETCHING"
	StateAggregating State = "AGGREGATING"
	StateAnalyzing   State = "ANALYZING"
	StateRendering   State = "RENDERING"
	StateComplete    State = "COMPLETE"
	StateFailed      State = "FAILED"
)

// Terminal reports whether no further transitions can follow s
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// next lists the only forward transition from each non-terminal state
var next = map[State]State{
	StateReceived:    StateFetching,
	StateFetching:    StateAggregating,
	StateAggregating: StateAnalyzing,
	StateAnalyzing:   StateRendering,
	StateRendering:   StateComplete,
}

// Transition is reported to an Observer every time a run changes state
type Transition struct {
	AnalysisID string
	From       State
	To         State
	At         time.Time
	// Err is set when To is StateFailed
	Err error
}

// Observer receives transitions synchronously, in order
type Observer func(Transition)

// run tracks the current state of one execution and enforces legal moves
type run struct {
	id       string
	state    State
	entered  time.Time
	now      func() time.Time
	observer Observer
	stageEnd func(State, time.Duration)
}

func (r *run) advance(to State) {
	if next[r.state] != to {
		panic("pipeline: illegal transition " + string(r.state) + " -> " + string(to))
	}
	r.move(to, nil)
}

func (r *run) fail(err error) {
	if r.state.Terminal() {
		panic("pipeline: transition out of terminal state " + string(r.state))
	}
	r.move(StateFailed, err)
}

func (r *run) move(to State, err error) {
	at := r.now()
	if r.stageEnd != nil && r.state != StateReceived {
		r.stageEnd(r.state, at.Sub(r.entered))
	}
	from := r.state
	r.state = to
	r.entered = at
	if r.observer != nil {
		r.observer(Transition{AnalysisID: r.id, From: from, To: to, At: at, Err: err})
	}
}
