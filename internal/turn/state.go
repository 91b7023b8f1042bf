package turn

// State is a step of the turn state machine.
type State int

// Turn states, in the order a successful turn visits them.
const (
	Idle State = iota
	Validating
	FetchingContext
	Summarizing
	Generating
	Persisting
	Completed
	Errored
)

var stateNames = [...]string{
	Idle:            "idle",
	Validating:      "validating",
	FetchingContext: "fetching_context",
	Summarizing:     "summarizing",
	Generating:      "generating",
	Persisting:      "persisting",
	Completed:       "completed",
	Errored:         "errored",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Mode is the delivery mode of a turn.
type Mode string

// Delivery modes.
const (
	ModeBuffered Mode = "buffered"
	ModeStream   Mode = "stream"
)

// SummaryPolicy decides what a failed summary does to the turn.
type SummaryPolicy string

// Summary policies.
const (
	// SummaryDegrade continues without context.
	SummaryDegrade SummaryPolicy = "degrade"
	// SummaryAbort fails the turn.
	SummaryAbort SummaryPolicy = "abort"
)

// Valid reports whether p is a known policy.
func (p SummaryPolicy) Valid() bool {
	return p == SummaryDegrade || p == SummaryAbort
}
