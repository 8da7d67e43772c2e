package fetcher

// Mode distinguishes long-lived background polling from pool-bounded
// temporary polling.
type Mode int

const (
	Background Mode = iota
	Temporary
)

func (m Mode) String() string {
	switch m {
	case Background:
		return "background"
	case Temporary:
		return "temporary"
	default:
		return "unknown"
	}
}

// State is the lifecycle position of a Fetcher. Probe failures never change
// it; there is no failed state.
type State int

const (
	Created State = iota
	Scheduled
	Polling
	Cancelled
	Retired
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Scheduled:
		return "scheduled"
	case Polling:
		return "polling"
	case Cancelled:
		return "cancelled"
	case Retired:
		return "retired"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further probes or reports will happen.
func (s State) Terminal() bool { return s == Cancelled || s == Retired }
