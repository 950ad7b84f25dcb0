package lottery

import "fmt"

// State is the lottery life-cycle phase.
type State uint8

const (
	// StateOpen accepts entries and may be settled once the interval passes.
	StateOpen State = iota
	// StateCalculating waits for the oracle. No entries, no second trigger.
	StateCalculating
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateCalculating:
		return "CALCULATING"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

func (s State) valid() bool {
	return s == StateOpen || s == StateCalculating
}
