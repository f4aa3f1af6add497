// Package playback provides the single-active-playback coordinator.
package playback

// State represents the coordinator state.
type State int

const (
	StateIdle    State = iota // No handle in the active slot
	StatePlaying              // A handle is active
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}
