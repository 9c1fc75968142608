// Package playback provides the per-guild playback driver: a state machine run
// by one actor goroutine per guild, fed by control commands and backend completions.
package playback

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // Nothing attached (queue empty, stopped, or breaker tripped)
	StateLoading              // Stream being resolved and backend starting
	StatePlaying              // Track is playing
	StatePaused               // Track is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
