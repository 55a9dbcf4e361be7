package domain

// SyncPhase identifies the phase of a full sync session
type SyncPhase int

const (
	PhaseIdle SyncPhase = iota
	PhaseFetching
	PhaseDetecting
	PhasePreloading
	PhaseCompleted
	PhaseFailed
)

// String returns the phase name
func (p SyncPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseDetecting:
		return "detecting"
	case PhasePreloading:
		return "preloading"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SyncState is the externally observable progress of a sync session.
// It is a closed variant type: construct values through the helper
// functions below, never by setting fields directly. Exactly one state
// value exists per owner at any time.
type SyncState struct {
	Phase SyncPhase

	// Fetched is the running count of listed items (fetching phase)
	Fetched int

	// Current and Total track preload progress (preloading phase)
	Current int
	Total   int

	// Message describes the failure (failed phase)
	Message string
}

// SyncIdle returns the idle state
func SyncIdle() SyncState {
	return SyncState{Phase: PhaseIdle}
}

// SyncFetching returns the fetching state with the running item count
func SyncFetching(fetched int) SyncState {
	return SyncState{Phase: PhaseFetching, Fetched: fetched}
}

// SyncDetecting returns the deletion-detection state
func SyncDetecting() SyncState {
	return SyncState{Phase: PhaseDetecting}
}

// SyncPreloading returns the preloading state with progress counters
func SyncPreloading(current, total int) SyncState {
	return SyncState{Phase: PhasePreloading, Current: current, Total: total}
}

// SyncCompleted returns the terminal success state
func SyncCompleted() SyncState {
	return SyncState{Phase: PhaseCompleted}
}

// SyncFailed returns the terminal failure state with a message
func SyncFailed(message string) SyncState {
	return SyncState{Phase: PhaseFailed, Message: message}
}

// IsRunning reports whether a session is in flight
func (s SyncState) IsRunning() bool {
	switch s.Phase {
	case PhaseIdle, PhaseCompleted, PhaseFailed:
		return false
	default:
		return true
	}
}
