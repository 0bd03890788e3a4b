package engine

// Phase identifies one stage of the measurement pipeline. Observers receive
// structured phases instead of free-text status strings, so nothing needs to
// keyword-match messages to know where a run is.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConfiguringClient
	PhaseDiscoveringServers
	PhaseProbingLatency
	PhaseMeasuringDownload
	PhaseMeasuringUpload
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConfiguringClient:
		return "configuring-client"
	case PhaseDiscoveringServers:
		return "discovering-servers"
	case PhaseProbingLatency:
		return "probing-latency"
	case PhaseMeasuringDownload:
		return "measuring-download"
	case PhaseMeasuringUpload:
		return "measuring-upload"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EventKind distinguishes phase boundaries from in-phase progress.
type EventKind int

const (
	// EventTransition marks entry into a phase (or the terminal Done/Failed).
	EventTransition EventKind = iota
	// EventProgress carries a byte delta for one completed unit of work.
	EventProgress
)

// Event is delivered to the run's observer. Workers never call observer code
// directly: completions flow over a channel and a single consumer (the run
// goroutine) forwards them, so observers see a serial stream and need no
// locking of their own.
type Event struct {
	Kind  EventKind
	Phase Phase
	// Bytes is the delta for EventProgress events. The sum of all deltas
	// observed within a phase equals exactly the byte total used for that
	// phase's throughput figure.
	Bytes int64
	// RateBps is a smoothed cumulative throughput estimate for display;
	// the final result uses exact totals, not this.
	RateBps float64
	// Reason is set on the PhaseFailed transition.
	Reason string
}

// Observer receives events from a run. It is invoked from the engine's run
// goroutine; callers marshal to their own display context as needed.
type Observer func(Event)
