package react

import "cryobank/contract"

// EventKind labels loop progress notifications.
type EventKind string

const (
	EventStepStarted  EventKind = "step_started"
	EventTextDelta    EventKind = "text_delta"
	EventToolStarted  EventKind = "tool_started"
	EventToolFinished EventKind = "tool_finished"
	EventTerminated   EventKind = "terminated"
)

// Event is one progress notification from a running loop. Surfaces use it
// to stream partial text and show tool activity; it carries no control.
type Event struct {
	Kind      EventKind
	Step      int
	Text      string // EventTextDelta
	ToolName  string // tool events
	ToolCall  string // tool call id
	Result    *contract.Result
	Reason    string // EventTerminated
}

// Termination reasons.
const (
	ReasonAnswered     = "answered"
	ReasonMaxSteps     = "max_steps"
	ReasonEmpty        = "empty_response"
	ReasonStreamFailed = "llm_stream_failed"
	ReasonCancelled    = "cancelled"
)

// RunResult is the loop's final report. OK means a usable answer exists,
// even a forced best-effort one; ErrorCode explains degraded terminations.
type RunResult struct {
	Answer    string
	OK        bool
	ErrorCode string
	Reason    string
	Steps     int
	ToolCalls int
	Staged    int // write proposals staged during this run
}
