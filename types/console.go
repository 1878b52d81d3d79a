package types

// ConsoleKind tags a ConsoleEvent.
type ConsoleKind string

const (
	ConsoleLine     ConsoleKind = "line"     // one line of program output
	ConsoleError    ConsoleKind = "error"    // process-level failure or user stop
	ConsoleFinished ConsoleKind = "finished" // program exited successfully
)

// ConsoleEvent is one observable output of the reconstruction process.
type ConsoleEvent struct {
	Kind ConsoleKind `json:"kind"`
	Text string      `json:"text,omitempty"`
}

func LineEvent(text string) ConsoleEvent  { return ConsoleEvent{Kind: ConsoleLine, Text: text} }
func ErrorEvent(text string) ConsoleEvent { return ConsoleEvent{Kind: ConsoleError, Text: text} }
func FinishedEvent() ConsoleEvent         { return ConsoleEvent{Kind: ConsoleFinished} }
