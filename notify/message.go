package notify

// Type discriminates notification messages on the wire.
type Type string

const (
	TypeConsoleOutput   Type = "NewConsoleOutput"
	TypeError           Type = "Error"
	TypeFinished        Type = "Finished"
	TypeProgressChanged Type = "ProgressChanged"
	TypeImageReady      Type = "ImageReady"
	TypeCaptureFinished Type = "CaptureFinished"
)

// Message is one push notification. Encoded as {"type": ..., "body": ...};
// body is omitted for messages without payload.
type Message struct {
	Type Type   `json:"type"`
	Body string `json:"body,omitempty"`
}

func NewConsoleOutput(line string) Message { return Message{Type: TypeConsoleOutput, Body: line} }
func Error(text string) Message            { return Message{Type: TypeError, Body: text} }
func Finished() Message                    { return Message{Type: TypeFinished} }
func ProgressChanged() Message             { return Message{Type: TypeProgressChanged} }

// ImageReady announces a newly stored image by local name.
func ImageReady(name string) Message { return Message{Type: TypeImageReady, Body: name} }

// CaptureFinished announces that every planned image has been synchronised.
func CaptureFinished() Message { return Message{Type: TypeCaptureFinished} }
