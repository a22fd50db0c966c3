package lesson

// EventType discriminates the JSON events pushed to the browser during a
// session.
type EventType string

const (
	// EventMessage is a chat bubble from the tutor.
	EventMessage EventType = "message"

	// EventCountdown is one tick of the pre-capture countdown. Seconds
	// counts down to zero.
	EventCountdown EventType = "countdown"

	// EventCaptureStart tells the client to start recording the microphone.
	EventCaptureStart EventType = "capture_start"

	// EventCaptureStop tells the client to stop recording and upload what it
	// captured.
	EventCaptureStop EventType = "capture_stop"

	// EventScore carries the scored result of a lesson turn.
	EventScore EventType = "score"

	// EventLevel announces a level value, both the initial grading and every
	// subsequent change.
	EventLevel EventType = "level"
)

// Event is one server-to-client notification. Only the fields relevant to
// the Type are populated; the rest marshal away under omitempty.
type Event struct {
	Type EventType `json:"type"`

	// Text is the chat message for EventMessage and the HTML pretty diff
	// for EventScore.
	Text string `json:"text,omitempty"`

	// Audio is base64-encoded synthesized speech accompanying a message.
	Audio string `json:"audio,omitempty"`

	// Seconds is the remaining countdown for EventCountdown.
	Seconds int `json:"seconds,omitempty"`

	// Score is the match score for EventScore.
	Score float64 `json:"score,omitempty"`

	// Level is the current level for EventLevel and EventScore.
	Level int `json:"level,omitempty"`

	// Transcription is what the recognizer heard, for EventScore.
	Transcription string `json:"transcription,omitempty"`

	// Hints carries pronunciation feedback for EventScore.
	Hints []WordHint `json:"hints,omitempty"`
}

// EventSink receives events for delivery to the learner's client. Emit must
// be safe for concurrent use; the machine and its timers may emit from
// different goroutines. Delivery is best-effort, a sink must never block the
// caller indefinitely.
type EventSink interface {
	Emit(Event)
}

// MessageEvent builds a plain chat message event.
func MessageEvent(text string) Event {
	return Event{Type: EventMessage, Text: text}
}
