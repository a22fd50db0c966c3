package lesson

// Phase identifies where a learner is in the lesson conversation.
type Phase string

const (
	// PhaseAwaitingName: the learner has not introduced themselves yet.
	PhaseAwaitingName Phase = "awaiting_name"

	// PhaseAwaitingProfile: waiting for the pre-survey profile that seeds
	// the initial level.
	PhaseAwaitingProfile Phase = "awaiting_profile"

	// PhaseAwaitingTheme: waiting for a lesson theme. Skipped entirely when
	// personalization is disabled.
	PhaseAwaitingTheme Phase = "awaiting_theme"

	// PhaseAwaitingStart: ready for the learner to type "start".
	PhaseAwaitingStart Phase = "awaiting_start"

	// PhaseInLesson: a lesson turn is in flight (generation, recording, or
	// transcription outstanding).
	PhaseInLesson Phase = "in_lesson"
)

// IsValid reports whether p is a recognised phase.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseAwaitingName, PhaseAwaitingProfile, PhaseAwaitingTheme,
		PhaseAwaitingStart, PhaseInLesson:
		return true
	}
	return false
}

// HistorySize is the maximum number of past sentences kept as generation
// context. The original calibration used the five most recent sentences.
const HistorySize = 5

// History is a bounded FIFO of past lesson records of the form
// "level: {level} {sentence}". Appending beyond [HistorySize] evicts the
// oldest entry. The zero value is ready to use. History is not safe for
// concurrent use; the owning [Machine] serialises access.
type History struct {
	entries []string
}

// Append adds a record, evicting the oldest entry when the history already
// holds [HistorySize] records.
func (h *History) Append(record string) {
	h.entries = append(h.entries, record)
	if len(h.entries) > HistorySize {
		h.entries = h.entries[1:]
	}
}

// Len returns the number of retained records.
func (h *History) Len() int { return len(h.entries) }

// Entries returns the retained records, oldest first. The caller must not
// mutate the returned slice.
func (h *History) Entries() []string { return h.entries }

// Session is the mutable per-learner lesson state. All mutation funnels
// through the [Machine] transition methods; nothing else may write these
// fields once the session is handed to a machine.
type Session struct {
	// UserID is set once during PhaseAwaitingName and immutable afterwards.
	UserID string

	// Level is the current difficulty, always within [MinLevel, MaxLevel].
	Level int

	// LevelHistory records every level value ever reached, append-only.
	// Used for charting; never shrinks.
	LevelHistory []int

	// Theme is the free-text lesson theme. Mutable any time before a lesson
	// turn starts.
	Theme string

	// Phase is the current conversation phase.
	Phase Phase

	// History holds the recent sentence records used as generation context.
	History History

	// CurrentSentence is the most recently generated lesson sentence. It is
	// kept until overwritten by the next turn.
	CurrentSentence string
}

// NewSession returns a session at the start of the conversation with the
// level defaulted to [MinLevel].
func NewSession() *Session {
	return &Session{
		Level: MinLevel,
		Phase: PhaseAwaitingName,
	}
}

// setLevel clamps and assigns a new level and appends it to the level
// history.
func (s *Session) setLevel(level int) {
	s.Level = ClampLevel(level)
	s.LevelHistory = append(s.LevelHistory, s.Level)
}
