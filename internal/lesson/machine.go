package lesson

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/echolalia-dev/echolalia/internal/recorder"
)

// ErrUnexpectedPhase is returned when an operation arrives in a phase that
// cannot accept it, e.g. a profile submission outside [PhaseAwaitingProfile]
// or a recording outside an open capture window.
var ErrUnexpectedPhase = errors.New("lesson: operation not valid in current phase")

// leadInSeconds is the delay between the learner typing "start" and the
// lesson sentence being generated, announced in the lead-in message.
const leadInSeconds = 3

// nonPersonalizedTheme is the theme recorded when personalization is off.
const nonPersonalizedTheme = "This user is using non personalized speech shadowing"

// Exchange is the language and speech back end of a lesson turn. Implemented
// by exchange.Service; mocked in tests.
type Exchange interface {
	// Complete runs a chat completion with a system prompt and one user
	// message and returns the generated text.
	Complete(ctx context.Context, systemPrompt, userContent string) (string, error)

	// Generate runs a system-prompt-only completion and optionally
	// synthesizes the result. audioBase64 is empty when synthesis is
	// disabled.
	Generate(ctx context.Context, systemPrompt string) (text, audioBase64 string, err error)

	// Transcribe converts a learner recording to text.
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Attempt is one persisted grading or shadowing attempt.
type Attempt struct {
	User            string
	OriginalText    string
	TranscribedText string
	Level           int
	Theme           string
	Timestamp       time.Time
}

// Learner is the durable per-user state that survives across sessions.
type Learner struct {
	Name         string
	Level        int
	Theme        string
	LevelHistory []int
}

// Store persists learners and their attempts. Implemented by the PostgreSQL
// records store; mocked in tests.
type Store interface {
	// Learner returns the stored learner by name, or nil when unknown.
	Learner(ctx context.Context, name string) (*Learner, error)

	// SaveLearner upserts the learner's durable state.
	SaveLearner(ctx context.Context, l Learner) error

	// SaveAttempt records one attempt.
	SaveAttempt(ctx context.Context, a Attempt) error
}

// NoveltyIndex tracks generated sentences per learner and reports how close
// a new sentence is to anything generated before. Optional.
type NoveltyIndex interface {
	// Observe indexes sentence for user and returns the similarity to the
	// nearest previously indexed sentence. repeat is true when the sentence
	// is a near-duplicate.
	Observe(ctx context.Context, user, sentence string) (similarity float64, repeat bool, err error)
}

// Option configures a [Machine].
type Option func(*Machine)

// WithLogger sets the machine's logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(m *Machine) { m.log = log }
}

// WithPersonalization toggles themed lessons. When off, the theme phase is
// skipped and a fixed placeholder theme is recorded.
func WithPersonalization(enabled bool) Option {
	return func(m *Machine) { m.personalization = enabled }
}

// WithNoveltyIndex attaches a sentence novelty index.
func WithNoveltyIndex(idx NoveltyIndex) Option {
	return func(m *Machine) { m.novelty = idx }
}

// WithRecorderOptions forwards options to every recording schedule the
// machine creates, and shortens the lead-in tick to the same interval when
// [recorder.WithTickInterval] is among them.
func WithRecorderOptions(opts ...recorder.Option) Option {
	return func(m *Machine) { m.recorderOpts = opts }
}

// WithTickInterval overrides the one-second lead-in tick, for tests.
func WithTickInterval(d time.Duration) Option {
	return func(m *Machine) { m.tickInterval = d }
}

// Machine drives one learner's lesson conversation. All entry points
// serialize on an internal mutex, so a machine behaves as a single logical
// session regardless of how many goroutines deliver input to it.
type Machine struct {
	exchange Exchange
	store    Store
	sink     EventSink
	novelty  NoveltyIndex
	log      *slog.Logger

	personalization bool
	recorderOpts    []recorder.Option
	tickInterval    time.Duration

	mu       sync.Mutex
	session  *Session
	schedule *recorder.Schedule
	// capture is true between capture start and the arrival of the
	// recording.
	capture bool
}

// NewMachine returns a machine at the start of the conversation.
func NewMachine(exchange Exchange, store Store, sink EventSink, opts ...Option) *Machine {
	m := &Machine{
		exchange:     exchange,
		store:        store,
		sink:         sink,
		log:          slog.Default(),
		tickInterval: time.Second,
		session:      NewSession(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Session returns a snapshot of the current session state.
func (m *Machine) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.session
}

// HandleText processes one typed chat message according to the current
// phase. Unrecognized input is answered with a chat message, not an error.
func (m *Machine) HandleText(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := strings.TrimSpace(text)

	switch m.session.Phase {
	case PhaseAwaitingName:
		return m.handleName(ctx, msg)

	case PhaseAwaitingProfile:
		// The profile arrives through HandleProfile; typed messages just
		// move the conversation along once a theme exists.
		if m.themeMissing() {
			m.sink.Emit(MessageEvent(themeRequiredMessage))
			return nil
		}
		m.sink.Emit(MessageEvent("Hello please type start to begin your lesson"))
		m.session.Phase = PhaseAwaitingStart
		return nil

	case PhaseAwaitingTheme:
		if m.personalization {
			m.session.Theme = msg
			m.sink.Emit(MessageEvent(fmt.Sprintf("Ok %s please type start when you're ready to begin", m.session.UserID)))
		} else {
			m.session.Theme = nonPersonalizedTheme
		}
		m.session.Phase = PhaseAwaitingStart
		m.saveLearner(ctx)
		return nil

	case PhaseAwaitingStart:
		// The theme guard outranks the start keyword.
		if m.themeMissing() {
			m.sink.Emit(MessageEvent(themeRequiredMessage))
			return nil
		}
		if strings.ToLower(msg) != "start" {
			m.sink.Emit(MessageEvent("Sorry, I didn't get that. Please respond with start when you're ready for the lesson"))
			return nil
		}
		if m.personalization {
			m.sink.Emit(MessageEvent(fmt.Sprintf(
				"Ok the lesson's theme is %s and will begin in %d seconds. When the audio clip begins to play, wait until the audio finishes and shadow the sentence aloud.",
				m.session.Theme, leadInSeconds)))
		} else {
			m.sink.Emit(MessageEvent(fmt.Sprintf(
				"Ok the lesson will begin in %d seconds. When the audio clip begins to play, wait until the audio finishes and shadow the sentence aloud.",
				leadInSeconds)))
		}
		m.session.Phase = PhaseInLesson
		go m.leadIn(context.WithoutCancel(ctx), leadInSeconds)
		return nil

	case PhaseInLesson:
		// Same precedence as the start gate.
		if m.themeMissing() {
			m.sink.Emit(MessageEvent(themeRequiredMessage))
			return nil
		}
		m.sink.Emit(MessageEvent("Sorry, lesson currently in progress"))
		return nil
	}

	return fmt.Errorf("lesson: unknown phase %q", m.session.Phase)
}

const themeRequiredMessage = "Hello please set a theme in the change theme box to the left for your next lesson before continuing."

// handleName records the learner's name and either resumes a returning
// learner at the start gate or asks a new learner for the pre-survey
// profile. Called with the mutex held.
func (m *Machine) handleName(ctx context.Context, name string) error {
	m.session.UserID = name

	known, err := m.store.Learner(ctx, name)
	if err != nil {
		m.log.Error("learner lookup failed", "user", name, "error", err)
	}
	if known != nil {
		m.session.Level = ClampLevel(known.Level)
		m.session.Theme = known.Theme
		m.session.LevelHistory = append([]int(nil), known.LevelHistory...)
		m.session.Phase = PhaseAwaitingStart

		suffix := strconv.Itoa(m.session.Level)
		if m.session.Level == MaxLevel {
			suffix = "10, the highest level!"
		}
		m.sink.Emit(MessageEvent(fmt.Sprintf(
			"Hey %s, welcome back! Please type start to begin your lesson on %s. Your current level is: %s",
			name, m.session.Theme, suffix)))
		m.sink.Emit(Event{Type: EventLevel, Level: m.session.Level})
		return nil
	}

	m.sink.Emit(MessageEvent(fmt.Sprintf(
		"Hello %s, please fill out the pre-survey form, your initial level will be graded from this profile", name)))
	m.session.Phase = PhaseAwaitingProfile
	return nil
}

// HandleProfile grades the pre-survey profile into an initial level. Only
// valid in [PhaseAwaitingProfile].
func (m *Machine) HandleProfile(ctx context.Context, profile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.Phase != PhaseAwaitingProfile {
		return fmt.Errorf("%w: profile submitted in phase %q", ErrUnexpectedPhase, m.session.Phase)
	}

	graded, err := m.exchange.Complete(ctx, GradeProfilePrompt(), profile)
	if err != nil {
		m.sink.Emit(MessageEvent("There is something wrong, please try again"))
		return fmt.Errorf("lesson: grading profile: %w", err)
	}
	level, err := ParseLevel(graded)
	if err != nil {
		m.sink.Emit(MessageEvent("There is something wrong, please try again"))
		return err
	}

	m.session.setLevel(level)
	m.saveAttempt(ctx, Attempt{
		User:            m.session.UserID,
		OriginalText:    profile,
		TranscribedText: graded,
		Level:           m.session.Level,
		Theme:           m.session.Theme,
		Timestamp:       time.Now(),
	})

	m.sink.Emit(MessageEvent(fmt.Sprintf("From you introduction, your initial level is %d", m.session.Level)))
	m.sink.Emit(Event{Type: EventLevel, Level: m.session.Level})

	if m.personalization {
		m.sink.Emit(MessageEvent("Please set a theme for your lesson"))
		m.session.Phase = PhaseAwaitingTheme
	} else {
		m.session.Theme = nonPersonalizedTheme
		m.sink.Emit(MessageEvent(fmt.Sprintf("Ok %s please type start when you're ready to begin", m.session.UserID)))
		m.session.Phase = PhaseAwaitingStart
	}
	m.saveLearner(ctx)
	return nil
}

// SetTheme changes the lesson theme. Valid any time except mid-lesson.
func (m *Machine) SetTheme(ctx context.Context, theme string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.Phase == PhaseInLesson {
		return fmt.Errorf("%w: theme change during a lesson", ErrUnexpectedPhase)
	}
	m.session.Theme = strings.TrimSpace(theme)
	if m.session.Phase == PhaseAwaitingTheme {
		m.session.Phase = PhaseAwaitingStart
	}
	m.sink.Emit(MessageEvent(fmt.Sprintf("Ok, the next lesson's theme is %s", m.session.Theme)))
	m.saveLearner(ctx)
	return nil
}

// StopCapture ends an open capture window early, as when the learner taps
// stop before the deadline. Safe to call at any time.
func (m *Machine) StopCapture() {
	m.mu.Lock()
	s := m.schedule
	m.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

// HandleRecording scores the learner's uploaded recording against the
// current sentence and closes the turn. Only valid while a capture window is
// open (or just force-closed by the deadline).
func (m *Machine) HandleRecording(ctx context.Context, audio []byte) error {
	m.mu.Lock()
	if m.session.Phase != PhaseInLesson || !m.capture {
		m.mu.Unlock()
		return fmt.Errorf("%w: recording with no open capture", ErrUnexpectedPhase)
	}
	m.capture = false
	if m.schedule != nil {
		m.schedule.Stop()
		m.schedule = nil
	}
	reference := m.session.CurrentSentence
	m.mu.Unlock()

	transcription, err := m.exchange.Transcribe(ctx, audio)
	if err != nil {
		m.mu.Lock()
		m.session.Phase = PhaseAwaitingStart
		m.mu.Unlock()
		m.sink.Emit(MessageEvent("There is something wrong, please try again"))
		return fmt.Errorf("lesson: transcribing recording: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	normHyp := Normalize(transcription)
	normRef := Normalize(reference)

	score, err := Score(normHyp, normRef)
	if err != nil {
		// Degenerate input leaves the level alone and reopens the gate.
		m.session.Phase = PhaseAwaitingStart
		m.sink.Emit(MessageEvent("There is something wrong, please try again"))
		return fmt.Errorf("lesson: scoring turn: %w", err)
	}

	result := ScoreResult{
		MatchScore:    score,
		PreviousLevel: m.session.Level,
		NewLevel:      NextLevel(score, m.session.Level),
		Pretty:        PrettyDiff(normRef, normHyp),
		Hints:         WordHints(normHyp, normRef),
	}
	m.session.setLevel(result.NewLevel)

	m.saveAttempt(ctx, Attempt{
		User:            m.session.UserID,
		OriginalText:    reference,
		TranscribedText: transcription,
		Level:           result.PreviousLevel,
		Theme:           m.session.Theme,
		Timestamp:       time.Now(),
	})

	m.sink.Emit(Event{
		Type:          EventScore,
		Text:          result.Pretty,
		Score:         result.MatchScore,
		Level:         result.NewLevel,
		Transcription: transcription,
		Hints:         result.Hints,
	})
	m.sink.Emit(MessageEvent(fmt.Sprintf("You received a score of %v out of 100", result.MatchScore)))

	suffix := strconv.Itoa(result.NewLevel)
	if result.NewLevel == MaxLevel {
		suffix = "10, the highest level!"
	}
	m.sink.Emit(MessageEvent(fmt.Sprintf("Please type start for your next lesson. Your current level is: %s", suffix)))
	m.sink.Emit(Event{Type: EventLevel, Level: result.NewLevel})

	m.session.Phase = PhaseAwaitingStart
	m.saveLearner(ctx)
	return nil
}

// Close cancels any outstanding schedule. The machine must not be used
// afterwards.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.schedule != nil {
		m.schedule.Cancel()
		m.schedule = nil
	}
	m.capture = false
}

// leadIn ticks down the announced delay, then begins the turn.
func (m *Machine) leadIn(ctx context.Context, seconds int) {
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()
	for remaining := seconds; remaining > 0; remaining-- {
		m.sink.Emit(Event{Type: EventCountdown, Seconds: remaining})
		<-ticker.C
	}
	m.beginTurn(ctx)
}

// beginTurn generates the lesson sentence and schedules the capture window.
// On generation failure the session stays in the lesson phase and the
// learner is asked to retry; no capture is scheduled.
func (m *Machine) beginTurn(ctx context.Context) {
	m.mu.Lock()
	level := m.session.Level
	theme := m.session.Theme
	if !m.personalization {
		theme = ""
	}
	d, err := DifficultyFor(level)
	if err != nil {
		// Unreachable while setLevel clamps, but fail loudly if it ever
		// happens.
		m.mu.Unlock()
		m.log.Error("difficulty lookup failed", "level", level, "error", err)
		m.sink.Emit(MessageEvent("There is something wrong, please try again"))
		return
	}
	prompt := GenerationPromptWithHistory(GenerationPrompt(d, theme), &m.session.History)
	m.mu.Unlock()

	text, audio, err := m.exchange.Generate(ctx, prompt)
	if err != nil {
		m.log.Error("sentence generation failed", "user", m.Session().UserID, "error", err)
		m.sink.Emit(MessageEvent("There is something wrong, please try again"))
		return
	}
	sentence := StripQuotes(text)

	m.mu.Lock()
	m.session.CurrentSentence = sentence
	m.session.History.Append(fmt.Sprintf("level: %d %s", level, sentence))
	user := m.session.UserID
	m.mu.Unlock()

	if m.novelty != nil {
		if sim, repeat, err := m.novelty.Observe(ctx, user, sentence); err != nil {
			m.log.Warn("novelty index failed", "user", user, "error", err)
		} else if repeat {
			m.log.Info("generated near-duplicate sentence", "user", user, "similarity", sim)
		}
	}

	m.sink.Emit(Event{Type: EventMessage, Text: sentence, Audio: audio})

	words := len(strings.Fields(sentence))
	countdown := recorder.CountdownSeconds(words, level)

	m.mu.Lock()
	m.schedule = recorder.Start(countdown, recorder.Hooks{
		OnTick: func(remaining int) {
			m.sink.Emit(Event{Type: EventCountdown, Seconds: remaining})
		},
		OnCaptureStart: func() {
			m.mu.Lock()
			m.capture = true
			m.mu.Unlock()
			m.sink.Emit(Event{Type: EventCaptureStart})
		},
		OnCaptureStop: func(forced bool) {
			m.sink.Emit(Event{Type: EventCaptureStop})
			if forced {
				m.log.Info("capture force-stopped at deadline", "user", user)
			}
		},
	}, m.recorderOpts...)
	m.mu.Unlock()
}

// themeMissing reports whether personalization requires a theme that has not
// been set. Called with the mutex held.
func (m *Machine) themeMissing() bool {
	return m.personalization && m.session.Theme == ""
}

// saveLearner persists durable learner state, logging failures. Called with
// the mutex held.
func (m *Machine) saveLearner(ctx context.Context) {
	if m.session.UserID == "" {
		return
	}
	l := Learner{
		Name:         m.session.UserID,
		Level:        m.session.Level,
		Theme:        m.session.Theme,
		LevelHistory: append([]int(nil), m.session.LevelHistory...),
	}
	if err := m.store.SaveLearner(ctx, l); err != nil {
		m.log.Error("saving learner failed", "user", l.Name, "error", err)
	}
}

// saveAttempt persists one attempt, logging failures. Called with the mutex
// held.
func (m *Machine) saveAttempt(ctx context.Context, a Attempt) {
	if err := m.store.SaveAttempt(ctx, a); err != nil {
		m.log.Error("saving attempt failed", "user", a.User, "error", err)
	}
}
