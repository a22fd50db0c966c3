package lesson

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/echolalia-dev/echolalia/internal/recorder"
)

// mockExchange is a scripted lesson back end.
type mockExchange struct {
	mu sync.Mutex

	CompleteResult string
	CompleteErr    error

	GenerateText string
	GenerateErr  error

	TranscribeResult string
	TranscribeErr    error

	CompletePrompts []string
	GeneratePrompts []string
}

func (e *mockExchange) Complete(_ context.Context, systemPrompt, _ string) (string, error) {
	e.mu.Lock()
	e.CompletePrompts = append(e.CompletePrompts, systemPrompt)
	e.mu.Unlock()
	return e.CompleteResult, e.CompleteErr
}

func (e *mockExchange) Generate(_ context.Context, systemPrompt string) (string, string, error) {
	e.mu.Lock()
	e.GeneratePrompts = append(e.GeneratePrompts, systemPrompt)
	e.mu.Unlock()
	return e.GenerateText, "", e.GenerateErr
}

func (e *mockExchange) Transcribe(context.Context, []byte) (string, error) {
	return e.TranscribeResult, e.TranscribeErr
}

// mockMachineStore is an in-memory lesson.Store.
type mockMachineStore struct {
	mu       sync.Mutex
	learners map[string]Learner
	attempts []Attempt
}

func (s *mockMachineStore) Learner(_ context.Context, name string) (*Learner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.learners[name]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (s *mockMachineStore) SaveLearner(_ context.Context, l Learner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.learners == nil {
		s.learners = make(map[string]Learner)
	}
	s.learners[l.Name] = l
	return nil
}

func (s *mockMachineStore) SaveAttempt(_ context.Context, a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, a)
	return nil
}

func (s *mockMachineStore) savedAttempts() []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Attempt(nil), s.attempts...)
}

// recordingSink captures emitted events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// lastMessage returns the text of the most recent message event.
func (s *recordingSink) lastMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Type == EventMessage {
			return s.events[i].Text
		}
	}
	return ""
}

// waitForEvent polls until an event of the given type shows up or the test
// deadline passes.
func waitForEvent(t *testing.T, sink *recordingSink, typ EventType) Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range sink.all() {
			if ev.Type == typ {
				return ev
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q event; got %+v", typ, sink.all())
	return Event{}
}

// fastOpts makes lead-in and capture countdowns tick in milliseconds.
func fastOpts(extra ...Option) []Option {
	opts := []Option{
		WithTickInterval(time.Millisecond),
		WithRecorderOptions(recorder.WithTickInterval(time.Millisecond)),
	}
	return append(opts, extra...)
}

func TestHandleText_NewLearnerAsksForProfile(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(&mockExchange{}, &mockMachineStore{}, sink)
	defer m.Close()

	if err := m.HandleText(context.Background(), "Kim"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}

	s := m.Session()
	if s.UserID != "Kim" {
		t.Errorf("user: got %q, want Kim", s.UserID)
	}
	if s.Phase != PhaseAwaitingProfile {
		t.Errorf("phase: got %q, want %q", s.Phase, PhaseAwaitingProfile)
	}
	if !strings.Contains(sink.lastMessage(), "pre-survey") {
		t.Errorf("expected pre-survey request, got %q", sink.lastMessage())
	}
}

func TestHandleText_ReturningLearnerResumes(t *testing.T) {
	store := &mockMachineStore{learners: map[string]Learner{
		"Kim": {Name: "Kim", Level: 6, Theme: "cooking", LevelHistory: []int{5, 6}},
	}}
	sink := &recordingSink{}
	m := NewMachine(&mockExchange{}, store, sink)
	defer m.Close()

	if err := m.HandleText(context.Background(), "Kim"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}

	s := m.Session()
	if s.Phase != PhaseAwaitingStart {
		t.Errorf("phase: got %q, want %q", s.Phase, PhaseAwaitingStart)
	}
	if s.Level != 6 || s.Theme != "cooking" {
		t.Errorf("restored state: level %d theme %q", s.Level, s.Theme)
	}
	if !strings.Contains(sink.lastMessage(), "welcome back") {
		t.Errorf("expected welcome back, got %q", sink.lastMessage())
	}

	lv := waitForEvent(t, sink, EventLevel)
	if lv.Level != 6 {
		t.Errorf("level event: got %d, want 6", lv.Level)
	}
}

func TestHandleText_ReturningMaxLevelLearner(t *testing.T) {
	store := &mockMachineStore{learners: map[string]Learner{
		"Ada": {Name: "Ada", Level: 10, Theme: "history"},
	}}
	sink := &recordingSink{}
	m := NewMachine(&mockExchange{}, store, sink)
	defer m.Close()

	if err := m.HandleText(context.Background(), "Ada"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if !strings.Contains(sink.lastMessage(), "10, the highest level!") {
		t.Errorf("expected the max-level greeting, got %q", sink.lastMessage())
	}
}

func TestHandleProfile_WrongPhase(t *testing.T) {
	m := NewMachine(&mockExchange{}, &mockMachineStore{}, &recordingSink{})
	defer m.Close()

	err := m.HandleProfile(context.Background(), "I study English daily.")
	if !errors.Is(err, ErrUnexpectedPhase) {
		t.Fatalf("expected ErrUnexpectedPhase, got %v", err)
	}
}

func TestHandleProfile_GradesInitialLevel(t *testing.T) {
	exch := &mockExchange{CompleteResult: "7"}
	store := &mockMachineStore{}
	sink := &recordingSink{}
	m := NewMachine(exch, store, sink, WithPersonalization(true))
	defer m.Close()
	ctx := context.Background()

	if err := m.HandleText(ctx, "Kim"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if err := m.HandleProfile(ctx, "I have studied English for two years."); err != nil {
		t.Fatalf("HandleProfile: %v", err)
	}

	s := m.Session()
	if s.Level != 7 {
		t.Errorf("level: got %d, want 7", s.Level)
	}
	if s.Phase != PhaseAwaitingTheme {
		t.Errorf("phase: got %q, want %q", s.Phase, PhaseAwaitingTheme)
	}

	var sawGrading bool
	for _, ev := range sink.all() {
		if ev.Type == EventMessage && ev.Text == "From you introduction, your initial level is 7" {
			sawGrading = true
		}
	}
	if !sawGrading {
		t.Errorf("grading announcement missing from %+v", sink.all())
	}

	attempts := store.savedAttempts()
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	if attempts[0].TranscribedText != "7" {
		t.Errorf("attempt transcription: got %q", attempts[0].TranscribedText)
	}
}

func TestHandleProfile_NonPersonalizedSkipsTheme(t *testing.T) {
	exch := &mockExchange{CompleteResult: "3"}
	sink := &recordingSink{}
	m := NewMachine(exch, &mockMachineStore{}, sink, WithPersonalization(false))
	defer m.Close()
	ctx := context.Background()

	if err := m.HandleText(ctx, "Kim"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if err := m.HandleProfile(ctx, "Beginner."); err != nil {
		t.Fatalf("HandleProfile: %v", err)
	}

	s := m.Session()
	if s.Phase != PhaseAwaitingStart {
		t.Errorf("phase: got %q, want %q", s.Phase, PhaseAwaitingStart)
	}
	if s.Theme != nonPersonalizedTheme {
		t.Errorf("theme: got %q, want the placeholder", s.Theme)
	}
}

func TestHandleProfile_GradingFailure(t *testing.T) {
	exch := &mockExchange{CompleteErr: errors.New("backend down")}
	sink := &recordingSink{}
	m := NewMachine(exch, &mockMachineStore{}, sink)
	defer m.Close()
	ctx := context.Background()

	if err := m.HandleText(ctx, "Kim"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if err := m.HandleProfile(ctx, "profile"); err == nil {
		t.Fatal("expected grading error")
	}
	if sink.lastMessage() != "There is something wrong, please try again" {
		t.Errorf("expected retry message, got %q", sink.lastMessage())
	}
	if got := m.Session().Phase; got != PhaseAwaitingProfile {
		t.Errorf("phase after failure: got %q, want %q", got, PhaseAwaitingProfile)
	}
}

func TestHandleProfile_NonNumericGrade(t *testing.T) {
	exch := &mockExchange{CompleteResult: "around level five"}
	m := NewMachine(exch, &mockMachineStore{}, &recordingSink{})
	defer m.Close()
	ctx := context.Background()

	if err := m.HandleText(ctx, "Kim"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if err := m.HandleProfile(ctx, "profile"); err == nil {
		t.Fatal("expected parse error for a non-numeric grade")
	}
}

func TestHandleProfile_GradeWithTrailingText(t *testing.T) {
	// Models rarely answer with a bare integer even when asked to.
	exch := &mockExchange{CompleteResult: "7."}
	store := &mockMachineStore{}
	sink := &recordingSink{}
	m := NewMachine(exch, store, sink, WithPersonalization(true))
	defer m.Close()
	ctx := context.Background()

	if err := m.HandleText(ctx, "Kim"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if err := m.HandleProfile(ctx, "I have studied English for two years."); err != nil {
		t.Fatalf("HandleProfile: %v", err)
	}

	s := m.Session()
	if s.Level != 7 {
		t.Errorf("level: got %d, want 7", s.Level)
	}
	if s.Phase != PhaseAwaitingTheme {
		t.Errorf("phase: got %q, want %q", s.Phase, PhaseAwaitingTheme)
	}
}

func TestHandleText_ThemeGuardDuringLesson(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(&mockExchange{}, &mockMachineStore{}, sink, WithPersonalization(true))
	defer m.Close()

	// Force the one state the transition table cannot reach: mid-lesson with
	// no theme. The guard must still outrank the in-progress message.
	m.mu.Lock()
	m.session.UserID = "Kim"
	m.session.Phase = PhaseInLesson
	m.session.Theme = ""
	m.mu.Unlock()

	if err := m.HandleText(context.Background(), "hello"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if got := sink.lastMessage(); got != themeRequiredMessage {
		t.Errorf("message: got %q, want the theme-required prompt", got)
	}
}

func TestHandleText_ThemeGuardOutranksStart(t *testing.T) {
	store := &mockMachineStore{learners: map[string]Learner{
		"Kim": {Name: "Kim", Level: 3}, // no stored theme
	}}
	sink := &recordingSink{}
	m := NewMachine(&mockExchange{}, store, sink, WithPersonalization(true))
	defer m.Close()
	ctx := context.Background()

	if err := m.HandleText(ctx, "Kim"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if err := m.HandleText(ctx, "start"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}

	if sink.lastMessage() != themeRequiredMessage {
		t.Errorf("expected theme guard message, got %q", sink.lastMessage())
	}
	if got := m.Session().Phase; got != PhaseAwaitingStart {
		t.Errorf("phase: got %q, want %q", got, PhaseAwaitingStart)
	}
}

func TestHandleText_NonStartKeywordRejected(t *testing.T) {
	store := &mockMachineStore{learners: map[string]Learner{
		"Kim": {Name: "Kim", Level: 3, Theme: "cooking"},
	}}
	sink := &recordingSink{}
	m := NewMachine(&mockExchange{}, store, sink, WithPersonalization(true))
	defer m.Close()
	ctx := context.Background()

	if err := m.HandleText(ctx, "Kim"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if err := m.HandleText(ctx, "begin"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}

	if !strings.Contains(sink.lastMessage(), "didn't get that") {
		t.Errorf("expected rejection message, got %q", sink.lastMessage())
	}
	if got := m.Session().Phase; got != PhaseAwaitingStart {
		t.Errorf("phase: got %q, want %q", got, PhaseAwaitingStart)
	}
}

func TestSetTheme_MidLessonRejected(t *testing.T) {
	store := &mockMachineStore{learners: map[string]Learner{
		"Kim": {Name: "Kim", Level: 1, Theme: "cooking"},
	}}
	exch := &mockExchange{GenerateText: `"The cat sat."`}
	sink := &recordingSink{}
	m := NewMachine(exch, store, sink, fastOpts(WithPersonalization(true))...)
	defer m.Close()
	ctx := context.Background()

	if err := m.HandleText(ctx, "Kim"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if err := m.HandleText(ctx, "Start"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}

	if err := m.SetTheme(ctx, "gardening"); !errors.Is(err, ErrUnexpectedPhase) {
		t.Fatalf("expected ErrUnexpectedPhase, got %v", err)
	}
}

func TestSetTheme_FromThemePhase(t *testing.T) {
	exch := &mockExchange{CompleteResult: "4"}
	sink := &recordingSink{}
	m := NewMachine(exch, &mockMachineStore{}, sink, WithPersonalization(true))
	defer m.Close()
	ctx := context.Background()

	if err := m.HandleText(ctx, "Kim"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if err := m.HandleProfile(ctx, "profile"); err != nil {
		t.Fatalf("HandleProfile: %v", err)
	}
	if err := m.SetTheme(ctx, "  gardening  "); err != nil {
		t.Fatalf("SetTheme: %v", err)
	}

	s := m.Session()
	if s.Theme != "gardening" {
		t.Errorf("theme: got %q, want gardening", s.Theme)
	}
	if s.Phase != PhaseAwaitingStart {
		t.Errorf("phase: got %q, want %q", s.Phase, PhaseAwaitingStart)
	}
}

func TestFullTurn_PerfectShadowPromotes(t *testing.T) {
	store := &mockMachineStore{learners: map[string]Learner{
		"Kim": {Name: "Kim", Level: 1, Theme: "cooking"},
	}}
	exch := &mockExchange{
		GenerateText:     `"The cat sat."`,
		TranscribeResult: "The cat sat.",
	}
	sink := &recordingSink{}
	m := NewMachine(exch, store, sink, fastOpts(WithPersonalization(true))...)
	defer m.Close()
	ctx := context.Background()

	if err := m.HandleText(ctx, "Kim"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if err := m.HandleText(ctx, "Start"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if got := m.Session().Phase; got != PhaseInLesson {
		t.Fatalf("phase after start: got %q, want %q", got, PhaseInLesson)
	}

	// Mid-lesson chat is deflected.
	if err := m.HandleText(ctx, "hello?"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if sink.lastMessage() != "Sorry, lesson currently in progress" {
		t.Errorf("expected in-progress message, got %q", sink.lastMessage())
	}

	waitForEvent(t, sink, EventCaptureStart)
	if err := m.HandleRecording(ctx, []byte("audio")); err != nil {
		t.Fatalf("HandleRecording: %v", err)
	}

	score := waitForEvent(t, sink, EventScore)
	if score.Score != 100 {
		t.Errorf("score: got %v, want 100", score.Score)
	}
	if score.Level != 2 {
		t.Errorf("level after promotion: got %d, want 2", score.Level)
	}
	if score.Transcription != "The cat sat." {
		t.Errorf("transcription: got %q", score.Transcription)
	}

	s := m.Session()
	if s.Phase != PhaseAwaitingStart {
		t.Errorf("phase after turn: got %q, want %q", s.Phase, PhaseAwaitingStart)
	}
	if s.Level != 2 {
		t.Errorf("session level: got %d, want 2", s.Level)
	}
	if s.History.Len() != 1 {
		t.Errorf("history: got %d entries, want 1", s.History.Len())
	}

	var sawScoreMsg bool
	for _, ev := range sink.all() {
		if ev.Type == EventMessage && ev.Text == "You received a score of 100 out of 100" {
			sawScoreMsg = true
		}
	}
	if !sawScoreMsg {
		t.Error("score announcement missing")
	}

	attempts := store.savedAttempts()
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	if attempts[0].OriginalText != "The cat sat." {
		t.Errorf("attempt original: got %q", attempts[0].OriginalText)
	}
	if attempts[0].Level != 1 {
		t.Errorf("attempt level should record the pre-turn level, got %d", attempts[0].Level)
	}
}

func TestHandleRecording_WithoutCapture(t *testing.T) {
	m := NewMachine(&mockExchange{}, &mockMachineStore{}, &recordingSink{})
	defer m.Close()

	err := m.HandleRecording(context.Background(), []byte("audio"))
	if !errors.Is(err, ErrUnexpectedPhase) {
		t.Fatalf("expected ErrUnexpectedPhase, got %v", err)
	}
}

func TestBeginTurn_GenerationFailure(t *testing.T) {
	store := &mockMachineStore{learners: map[string]Learner{
		"Kim": {Name: "Kim", Level: 1, Theme: "cooking"},
	}}
	exch := &mockExchange{GenerateErr: errors.New("backend down")}
	sink := &recordingSink{}
	m := NewMachine(exch, store, sink, fastOpts(WithPersonalization(true))...)
	defer m.Close()
	ctx := context.Background()

	if err := m.HandleText(ctx, "Kim"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if err := m.HandleText(ctx, "start"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sink.lastMessage() == "There is something wrong, please try again" {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected failure message, got %q", sink.lastMessage())
}

func TestBeginTurn_TranscriptionFailureReopensGate(t *testing.T) {
	store := &mockMachineStore{learners: map[string]Learner{
		"Kim": {Name: "Kim", Level: 1, Theme: "cooking"},
	}}
	exch := &mockExchange{
		GenerateText:  `"The cat sat."`,
		TranscribeErr: errors.New("backend down"),
	}
	sink := &recordingSink{}
	m := NewMachine(exch, store, sink, fastOpts(WithPersonalization(true))...)
	defer m.Close()
	ctx := context.Background()

	if err := m.HandleText(ctx, "Kim"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if err := m.HandleText(ctx, "start"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	waitForEvent(t, sink, EventCaptureStart)

	if err := m.HandleRecording(ctx, []byte("audio")); err == nil {
		t.Fatal("expected transcription error")
	}
	if got := m.Session().Phase; got != PhaseAwaitingStart {
		t.Errorf("phase after failure: got %q, want %q", got, PhaseAwaitingStart)
	}
}

func TestFullTurn_NoveltyIndexObserves(t *testing.T) {
	store := &mockMachineStore{learners: map[string]Learner{
		"Kim": {Name: "Kim", Level: 1, Theme: "cooking"},
	}}
	exch := &mockExchange{GenerateText: `"The cat sat."`}
	sink := &recordingSink{}
	nv := &recordingNovelty{}
	m := NewMachine(exch, store, sink, fastOpts(WithPersonalization(true), WithNoveltyIndex(nv))...)
	defer m.Close()
	ctx := context.Background()

	if err := m.HandleText(ctx, "Kim"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if err := m.HandleText(ctx, "start"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	waitForEvent(t, sink, EventCaptureStart)

	nv.mu.Lock()
	defer nv.mu.Unlock()
	if len(nv.observed) != 1 || nv.observed[0] != "The cat sat." {
		t.Errorf("novelty observations: got %v", nv.observed)
	}
}

// recordingNovelty records observed sentences.
type recordingNovelty struct {
	mu       sync.Mutex
	observed []string
}

func (n *recordingNovelty) Observe(_ context.Context, _, sentence string) (float64, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observed = append(n.observed, sentence)
	return 0, false, nil
}
