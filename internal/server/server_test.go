package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/echolalia-dev/echolalia/internal/config"
	"github.com/echolalia-dev/echolalia/internal/health"
	"github.com/echolalia-dev/echolalia/internal/lesson"
	"github.com/echolalia-dev/echolalia/pkg/provider/tts"
	ttsmock "github.com/echolalia-dev/echolalia/pkg/provider/tts/mock"
)

// fakeHub hands out machines built from stubs and records releases.
type fakeHub struct {
	mu       sync.Mutex
	openErr  error
	opened   []*lesson.Machine
	released []*lesson.Machine
}

func (h *fakeHub) Open(sink lesson.EventSink) (*lesson.Machine, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.openErr != nil {
		return nil, h.openErr
	}
	m := lesson.NewMachine(stubExchange{}, stubStore{}, sink)
	h.opened = append(h.opened, m)
	return m, nil
}

func (h *fakeHub) Release(m *lesson.Machine) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m.Close()
	h.released = append(h.released, m)
}

func (h *fakeHub) releasedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.released)
}

// stubExchange satisfies lesson.Exchange for socket tests.
type stubExchange struct{}

func (stubExchange) Complete(context.Context, string, string) (string, error) { return "5", nil }
func (stubExchange) Generate(context.Context, string) (string, string, error) {
	return "The cat sat.", "", nil
}
func (stubExchange) Transcribe(context.Context, []byte) (string, error) { return "", nil }

// stubStore satisfies lesson.Store with no persistence.
type stubStore struct{}

func (stubStore) Learner(context.Context, string) (*lesson.Learner, error) { return nil, nil }
func (stubStore) SaveLearner(context.Context, lesson.Learner) error        { return nil }
func (stubStore) SaveAttempt(context.Context, lesson.Attempt) error        { return nil }

// levelsFunc adapts a function to LevelReader.
type levelsFunc func(ctx context.Context, user string) ([]int, error)

func (f levelsFunc) LevelHistory(ctx context.Context, user string) ([]int, error) {
	return f(ctx, user)
}

func newTestServer(t *testing.T, levels LevelReader, opts ...Option) *httptest.Server {
	t.Helper()
	s := New(config.ServerConfig{ListenAddr: "127.0.0.1:0"}, &fakeHub{}, levels, opts...)
	ts := httptest.NewServer(s.http.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestHandleLevels_OK(t *testing.T) {
	levels := levelsFunc(func(_ context.Context, user string) ([]int, error) {
		if user != "Kim" {
			t.Errorf("user: got %q, want Kim", user)
		}
		return []int{3, 4, 5}, nil
	})
	ts := newTestServer(t, levels)

	resp, err := http.Get(ts.URL + "/api/levels/Kim")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var body levelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.User != "Kim" || len(body.Levels) != 3 {
		t.Errorf("body: %+v", body)
	}
}

func TestHandleLevels_UnknownUserYieldsEmptySlice(t *testing.T) {
	levels := levelsFunc(func(context.Context, string) ([]int, error) {
		return nil, nil
	})
	ts := newTestServer(t, levels)

	resp, err := http.Get(ts.URL + "/api/levels/nobody")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body levelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Levels == nil || len(body.Levels) != 0 {
		t.Errorf("expected empty (non-null) levels, got %#v", body.Levels)
	}
}

func TestHandleLevels_StoreError(t *testing.T) {
	levels := levelsFunc(func(context.Context, string) ([]int, error) {
		return nil, errors.New("database down")
	})
	ts := newTestServer(t, levels)

	resp, err := http.Get(ts.URL + "/api/levels/Kim")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
}

func TestHandleVoices_NotConfigured(t *testing.T) {
	ts := newTestServer(t, levelsFunc(func(context.Context, string) ([]int, error) {
		return nil, nil
	}))

	resp, err := http.Get(ts.URL + "/api/voices")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestHandleVoices_ListsProviderVoices(t *testing.T) {
	voices := &ttsmock.Provider{
		Voices: []tts.VoiceProfile{
			{ID: "v1", Name: "Rachel", Provider: "elevenlabs"},
			{ID: "v2", Name: "Adam", Provider: "elevenlabs"},
		},
	}
	ts := newTestServer(t, levelsFunc(func(context.Context, string) ([]int, error) {
		return nil, nil
	}), WithVoices(voices))

	resp, err := http.Get(ts.URL + "/api/voices")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var got []tts.VoiceProfile
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].ID != "v1" {
		t.Errorf("voices: %+v", got)
	}
}

func TestHealthEndpoints(t *testing.T) {
	failing := health.Checker{
		Name:  "database",
		Check: func(context.Context) error { return errors.New("no connection") },
	}
	ts := newTestServer(t, levelsFunc(func(context.Context, string) ([]int, error) {
		return nil, nil
	}), WithHealthCheckers(failing))

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status: got %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("/readyz status: got %d, want 503", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, levelsFunc(func(context.Context, string) ([]int, error) {
		return nil, nil
	}))

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status: got %d, want 200", resp.StatusCode)
	}
}
