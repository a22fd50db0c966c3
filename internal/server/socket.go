package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/echolalia-dev/echolalia/internal/lesson"
	"github.com/echolalia-dev/echolalia/internal/observe"
)

const (
	// maxRecordingBytes bounds a single websocket message. A 30 second
	// browser recording is well under this even with base64 overhead.
	maxRecordingBytes = 16 << 20

	// writeTimeout bounds a single event write to a slow client.
	writeTimeout = 5 * time.Second
)

// clientMessage is one message from the browser. Type selects the operation;
// the other fields carry its payload.
type clientMessage struct {
	// Type is "text", "profile", "theme", "recording", or "stop".
	Type string `json:"type"`

	// Text is the chat input for "text", the pre-survey answers for
	// "profile", and the theme for "theme".
	Text string `json:"text,omitempty"`

	// Audio is the base64-encoded recording for "recording". A data URL
	// prefix from the browser's FileReader is tolerated and stripped.
	Audio string `json:"audio,omitempty"`
}

// handleSocket serves GET /ws: one websocket connection per learner session.
// The connection's lifetime is the session's lifetime.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The browser app may be served from a different origin than the
		// API, so cross-origin websocket upgrades are allowed.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		observe.Logger(r.Context()).Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session ended unexpectedly")
	conn.SetReadLimit(maxRecordingBytes)

	log := observe.Logger(r.Context())
	sink := &socketSink{conn: conn, log: log}

	machine, err := s.hub.Open(sink)
	if err != nil {
		log.Error("session open failed", "error", err)
		conn.Close(websocket.StatusTryAgainLater, "no session available")
		return
	}
	defer s.hub.Release(machine)

	s.readLoop(r.Context(), conn, machine, log)
	conn.Close(websocket.StatusNormalClosure, "")
}

// readLoop pumps client messages into the session until the connection
// drops.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, machine *lesson.Machine, log *slog.Logger) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || ctx.Err() != nil {
				return
			}
			log.Debug("websocket read ended", "error", err)
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn("discarding malformed client message", "error", err)
			continue
		}

		if err := s.dispatch(ctx, machine, msg); err != nil {
			// Out-of-phase input is a client state bug, not a server
			// failure; the machine already told the learner what to do.
			log.Warn("client message rejected", "type", msg.Type, "error", err)
		}
	}
}

// dispatch routes one client message to the matching session entry point.
func (s *Server) dispatch(ctx context.Context, machine *lesson.Machine, msg clientMessage) error {
	switch msg.Type {
	case "text":
		return machine.HandleText(ctx, msg.Text)

	case "profile":
		return machine.HandleProfile(ctx, msg.Text)

	case "theme":
		return machine.SetTheme(ctx, msg.Text)

	case "recording":
		audio, err := decodeRecording(msg.Audio)
		if err != nil {
			return fmt.Errorf("server: decode recording: %w", err)
		}
		return machine.HandleRecording(ctx, audio)

	case "stop":
		machine.StopCapture()
		return nil

	default:
		return fmt.Errorf("server: unknown message type %q", msg.Type)
	}
}

// decodeRecording decodes a base64 recording payload, stripping a data URL
// header ("data:audio/mpeg;base64,...") when the browser sends one.
func decodeRecording(payload string) ([]byte, error) {
	if i := strings.IndexByte(payload, ','); i >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[i+1:]
	}
	return base64.StdEncoding.DecodeString(payload)
}

// socketSink delivers lesson events to the browser as JSON text messages.
// Writes are serialized; the machine and its timers emit from different
// goroutines.
type socketSink struct {
	conn *websocket.Conn
	log  *slog.Logger

	mu sync.Mutex
}

var _ lesson.EventSink = (*socketSink)(nil)

// Emit implements [lesson.EventSink]. Failed writes are logged and dropped;
// the read loop notices the dead connection and closes the session.
func (s *socketSink) Emit(ev lesson.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Error("event marshal failed", "type", ev.Type, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.log.Debug("event write failed", "type", ev.Type, "error", err)
	}
}
