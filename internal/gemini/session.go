// Package gemini implements a minimal client for the Gemini Live API:
// one bidirectional WebSocket session accepting tagged audio/image
// payloads and emitting response turns.
package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chadiek/live-demo/internal/media"
)

// DefaultHost is the production Live API host.
const DefaultHost = "generativelanguage.googleapis.com"

const (
	defaultAPIVersion = "v1alpha"
	maxMessageSize    = 16 * 1024 * 1024

	dialTimeout  = 45 * time.Second
	setupTimeout = 10 * time.Second
	writeWait    = 10 * time.Second
)

// LiveConfig describes one live session: the model, how it should
// respond, and an optional resumption handle from a prior session.
type LiveConfig struct {
	Model              string
	APIVersion         string
	ResponseModalities []string
	Voice              string
	SystemInstruction  string
	PreviousHandle     string

	// URL overrides the derived endpoint when set (tests).
	URL string
}

// Endpoint returns the WebSocket URL for the configured API version.
func (c LiveConfig) Endpoint() string {
	if c.URL != "" {
		return c.URL
	}
	version := c.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	return fmt.Sprintf("wss://%s/ws/google.ai.generativelanguage.%s.GenerativeService.BidiGenerateContent", DefaultHost, version)
}

// TurnChunk is one decoded piece of a response turn. At most one field
// is populated: raw PCM audio, text, or a fresh resumption handle.
type TurnChunk struct {
	Audio  []byte
	Text   string
	Handle string
}

// Session is a connected Live API session. Writes are serialized by a
// write mutex; reads happen only on the goroutine spawned by Turn.
type Session struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
	err    error
}

// Connect dials the Live API, performs the setup handshake, and returns
// a ready session. The connection is closed on any handshake failure.
func Connect(ctx context.Context, apiKey string, cfg LiveConfig) (*Session, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key missing")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini: model missing")
	}

	headers := http.Header{}
	headers.Set("x-goog-api-key", apiKey)

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, cfg.Endpoint(), headers)
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	s := &Session{conn: conn}

	setup := &Setup{
		Model: "models/" + cfg.Model,
		GenerationConfig: &GenerationConfig{
			ResponseModalities: cfg.ResponseModalities,
			SpeechConfig: &SpeechConfig{
				VoiceConfig: &VoiceConfig{
					PrebuiltVoiceConfig: &PrebuiltVoiceConfig{VoiceName: cfg.Voice},
				},
			},
		},
		SessionResumption:        &SessionResumption{Handle: cfg.PreviousHandle},
		ContextWindowCompression: &ContextWindowCompression{SlidingWindow: &SlidingWindow{}},
	}
	if cfg.SystemInstruction != "" {
		setup.SystemInstruction = &Content{
			Role:  "user",
			Parts: []Part{{Text: cfg.SystemInstruction}},
		}
	}
	if err := s.send(&clientMessage{Setup: setup}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("gemini: send setup: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(setupTimeout))
	var ack ServerMessage
	if err := conn.ReadJSON(&ack); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("gemini: read setup response: %w", err)
	}
	if ack.SetupComplete == nil {
		_ = conn.Close()
		return nil, fmt.Errorf("gemini: setup not acknowledged")
	}
	_ = conn.SetReadDeadline(time.Time{})

	return s, nil
}

// SendAudio forwards one buffer of raw PCM as a tagged audio payload.
func (s *Session) SendAudio(pcm []byte) error {
	return s.send(&clientMessage{
		RealtimeInput: &RealtimeInput{MediaChunks: []media.Blob{media.AudioBlob(pcm)}},
	})
}

// SendImage forwards an encoded JPEG frame as a tagged image payload.
func (s *Session) SendImage(jpegBytes []byte) error {
	return s.send(&clientMessage{
		RealtimeInput: &RealtimeInput{MediaChunks: []media.Blob{media.ImageBlob(jpegBytes)}},
	})
}

func (s *Session) send(msg *clientMessage) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("gemini: session closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

// Turn delivers the chunks of the next response turn. The returned
// channel closes when the server marks the turn complete (or the model
// is interrupted), or when the stream ends; in the latter case Err
// reports the cause. Cancelling ctx unblocks the underlying read.
func (s *Session) Turn(ctx context.Context) (<-chan TurnChunk, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("gemini: session closed")
	}
	s.mu.Unlock()

	ch := make(chan TurnChunk, 16)
	done := make(chan struct{})

	// Unblock the read when the caller gives up.
	go func() {
		select {
		case <-ctx.Done():
			_ = s.conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	go func() {
		defer close(ch)
		defer close(done)
		for {
			var msg ServerMessage
			if err := s.conn.ReadJSON(&msg); err != nil {
				s.recordErr(err)
				return
			}
			if !s.emitChunks(ctx, ch, &msg) {
				return
			}
			if sc := msg.ServerContent; sc != nil && (sc.TurnComplete || sc.Interrupted) {
				return
			}
		}
	}()
	return ch, nil
}

// emitChunks decodes one server message onto ch. It returns false when
// the caller cancelled mid-turn.
func (s *Session) emitChunks(ctx context.Context, ch chan<- TurnChunk, msg *ServerMessage) bool {
	if upd := msg.SessionResumptionUpdate; upd != nil && upd.Resumable && upd.NewHandle != "" {
		if !deliver(ctx, ch, TurnChunk{Handle: upd.NewHandle}) {
			return false
		}
	}
	sc := msg.ServerContent
	if sc == nil || sc.ModelTurn == nil {
		return true
	}
	for _, part := range sc.ModelTurn.Parts {
		if part.Text != "" {
			if !deliver(ctx, ch, TurnChunk{Text: part.Text}) {
				return false
			}
		}
		inline := part.InlineData
		if inline == nil || !strings.HasPrefix(inline.MimeType, "audio") {
			continue
		}
		pcm, err := base64.StdEncoding.DecodeString(inline.Data)
		if err != nil || len(pcm) == 0 {
			continue
		}
		if !deliver(ctx, ch, TurnChunk{Audio: pcm}) {
			return false
		}
	}
	return true
}

func deliver(ctx context.Context, ch chan<- TurnChunk, c TurnChunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Session) recordErr(err error) {
	s.mu.Lock()
	if !s.closed && s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// Err reports the read error that ended the stream, or nil after an
// intentional Close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close sends a close frame and tears down the connection. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	s.writeMu.Unlock()
	return s.conn.Close()
}
