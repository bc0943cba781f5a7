package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// startLiveServer runs a fake Live endpoint: it completes the setup
// handshake and then hands the connection to serve.
func startLiveServer(t *testing.T, serve func(conn *websocket.Conn, setup map[string]any)) (string, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var first map[string]any
		if err := conn.ReadJSON(&first); err != nil {
			return
		}
		setup, _ := first["setup"].(map[string]any)
		if err := conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}}); err != nil {
			return
		}
		if serve != nil {
			serve(conn, setup)
		}
	}))
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	return wsURL, ts
}

func TestConnect_Handshake(t *testing.T) {
	setupCh := make(chan map[string]any, 1)
	wsURL, ts := startLiveServer(t, func(conn *websocket.Conn, setup map[string]any) {
		setupCh <- setup
		// Hold the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer ts.Close()

	s, err := Connect(context.Background(), "test-key", LiveConfig{
		Model:              "gemini-2.0-flash-exp",
		ResponseModalities: []string{"AUDIO"},
		Voice:              "Leda",
		SystemInstruction:  "be brief",
		URL:                wsURL,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Close()

	select {
	case setup := <-setupCh:
		if setup["model"] != "models/gemini-2.0-flash-exp" {
			t.Fatalf("unexpected model in setup: %v", setup["model"])
		}
		if setup["systemInstruction"] == nil {
			t.Fatalf("expected systemInstruction in setup")
		}
		if setup["sessionResumption"] == nil {
			t.Fatalf("expected sessionResumption in setup")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never saw setup")
	}
}

func TestConnect_Validation(t *testing.T) {
	if _, err := Connect(context.Background(), "", LiveConfig{Model: "m"}); err == nil {
		t.Fatalf("expected error without api key")
	}
	if _, err := Connect(context.Background(), "key", LiveConfig{}); err == nil {
		t.Fatalf("expected error without model")
	}
}

func TestEndpoint(t *testing.T) {
	c := LiveConfig{}
	if !strings.Contains(c.Endpoint(), "v1alpha") {
		t.Fatalf("expected default api version in endpoint: %s", c.Endpoint())
	}
	c.APIVersion = "v1beta"
	if !strings.Contains(c.Endpoint(), "v1beta") {
		t.Fatalf("expected configured api version in endpoint: %s", c.Endpoint())
	}
	c.URL = "ws://override"
	if c.Endpoint() != "ws://override" {
		t.Fatalf("expected URL override, got %s", c.Endpoint())
	}
}

func TestSession_TurnAudioAndHandle(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	wsURL, ts := startLiveServer(t, func(conn *websocket.Conn, _ map[string]any) {
		msgs := []map[string]any{
			{"sessionResumptionUpdate": map[string]any{"newHandle": "h-123", "resumable": true}},
			{"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []map[string]any{
						{"inlineData": map[string]any{
							"mimeType": "audio/pcm;rate=24000",
							"data":     base64.StdEncoding.EncodeToString(pcm),
						}},
					},
				},
			}},
			{"serverContent": map[string]any{"turnComplete": true}},
		}
		for _, m := range msgs {
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer ts.Close()

	s, err := Connect(context.Background(), "test-key", LiveConfig{Model: "m", URL: wsURL})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Close()

	turn, err := s.Turn(context.Background())
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}

	var gotHandle string
	var gotAudio []byte
	for c := range turn {
		if c.Handle != "" {
			gotHandle = c.Handle
		}
		if len(c.Audio) > 0 {
			gotAudio = append(gotAudio, c.Audio...)
		}
	}
	if gotHandle != "h-123" {
		t.Fatalf("expected resumption handle, got %q", gotHandle)
	}
	if string(gotAudio) != string(pcm) {
		t.Fatalf("expected decoded pcm %v, got %v", pcm, gotAudio)
	}
	if s.Err() != nil {
		t.Fatalf("unexpected stream error: %v", s.Err())
	}
}

func TestSession_NonAudioInlineDataSkipped(t *testing.T) {
	wsURL, ts := startLiveServer(t, func(conn *websocket.Conn, _ map[string]any) {
		_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{
			"modelTurn": map[string]any{
				"parts": []map[string]any{
					{"inlineData": map[string]any{"mimeType": "image/png", "data": "aGk="}},
					{"text": "hello"},
				},
			},
			"turnComplete": true,
		}})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer ts.Close()

	s, err := Connect(context.Background(), "test-key", LiveConfig{Model: "m", URL: wsURL})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Close()

	turn, err := s.Turn(context.Background())
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	var text string
	for c := range turn {
		if len(c.Audio) > 0 {
			t.Fatalf("expected non-audio inline data to be skipped")
		}
		if c.Text != "" {
			text = c.Text
		}
	}
	if text != "hello" {
		t.Fatalf("expected text chunk, got %q", text)
	}
}

func TestSession_SendAudioEnvelope(t *testing.T) {
	frames := make(chan []byte, 4)
	wsURL, ts := startLiveServer(t, func(conn *websocket.Conn, _ map[string]any) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- data
		}
	})
	defer ts.Close()

	s, err := Connect(context.Background(), "test-key", LiveConfig{Model: "m", URL: wsURL})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Close()

	if err := s.SendAudio([]byte{9, 9}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case data := <-frames:
		var env map[string]any
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		ri, _ := env["realtime_input"].(map[string]any)
		if ri == nil {
			t.Fatalf("expected realtime_input envelope, got %s", data)
		}
		chunks, _ := ri["media_chunks"].([]any)
		if len(chunks) != 1 {
			t.Fatalf("expected one media chunk, got %d", len(chunks))
		}
		chunk, _ := chunks[0].(map[string]any)
		if chunk["mime_type"] != "audio/pcm" {
			t.Fatalf("unexpected mime type %v", chunk["mime_type"])
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never received the audio frame")
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	wsURL, ts := startLiveServer(t, nil)
	defer ts.Close()

	s, err := Connect(context.Background(), "test-key", LiveConfig{Model: "m", URL: wsURL})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := s.SendAudio([]byte{1}); err == nil {
		t.Fatalf("expected send on closed session to fail")
	}
}
