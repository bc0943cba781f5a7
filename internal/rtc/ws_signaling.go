package rtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
)

// signalMessage is a minimal signaling format. Types: "auth", "offer",
// "answer", "candidate", "ice-complete", "bye", "error".
type signalMessage struct {
	Type string `json:"type"`
	// auth
	Password string `json:"password,omitempty"`
	// offer/answer
	SDP string `json:"sdp,omitempty"`
	// candidate
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
	// error
	Error string `json:"error,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Allow any origin for demo use; restrict in production
		return true
	},
}

// ServeWebSocket upgrades to WebSocket and performs offer/answer plus
// trickle ICE signaling for the WebRTC capture variant. Expected flow:
// auth (optional) -> offer -> candidates...; the server responds with
// answer + candidates.
func (h *Handler) ServeWebSocket(w http.ResponseWriter, r *http.Request, authPassword string) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("rtc: ws upgrade error: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()
	wr := &wsWriter{conn: conn}

	if authPassword != "" && !checkAuthHeaderOrQuery(r, authPassword) {
		// fall back to an auth message as the first frame
		mt, data, rerr := conn.ReadMessage()
		if rerr != nil || mt != websocket.TextMessage {
			_ = wr.writeError(fmt.Errorf("auth required"))
			return
		}
		var m signalMessage
		if jerr := json.Unmarshal(data, &m); jerr != nil || strings.ToLower(m.Type) != "auth" || m.Password != authPassword {
			_ = wr.writeError(fmt.Errorf("unauthorized"))
			return
		}
	}

	offerSDP, ok := readOffer(conn)
	if !ok {
		return
	}

	callID := generateCallID()
	peerConnection, outTrack, err := h.createPeer()
	if err != nil {
		_ = wr.writeError(err)
		return
	}
	defer func() { _ = peerConnection.Close() }()

	// Trickle local candidates to the client
	peerConnection.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			_ = wr.write(signalMessage{Type: "ice-complete"})
			return
		}
		init := c.ToJSON()
		_ = wr.write(signalMessage{
			Type:          "candidate",
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})

	h.attachMediaHandlers(callID, peerConnection, outTrack)

	// Accept remote trickle candidates until the socket goes away
	go func() {
		for {
			_, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}
			var m signalMessage
			if json.Unmarshal(data, &m) != nil {
				continue
			}
			switch strings.ToLower(m.Type) {
			case "candidate":
				if m.Candidate == "" {
					continue
				}
				_ = peerConnection.AddICECandidate(webrtc.ICECandidateInit{
					Candidate:     m.Candidate,
					SDPMid:        m.SDPMid,
					SDPMLineIndex: m.SDPMLineIndex,
				})
			case "bye":
				_ = peerConnection.Close()
				return
			}
		}
	}()

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := peerConnection.SetRemoteDescription(remoteOffer); err != nil {
		_ = wr.writeError(err)
		return
	}
	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		_ = wr.writeError(err)
		return
	}
	if err := peerConnection.SetLocalDescription(answer); err != nil {
		_ = wr.writeError(err)
		return
	}
	local := peerConnection.LocalDescription()
	if local == nil {
		_ = wr.writeError(errors.New("no local description"))
		return
	}
	if err := wr.write(signalMessage{Type: "answer", SDP: local.SDP}); err != nil {
		log.Printf("[%s] ws write answer error: %v", callID, err)
		return
	}

	// Keep the goroutine alive until the peer connection closes.
	for {
		time.Sleep(2 * time.Second)
		state := peerConnection.ConnectionState()
		if state == webrtc.PeerConnectionStateClosed || state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateDisconnected {
			return
		}
	}
}

// readOffer reads frames until a valid offer arrives.
func readOffer(conn *websocket.Conn) (string, bool) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("rtc: ws read error before offer: %v", err)
			return "", false
		}
		if mt != websocket.TextMessage {
			continue
		}
		var m signalMessage
		if json.Unmarshal(data, &m) != nil {
			continue
		}
		switch strings.ToLower(m.Type) {
		case "offer":
			if m.SDP != "" {
				return m.SDP, true
			}
		case "bye":
			return "", false
		}
	}
}

func checkAuthHeaderOrQuery(r *http.Request, password string) bool {
	if r == nil || password == "" {
		return false
	}
	if q := r.URL.Query().Get("password"); q != "" && q == password {
		return true
	}
	ah := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(ah), "bearer ") && strings.TrimSpace(ah[7:]) == password {
		return true
	}
	return false
}

// wsWriter serializes writes to the signaling socket. Candidates
// trickle in from pion goroutines while the handler goroutine writes
// the answer, and gorilla allows only one concurrent writer.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) write(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

func (w *wsWriter) writeError(err error) error {
	return w.write(signalMessage{Type: "error", Error: err.Error()})
}
