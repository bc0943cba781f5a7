// Package rtc implements the WebRTC capture variant: the browser
// streams microphone audio over a peer connection and webcam JPEGs over
// a data channel, and the media pump coordinator plays model audio back
// over an outbound Opus track.
package rtc

import (
	"context"
	"encoding/binary"
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"

	"github.com/chadiek/live-demo/internal/live"
	"github.com/chadiek/live-demo/internal/session"
)

// micSampleRate is the rate remote audio is decoded at before it is fed
// to the coordinator, matching the session input rate.
const micSampleRate = 16000

// decodeBufSamples fits a 120ms Opus frame at 16kHz.
const decodeBufSamples = 1920

// SessionDescription is a small DTO to avoid exposing webrtc types in
// transport.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Handler manages WebRTC peer connections for browser-sourced sessions.
type Handler struct {
	mgr *session.Manager
}

// NewHandler wires the handler to the session lifecycle manager; the
// manager keeps enforcing the single-active-session invariant across
// both capture variants.
func NewHandler(mgr *session.Manager) *Handler { return &Handler{mgr: mgr} }

// HandleOffer accepts an SDP offer and returns an SDP answer. The media
// session itself starts once the remote audio track arrives.
func (h *Handler) HandleOffer(ctx context.Context, offer SessionDescription) (SessionDescription, error) {
	if offer.Type != "offer" || offer.SDP == "" {
		return SessionDescription{}, errors.New("invalid offer")
	}

	callID := generateCallID()

	peerConnection, outTrack, err := h.createPeer()
	if err != nil {
		return SessionDescription{}, err
	}

	h.attachMediaHandlers(callID, peerConnection, outTrack)

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := peerConnection.SetRemoteDescription(remoteOffer); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(peerConnection)
	if err := peerConnection.SetLocalDescription(answer); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	<-gatherComplete
	local := peerConnection.LocalDescription()
	if local == nil {
		_ = peerConnection.Close()
		return SessionDescription{}, errors.New("no local description")
	}
	return SessionDescription{Type: "answer", SDP: local.SDP}, nil
}

// createPeer builds the pion API, peer connection, and outbound track.
func (h *Handler) createPeer() (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, nil, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return nil, nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	peerConnection, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return nil, nil, err
	}

	outTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: trackSampleRate, Channels: 1},
		"model-audio", "live-demo")
	if err != nil {
		_ = peerConnection.Close()
		return nil, nil, err
	}
	if _, err := peerConnection.AddTrack(outTrack); err != nil {
		_ = peerConnection.Close()
		return nil, nil, err
	}
	return peerConnection, outTrack, nil
}

// attachMediaHandlers wires tracks and data channels into a coordinator
// session once media starts flowing.
func (h *Handler) attachMediaHandlers(callID string, peerConnection *webrtc.PeerConnection, outTrack *webrtc.TrackLocalStaticSample) {
	mic := newTrackMicrophone()
	cam := newChannelCamera()
	var pacedPtr atomic.Pointer[OpusPacedWriter]

	peerConnection.OnDataChannel(func(dc *webrtc.DataChannel) {
		switch dc.Label() {
		case "control":
			log.Printf("[%s] control channel opened", callID)
			dc.OnMessage(func(msg webrtc.DataChannelMessage) {
				cmd := strings.TrimSpace(strings.ToLower(string(msg.Data)))
				switch cmd {
				case "stop", "bye":
					log.Printf("[%s] stop requested: %s", callID, h.mgr.Stop())
					if p := pacedPtr.Load(); p != nil {
						p.Reset()
					}
				}
			})
		case "video":
			dc.OnMessage(func(msg webrtc.DataChannelMessage) {
				if !msg.IsString && len(msg.Data) > 0 {
					cam.Push(msg.Data)
				}
			})
		}
	})

	peerConnection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Printf("[%s] ICE state: %s", callID, state.String())
	})

	peerConnection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("[%s] PeerConnection state: %s", callID, state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			log.Printf("[%s] peer gone: %s", callID, h.mgr.Stop())
			_ = mic.Close()
			_ = cam.Close()
			if p := pacedPtr.Load(); p != nil {
				p.FlushTail()
				time.AfterFunc(tailCloseDelay, p.Close)
			}
			_ = peerConnection.Close()
		}
	})

	peerConnection.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		log.Printf("[%s] remote audio track received: codec=%s", callID, remote.Codec().MimeType)

		paced, err := NewOpusPacedWriter(outTrack)
		if err != nil {
			log.Printf("[%s] opus encoder error: %v", callID, err)
			return
		}
		dec, err := opus.NewDecoder(micSampleRate, 1)
		if err != nil {
			log.Printf("[%s] opus decoder error: %v", callID, err)
			paced.Close()
			return
		}

		// Start the session before any media goroutine: when another
		// session is already active, nothing here may keep running.
		if !h.startPeerSession(callID, mic, cam, paced) {
			return
		}
		pacedPtr.Store(paced)
		go readRemoteAudio(callID, remote, dec, mic)
	})
}

// startPeerSession runs the coordinator over the browser-backed device
// set. It reports false when no new session started (error, or one is
// already active) and releases the paced writer on that path so no
// pacer goroutine outlives a rejected track.
func (h *Handler) startPeerSession(callID string, mic *trackMicrophone, cam *channelCamera, paced *OpusPacedWriter) bool {
	status, err := h.mgr.StartSession(live.Devices{
		Mic: mic,
		Spk: &pacedSpeaker{writer: paced},
		Cam: cam,
	})
	if err != nil {
		log.Printf("[%s] session start error: %v", callID, err)
		paced.Close()
		return false
	}
	if status != session.StatusStarted {
		log.Printf("[%s] session not started: %s", callID, status)
		paced.Close()
		return false
	}
	log.Printf("[%s] session: %s", callID, status)
	return true
}

// readRemoteAudio decodes the browser's Opus packets to 16kHz PCM and
// feeds the coordinator's microphone adapter until the track ends.
func readRemoteAudio(callID string, remote *webrtc.TrackRemote, dec *opus.Decoder, mic *trackMicrophone) {
	pcmSamples := make([]int16, decodeBufSamples)
	pcmBytes := make([]byte, decodeBufSamples*2)
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			log.Printf("[%s] RTP read error: %v", callID, err)
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := dec.Decode(pkt.Payload, pcmSamples)
		if err != nil {
			log.Printf("[%s] opus decode error: %v", callID, err)
			continue
		}
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint16(pcmBytes[i*2:], uint16(pcmSamples[i]))
		}
		mic.Push(pcmBytes[:n*2])
	}
}

func generateCallID() string { return time.Now().Format("0102150405.000") }
