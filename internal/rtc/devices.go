package rtc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"
)

// The WebRTC variant runs the same media pump coordinator as the raw
// device variant; these adapters present the browser's tracks and data
// channels as the coordinator's device interfaces.

// trackMicrophone re-chunks Opus-decoded remote-track PCM into the
// coordinator's buffer size. The RTP reader pushes; the coordinator's
// capture loop reads.
type trackMicrophone struct {
	ch chan []byte

	mu      sync.Mutex
	pending []byte
	frames  int

	quit     chan struct{}
	quitOnce sync.Once
}

func newTrackMicrophone() *trackMicrophone {
	return &trackMicrophone{
		ch:   make(chan []byte, 64),
		quit: make(chan struct{}),
	}
}

// Push delivers decoded PCM from the RTP reader. Drops when the
// coordinator is behind; live audio has no use for a deep backlog.
func (m *trackMicrophone) Push(pcm []byte) {
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	select {
	case m.ch <- buf:
	default:
	}
}

// Open records the buffer size. The track is already flowing; there is
// no device to open.
func (m *trackMicrophone) Open(_, frames int) error {
	m.mu.Lock()
	m.frames = frames
	m.mu.Unlock()
	return nil
}

// Read blocks until one full buffer of PCM is available.
func (m *trackMicrophone) Read() ([]byte, error) {
	m.mu.Lock()
	want := m.frames * 2
	m.mu.Unlock()
	if want <= 0 {
		return nil, errors.New("microphone not opened")
	}
	for {
		m.mu.Lock()
		if len(m.pending) >= want {
			out := make([]byte, want)
			copy(out, m.pending)
			m.pending = m.pending[:copy(m.pending, m.pending[want:])]
			m.mu.Unlock()
			return out, nil
		}
		m.mu.Unlock()

		select {
		case pcm := <-m.ch:
			m.mu.Lock()
			m.pending = append(m.pending, pcm...)
			m.mu.Unlock()
		case <-m.quit:
			return nil, errors.New("track closed")
		}
	}
}

func (m *trackMicrophone) Close() error {
	m.quitOnce.Do(func() { close(m.quit) })
	return nil
}

// pacedSpeaker feeds the coordinator's output audio into the paced Opus
// writer, upsampling from the model's output rate to the 48kHz track.
type pacedSpeaker struct {
	writer *OpusPacedWriter
	factor int
}

// Open computes the upsampling factor; the track rate must be an
// integer multiple of the session's output rate (24kHz -> 48kHz).
func (s *pacedSpeaker) Open(sampleRate, _ int) error {
	if sampleRate <= 0 || trackSampleRate%sampleRate != 0 {
		return fmt.Errorf("unsupported output rate %d for %dHz track", sampleRate, trackSampleRate)
	}
	s.factor = trackSampleRate / sampleRate
	return nil
}

// Write upsamples by sample repetition and hands the result to the
// paced writer. Crude but adequate for voice.
func (s *pacedSpeaker) Write(pcm []byte) error {
	if s.factor <= 0 {
		return errors.New("speaker not opened")
	}
	if s.factor == 1 {
		s.writer.WritePCM(pcm)
		return nil
	}
	out := make([]byte, 0, len(pcm)*s.factor)
	for i := 0; i+1 < len(pcm); i += 2 {
		for r := 0; r < s.factor; r++ {
			out = append(out, pcm[i], pcm[i+1])
		}
	}
	s.writer.WritePCM(out)
	return nil
}

// Close flushes the tail and stops the paced writer once the pacer has
// had time to drain it. The session can end well before the peer hangs
// up, so the writer must not be left running until disconnect.
func (s *pacedSpeaker) Close() error {
	s.writer.FlushTail()
	time.AfterFunc(tailCloseDelay, s.writer.Close)
	return nil
}

// channelCamera receives JPEG frames the browser posts on the "video"
// data channel and hands them to the coordinator as decoded images.
type channelCamera struct {
	ch       chan []byte
	quit     chan struct{}
	quitOnce sync.Once
}

func newChannelCamera() *channelCamera {
	return &channelCamera{
		ch:   make(chan []byte, 4),
		quit: make(chan struct{}),
	}
}

// Push delivers one JPEG frame from the data channel; stale frames are
// dropped in favor of the newest.
func (c *channelCamera) Push(jpegBytes []byte) {
	buf := make([]byte, len(jpegBytes))
	copy(buf, jpegBytes)
	for {
		select {
		case c.ch <- buf:
			return
		default:
			select {
			case <-c.ch:
			default:
			}
		}
	}
}

func (c *channelCamera) Open() error { return nil }

// Capture blocks for the next frame.
func (c *channelCamera) Capture() (image.Image, error) {
	select {
	case frame := <-c.ch:
		img, err := jpeg.Decode(bytes.NewReader(frame))
		if err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
		return img, nil
	case <-c.quit:
		return nil, errors.New("camera closed")
	}
}

func (c *channelCamera) Close() error {
	c.quitOnce.Do(func() { close(c.quit) })
	return nil
}
