// Package device provides the default local capture and playback
// devices: portaudio for microphone and speaker, ffmpeg for the camera.
package device

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Microphone captures 16-bit LE mono PCM from the default input device.
type Microphone struct {
	stream *portaudio.Stream
	buf    []int16
}

// NewMicrophone returns an unopened microphone.
func NewMicrophone() *Microphone { return &Microphone{} }

// Open initializes portaudio and opens the default input stream.
func (m *Microphone) Open(sampleRate, frames int) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	m.buf = make([]int16, frames)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), frames, m.buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("start input stream: %w", err)
	}
	m.stream = stream
	return nil
}

// Read blocks for one buffer and returns it as little-endian bytes.
// Input overflow is tolerated: a late consumer gets whatever the device
// has, matching exception_on_overflow=false semantics.
func (m *Microphone) Read() ([]byte, error) {
	if m.stream == nil {
		return nil, errors.New("microphone not opened")
	}
	if err := m.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return nil, err
	}
	out := make([]byte, len(m.buf)*2)
	for i, s := range m.buf {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out, nil
}

// Close stops and releases the stream.
func (m *Microphone) Close() error {
	if m.stream == nil {
		return nil
	}
	_ = m.stream.Stop()
	err := m.stream.Close()
	m.stream = nil
	portaudio.Terminate()
	return err
}

// Speaker plays 16-bit LE mono PCM through the default output device.
type Speaker struct {
	stream *portaudio.Stream
	buf    []int16
	frames int
}

// NewSpeaker returns an unopened speaker.
func NewSpeaker() *Speaker { return &Speaker{} }

// Open initializes portaudio and opens the default output stream.
func (s *Speaker) Open(sampleRate, frames int) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	s.frames = frames
	s.buf = make([]int16, frames)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), frames, s.buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("start output stream: %w", err)
	}
	s.stream = stream
	return nil
}

// Write plays an arbitrary-length PCM buffer, chunked to the device
// buffer size with the tail zero-padded. Underflow is tolerated.
func (s *Speaker) Write(pcm []byte) error {
	if s.stream == nil {
		return errors.New("speaker not opened")
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	for off := 0; off < len(samples); off += s.frames {
		n := copy(s.buf, samples[off:])
		for i := n; i < len(s.buf); i++ {
			s.buf[i] = 0
		}
		if err := s.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return err
		}
	}
	return nil
}

// Close stops and releases the stream.
func (s *Speaker) Close() error {
	if s.stream == nil {
		return nil
	}
	_ = s.stream.Stop()
	err := s.stream.Close()
	s.stream = nil
	portaudio.Terminate()
	return err
}
