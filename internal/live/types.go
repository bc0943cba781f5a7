package live

import (
	"context"
	"image"

	"github.com/chadiek/live-demo/internal/gemini"
)

// Upstream is the bidirectional remote session the loop pumps against.
// *gemini.Session satisfies it; tests substitute fakes.
type Upstream interface {
	SendAudio(pcm []byte) error
	SendImage(jpegBytes []byte) error
	// Turn delivers the chunks of the next response turn; the channel
	// closes when the turn completes or the stream ends.
	Turn(ctx context.Context) (<-chan gemini.TurnChunk, error)
	// Err reports the error that ended the stream, nil while healthy.
	Err() error
	Close() error
}

// DialFunc opens an Upstream. Injectable so tests never touch the
// network.
type DialFunc func(ctx context.Context, apiKey string, cfg gemini.LiveConfig) (Upstream, error)

// Microphone is one blocking capture device producing 16-bit LE mono
// PCM buffers of the configured frame count.
type Microphone interface {
	Open(sampleRate, frames int) error
	Read() ([]byte, error)
	Close() error
}

// Speaker is one playback device accepting 16-bit LE mono PCM.
type Speaker interface {
	Open(sampleRate, frames int) error
	Write(pcm []byte) error
	Close() error
}

// Camera produces frames. Open failure is absorbed by the video loop:
// the session continues audio-only.
type Camera interface {
	Open() error
	Capture() (image.Image, error)
	Close() error
}

// Devices bundles the capture/playback set for one session. The raw
// device variant uses portaudio and ffmpeg; the WebRTC variant adapts
// browser tracks and data channels to the same three interfaces.
type Devices struct {
	Mic Microphone
	Spk Speaker
	Cam Camera
}
