// Package live implements the media pump coordinator: four concurrent
// loops moving bytes between local capture/playback devices and one
// bidirectional remote session, with a shared shutdown signal and a
// bounded playback queue.
package live

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"github.com/chadiek/live-demo/internal/config"
	"github.com/chadiek/live-demo/internal/gemini"
	"github.com/chadiek/live-demo/internal/media"
)

// chunkSizes maps microphone type to the audio buffer size in frames.
var chunkSizes = map[string]int{
	"dynamic_mic":  512,
	"computer_mic": 1024,
}

const (
	// queueCapacity bounds the inbound playback queue.
	queueCapacity = 256
	// playPollInterval is the playback loop's queue-pull timeout; it also
	// bounds how long shutdown can lag behind the quit signal.
	playPollInterval = 100 * time.Millisecond
	// flushFactor: playback writes to the device only once the local
	// buffer reaches flushFactor x chunk size, keeping writes infrequent.
	flushFactor = 4
)

// Option customizes a Loop.
type Option func(*Loop)

// WithDial overrides how the remote session is opened.
func WithDial(d DialFunc) Option {
	return func(l *Loop) { l.dial = d }
}

// WithPreviousHandle resumes a prior conversation.
func WithPreviousHandle(h string) Option {
	return func(l *Loop) { l.prevHandle = h }
}

// WithOnHandle registers a callback invoked whenever the remote session
// issues a new resumption handle.
func WithOnHandle(fn func(string)) Option {
	return func(l *Loop) { l.onHandle = fn }
}

// Loop coordinates one active session. Create with NewLoop, drive with
// Run, stop with Shutdown. A Loop is single-use.
type Loop struct {
	st          config.Settings
	instruction string
	chunkSize   int
	dev         Devices
	dial        DialFunc
	prevHandle  string
	onHandle    func(string)

	inAudio  chan []byte
	quit     chan struct{}
	quitOnce sync.Once

	mu       sync.Mutex
	upstream Upstream

	frameMu     sync.RWMutex
	latestFrame image.Image
}

// NewLoop validates the settings and builds a coordinator. The chunk
// size is derived from MIC_TYPE; an unsupported value is a configuration
// error raised here, before any device is opened.
func NewLoop(st config.Settings, instruction string, dev Devices, opts ...Option) (*Loop, error) {
	size, ok := chunkSizes[st.MicType]
	if !ok {
		return nil, fmt.Errorf("live: invalid MIC_TYPE %q", st.MicType)
	}
	l := &Loop{
		st:          st,
		instruction: instruction,
		chunkSize:   size,
		dev:         dev,
		dial:        defaultDial,
		inAudio:     make(chan []byte, queueCapacity),
		quit:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func defaultDial(ctx context.Context, apiKey string, cfg gemini.LiveConfig) (Upstream, error) {
	return gemini.Connect(ctx, apiKey, cfg)
}

// ChunkSize returns the audio buffer size in frames.
func (l *Loop) ChunkSize() int { return l.chunkSize }

// Run connects to the remote session and pumps media until Shutdown is
// called, ctx is cancelled (a normal, silent shutdown path), or a fatal
// loop error occurs. The connection is closed on every exit path.
func (l *Loop) Run(ctx context.Context, apiKey string) error {
	cfg := gemini.LiveConfig{
		Model:              l.st.GeminiModel,
		APIVersion:         l.st.GeminiHTTPOptions.APIVersion,
		ResponseModalities: l.st.ResponseModalities,
		Voice:              l.st.VoiceName,
		SystemInstruction:  l.instruction,
		PreviousHandle:     l.prevHandle,
	}
	up, err := l.dial(ctx, apiKey, cfg)
	if err != nil {
		l.Shutdown()
		return fmt.Errorf("live: connect: %w", err)
	}
	defer up.Close()
	l.setUpstream(up)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 4)
	var wg sync.WaitGroup
	for _, run := range []func(context.Context) error{
		l.listenAudio,
		l.receiveAudio,
		l.playAudio,
		l.captureVideo,
	} {
		wg.Add(1)
		go func(run func(context.Context) error) {
			defer wg.Done()
			if err := run(loopCtx); err != nil {
				select {
				case errCh <- err:
				default:
				}
			}
		}(run)
	}

	var runErr error
	select {
	case <-l.quit:
	case <-ctx.Done():
	case runErr = <-errCh:
		log.Printf("live: %v", runErr)
	}
	l.Shutdown()
	cancel()
	wg.Wait()
	return runErr
}

// Shutdown signals all loops to stop. Safe to call from any goroutine,
// any number of times.
func (l *Loop) Shutdown() {
	l.quitOnce.Do(func() { close(l.quit) })
}

// Stopped reports whether the shutdown signal has fired.
func (l *Loop) Stopped() bool {
	select {
	case <-l.quit:
		return true
	default:
		return false
	}
}

// LatestFrame returns the most recently captured thumbnail, or nil.
func (l *Loop) LatestFrame() image.Image {
	l.frameMu.RLock()
	defer l.frameMu.RUnlock()
	return l.latestFrame
}

// listenAudio reads microphone buffers and forwards them as tagged
// audio payloads. Sends are fire-and-forget; a slow remote session is
// the transport layer's problem, not ours.
func (l *Loop) listenAudio(ctx context.Context) error {
	if err := l.dev.Mic.Open(l.st.InputSampleRate, l.chunkSize); err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	defer l.dev.Mic.Close()

	for !l.stopping(ctx) {
		data, err := l.dev.Mic.Read()
		if err != nil {
			if l.stopping(ctx) {
				return nil
			}
			return fmt.Errorf("read microphone: %w", err)
		}
		if up := l.getUpstream(); up != nil && len(data) > 0 {
			if err := up.SendAudio(data); err != nil {
				log.Printf("live: send audio: %v", err)
			}
		}
	}
	return nil
}

// receiveAudio drains response turns into the playback queue and
// captures resumption handle updates. When a turn finishes, anything
// still queued is discarded: playback never serves a stale turn once a
// new one has begun.
func (l *Loop) receiveAudio(ctx context.Context) error {
	up := l.getUpstream()
	for !l.stopping(ctx) {
		turn, err := up.Turn(ctx)
		if err != nil {
			if l.stopping(ctx) {
				return nil
			}
			return fmt.Errorf("receive turn: %w", err)
		}
		for c := range turn {
			if c.Handle != "" && l.onHandle != nil {
				l.onHandle(c.Handle)
			}
			if len(c.Audio) == 0 {
				continue
			}
			select {
			case l.inAudio <- c.Audio:
			case <-l.quit:
				return nil
			case <-ctx.Done():
				return nil
			}
		}
		l.drainQueue()
		if err := up.Err(); err != nil {
			if l.stopping(ctx) {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
	}
	return nil
}

// playAudio accumulates queued audio and writes it to the output device
// in batches of at least flushFactor x chunk size bytes. Any residual
// partial buffer is flushed once on shutdown.
func (l *Loop) playAudio(ctx context.Context) error {
	if err := l.dev.Spk.Open(l.st.OutputSampleRate, l.chunkSize); err != nil {
		return fmt.Errorf("open speaker: %w", err)
	}
	defer l.dev.Spk.Close()

	flushAt := l.chunkSize * flushFactor
	var buf []byte
	for !l.stopping(ctx) {
		select {
		case data := <-l.inAudio:
			buf = append(buf, data...)
		case <-time.After(playPollInterval):
		case <-l.quit:
		case <-ctx.Done():
		}
		if len(buf) >= flushAt {
			if err := l.dev.Spk.Write(buf); err != nil {
				return fmt.Errorf("write speaker: %w", err)
			}
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		_ = l.dev.Spk.Write(buf)
	}
	return nil
}

// captureVideo captures frames on a fixed wall-clock interval, shrinks
// them for the UI and the remote session, and forwards them as JPEG
// payloads. A camera that fails to open is logged and absorbed; the
// session continues without video.
func (l *Loop) captureVideo(ctx context.Context) error {
	if err := l.dev.Cam.Open(); err != nil {
		log.Printf("live: cannot open camera: %v", err)
		return nil
	}
	defer l.dev.Cam.Close()

	maxW, maxH := l.st.ThumbnailBounds()
	interval := time.Duration(l.st.VideoCaptureInterval * float64(time.Second))
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !l.stopping(ctx) {
		img, err := l.dev.Cam.Capture()
		if err != nil {
			log.Printf("live: capture frame: %v", err)
		} else if img != nil {
			thumb := media.Shrink(img, maxW, maxH)
			l.setLatestFrame(thumb)
			if up := l.getUpstream(); up != nil {
				if jpegBytes, encErr := media.EncodeJPEG(thumb); encErr == nil {
					if sendErr := up.SendImage(jpegBytes); sendErr != nil {
						log.Printf("live: send frame: %v", sendErr)
					}
				}
			}
		}
		select {
		case <-ticker.C:
		case <-l.quit:
		case <-ctx.Done():
		}
	}
	return nil
}

func (l *Loop) stopping(ctx context.Context) bool {
	return l.Stopped() || ctx.Err() != nil
}

func (l *Loop) drainQueue() {
	for {
		select {
		case <-l.inAudio:
		default:
			return
		}
	}
}

func (l *Loop) setUpstream(up Upstream) {
	l.mu.Lock()
	l.upstream = up
	l.mu.Unlock()
}

func (l *Loop) getUpstream() Upstream {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.upstream
}

func (l *Loop) setLatestFrame(img image.Image) {
	l.frameMu.Lock()
	l.latestFrame = img
	l.frameMu.Unlock()
}
