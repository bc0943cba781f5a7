// Package session enforces the single-active-session invariant and
// gives callers synchronous start/stop/status over the asynchronous
// media pump coordinator.
package session

import (
	"context"
	"fmt"
	"image"
	"log"
	"os"
	"sync"

	"github.com/chadiek/live-demo/internal/config"
	"github.com/chadiek/live-demo/internal/device"
	"github.com/chadiek/live-demo/internal/live"
)

// Status strings reported to the UI.
const (
	StatusStarted        = "Started"
	StatusAlreadyRunning = "Already running"
	StatusStopped        = "Stopped"
	StatusNotRunning     = "Not running"
	StatusRunning        = "Running"
)

// Option customizes a Manager.
type Option func(*Manager)

// WithDevices overrides the device factory (tests, WebRTC variant).
func WithDevices(fn func() live.Devices) Option {
	return func(m *Manager) { m.devices = fn }
}

// WithDial overrides how sessions connect upstream.
func WithDial(d live.DialFunc) Option {
	return func(m *Manager) { m.dial = d }
}

// Manager owns at most one coordinator at a time. All shared state —
// the loop reference, its cancel func, and the resumption handle carried
// between sessions — lives under one mutex.
type Manager struct {
	cfg     config.Config
	devices func() live.Devices
	dial    live.DialFunc

	mu     sync.Mutex
	loop   *live.Loop
	cancel context.CancelFunc
	handle string
}

// NewManager builds a manager using the default local device set.
func NewManager(cfg config.Config, opts ...Option) *Manager {
	m := &Manager{cfg: cfg, devices: defaultDevices}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func defaultDevices() live.Devices {
	return live.Devices{
		Mic: device.NewMicrophone(),
		Spk: device.NewSpeaker(),
		Cam: device.NewCamera(),
	}
}

// Start launches a new session unless one is already active. Settings,
// instruction text, credential, and microphone type are all validated
// here, before any device or network resource is touched; any failure
// is a configuration error returned synchronously.
func (m *Manager) Start() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked(m.devices())
}

// StartSession behaves like Start but uses the supplied device set; the
// WebRTC variant builds its devices per peer connection.
func (m *Manager) StartSession(dev live.Devices) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked(dev)
}

func (m *Manager) startLocked(dev live.Devices) (string, error) {
	if m.loop != nil && !m.loop.Stopped() {
		return StatusAlreadyRunning, nil
	}

	st, err := config.LoadSettings(m.cfg.ConfigPath, m.cfg.MediaPath)
	if err != nil {
		return "", err
	}
	instruction, err := config.LoadInstruction(st)
	if err != nil {
		return "", err
	}
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return "", fmt.Errorf("GEMINI_API_KEY not found in environment")
	}

	opts := []live.Option{
		live.WithPreviousHandle(m.handle),
		live.WithOnHandle(m.setHandle),
	}
	if m.dial != nil {
		opts = append(opts, live.WithDial(m.dial))
	}
	loop, err := live.NewLoop(st, instruction, dev, opts...)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.loop, m.cancel = loop, cancel
	go func() {
		if err := loop.Run(ctx, apiKey); err != nil {
			log.Printf("session: %v", err)
		}
	}()
	return StatusStarted, nil
}

// Stop signals shutdown and clears the reference. It does not wait for
// loop teardown; from the caller's perspective stop is fire-and-forget.
func (m *Manager) Stop() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loop == nil {
		return StatusNotRunning
	}
	m.loop.Shutdown()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.loop = nil
	return StatusStopped
}

// Status reports Running iff a coordinator exists with its shutdown
// flag unset.
func (m *Manager) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loop != nil && !m.loop.Stopped() {
		return StatusRunning
	}
	return StatusStopped
}

// LatestFrame returns the active session's most recent frame, or nil.
func (m *Manager) LatestFrame() image.Image {
	m.mu.Lock()
	loop := m.loop
	m.mu.Unlock()
	if loop == nil {
		return nil
	}
	return loop.LatestFrame()
}

// ResumptionHandle returns the token the next session will resume with.
func (m *Manager) ResumptionHandle() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

func (m *Manager) setHandle(h string) {
	m.mu.Lock()
	m.handle = h
	m.mu.Unlock()
}

// Config exposes the process configuration the manager was built with.
func (m *Manager) Config() config.Config { return m.cfg }
