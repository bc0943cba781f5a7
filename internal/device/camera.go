package device

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"runtime"
)

// Camera captures frames from the default webcam via an ffmpeg child
// process emitting an MJPEG stream on stdout. There is no portable Go
// camera binding; shelling out to ffmpeg is the pragmatic route.
type Camera struct {
	input string
	cmd   *exec.Cmd
	out   io.ReadCloser
	br    *bufio.Reader
}

// NewCamera returns an unopened camera. The input device defaults to
// the platform's first webcam and can be overridden with CAMERA_DEVICE.
func NewCamera() *Camera {
	input := os.Getenv("CAMERA_DEVICE")
	if input == "" {
		if runtime.GOOS == "darwin" {
			input = "0"
		} else {
			input = "/dev/video0"
		}
	}
	return &Camera{input: input}
}

// Open starts the ffmpeg capture process. Callers are expected to treat
// failure as "no camera available" rather than fatal.
func (c *Camera) Open() error {
	inputFormat := "v4l2"
	if runtime.GOOS == "darwin" {
		inputFormat = "avfoundation"
	}
	cmd := exec.Command("ffmpeg",
		"-loglevel", "error",
		"-f", inputFormat,
		"-i", c.input,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"-",
	)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("camera pipe: %w", err)
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	c.cmd = cmd
	c.out = out
	c.br = bufio.NewReaderSize(out, 1<<20)
	return nil
}

// Capture blocks for the next frame and decodes it.
func (c *Camera) Capture() (image.Image, error) {
	if c.br == nil {
		return nil, errors.New("camera not opened")
	}
	frame, err := c.readJPEGFrame()
	if err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// readJPEGFrame scans the MJPEG stream for the next SOI..EOI span.
func (c *Camera) readJPEGFrame() ([]byte, error) {
	// seek start-of-image marker
	for {
		b, err := c.br.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != 0xff {
			continue
		}
		b, err = c.br.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == 0xd8 {
			break
		}
	}
	frame := []byte{0xff, 0xd8}
	for {
		b, err := c.br.ReadByte()
		if err != nil {
			return nil, err
		}
		frame = append(frame, b)
		if b == 0xff {
			nxt, err := c.br.ReadByte()
			if err != nil {
				return nil, err
			}
			frame = append(frame, nxt)
			if nxt == 0xd9 {
				return frame, nil
			}
		}
	}
}

// Close terminates the ffmpeg process.
func (c *Camera) Close() error {
	if c.cmd == nil {
		return nil
	}
	_ = c.out.Close()
	_ = c.cmd.Process.Kill()
	err := c.cmd.Wait()
	c.cmd, c.out, c.br = nil, nil, nil
	// ffmpeg exits non-zero when killed; that is the expected path here
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
