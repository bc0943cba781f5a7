// Package media provides the image and payload helpers shared by the
// capture loops: JPEG encoding, aspect-preserving thumbnail shrinking,
// and the tagged blob envelope sent to the remote session.
package media

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// MIME types used on the wire.
const (
	MIMETypeJPEG = "image/jpeg"
	MIMETypePCM  = "audio/pcm"
)

// jpegQuality is the encode quality for outbound frames.
const jpegQuality = 85

// Blob is a tagged media payload: a MIME type plus base64-encoded data.
type Blob struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// AudioBlob wraps raw PCM bytes for the realtime input envelope.
func AudioBlob(pcm []byte) Blob {
	return Blob{MimeType: MIMETypePCM, Data: base64.StdEncoding.EncodeToString(pcm)}
}

// ImageBlob wraps an encoded JPEG for the realtime input envelope.
func ImageBlob(jpegBytes []byte) Blob {
	return Blob{MimeType: MIMETypeJPEG, Data: base64.StdEncoding.EncodeToString(jpegBytes)}
}

// EncodeJPEG encodes an image to an in-memory JPEG.
func EncodeJPEG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}

// targetDimensions computes thumbnail dimensions that fit within
// maxW x maxH, preserving aspect ratio and never upscaling. An axis is
// only changed when it exceeds its bound.
func targetDimensions(w, h, maxW, maxH int) (int, int) {
	tw, th := w, h
	if maxW > 0 && tw > maxW {
		ratio := float64(maxW) / float64(tw)
		tw = maxW
		th = int(float64(th) * ratio)
	}
	if maxH > 0 && th > maxH {
		ratio := float64(maxH) / float64(th)
		th = maxH
		tw = int(float64(tw) * ratio)
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	return tw, th
}

// Shrink scales img down to fit within maxW x maxH. Images already
// inside the bounding box are returned unchanged.
func Shrink(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	tw, th := targetDimensions(b.Dx(), b.Dy(), maxW, maxH)
	if tw == b.Dx() && th == b.Dy() {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
