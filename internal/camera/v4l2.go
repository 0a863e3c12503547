package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/blackjack/webcam"

	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/fault"
)

// V4L2 pixel format codes (fourcc).
const (
	fourccMJPEG = webcam.PixelFormat(0x47504A4D) // 'MJPG'
	fourccYUYV  = webcam.PixelFormat(0x56595559) // 'YUYV'
)

// frameWaitTimeoutSec bounds a single WaitForFrame call; overall
// acquisition is bounded by the Open context.
const frameWaitTimeoutSec = 2

// V4L2Source reads frames from a Video4Linux2 device.
type V4L2Source struct {
	cfg config.CameraConfig

	mu     sync.Mutex
	cam    *webcam.Webcam
	format webcam.PixelFormat
	width  int
	height int
}

func NewV4L2Source(cfg config.CameraConfig) *V4L2Source {
	return &V4L2Source{cfg: cfg}
}

// Open acquires the device and starts streaming. Acquisition is bounded by
// the context: a camera that never becomes available fails instead of
// blocking forever.
func (s *V4L2Source) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cam != nil {
		return nil // already open
	}

	type openResult struct {
		cam *webcam.Webcam
		err error
	}
	done := make(chan openResult, 1)
	go func() {
		cam, err := webcam.Open(s.cfg.Device)
		done <- openResult{cam, err}
	}()

	var cam *webcam.Webcam
	select {
	case <-ctx.Done():
		// The open goroutine closes a late handle so nothing leaks.
		go func() {
			if r := <-done; r.cam != nil {
				_ = r.cam.Close()
			}
		}()
		return fault.Wrap(fault.Camera, "acquire device "+s.cfg.Device, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return fault.Wrap(fault.Camera, "open device "+s.cfg.Device, r.err)
		}
		cam = r.cam
	}

	format, w, h, err := negotiateFormat(cam, s.cfg.Width, s.cfg.Height)
	if err != nil {
		_ = cam.Close()
		return err
	}

	if err := cam.StartStreaming(); err != nil {
		_ = cam.Close()
		return fault.Wrap(fault.Camera, "start streaming", err)
	}

	s.cam = cam
	s.format = format
	s.width = w
	s.height = h
	return nil
}

// negotiateFormat prefers MJPEG, falls back to YUYV.
func negotiateFormat(cam *webcam.Webcam, wantW, wantH int) (webcam.PixelFormat, int, int, error) {
	supported := cam.GetSupportedFormats()

	for _, format := range []webcam.PixelFormat{fourccMJPEG, fourccYUYV} {
		if _, ok := supported[format]; !ok {
			continue
		}
		f, w, h, err := cam.SetImageFormat(format, uint32(wantW), uint32(wantH))
		if err != nil {
			continue
		}
		return f, int(w), int(h), nil
	}
	return 0, 0, 0, fault.New(fault.Camera, "no supported pixel format (need MJPEG or YUYV)")
}

// Grab pulls the next frame and decodes it to an image.
func (s *V4L2Source) Grab() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cam == nil {
		return nil, fault.New(fault.Camera, "device not open")
	}

	err := s.cam.WaitForFrame(frameWaitTimeoutSec)
	switch err.(type) {
	case nil:
	case *webcam.Timeout:
		return nil, fault.Wrap(fault.Camera, "frame wait timed out", err)
	default:
		return nil, fault.Wrap(fault.Camera, "frame wait failed", err)
	}

	raw, err := s.cam.ReadFrame()
	if err != nil {
		return nil, fault.Wrap(fault.Camera, "read frame", err)
	}
	if len(raw) == 0 {
		return nil, fault.New(fault.Camera, "empty frame")
	}

	return s.decode(raw)
}

func (s *V4L2Source) decode(raw []byte) (image.Image, error) {
	switch s.format {
	case fourccMJPEG:
		img, err := jpeg.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fault.Wrap(fault.Camera, "decode mjpeg frame", err)
		}
		return img, nil
	case fourccYUYV:
		return yuyvToImage(raw, s.width, s.height)
	default:
		return nil, fault.Newf(fault.Camera, "unsupported pixel format %#x", uint32(s.format))
	}
}

// Close releases the device handle. Safe to call when already closed.
func (s *V4L2Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cam == nil {
		return nil
	}
	cam := s.cam
	s.cam = nil

	if err := cam.StopStreaming(); err != nil {
		_ = cam.Close()
		return fault.Wrap(fault.Camera, "stop streaming", err)
	}
	if err := cam.Close(); err != nil {
		return fault.Wrap(fault.Camera, "close device", err)
	}
	return nil
}

// yuyvToImage converts packed YUYV 4:2:2 to an RGBA image.
func yuyvToImage(raw []byte, w, h int) (image.Image, error) {
	if len(raw) < w*h*2 {
		return nil, fault.Newf(fault.Camera, "short yuyv frame: %d bytes for %dx%d", len(raw), w, h)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x += 2 {
			i := (y*w + x) * 2
			y0 := float64(raw[i])
			u := float64(raw[i+1]) - 128
			y1 := float64(raw[i+2])
			v := float64(raw[i+3]) - 128

			setYUV(img, x, y, y0, u, v)
			if x+1 < w {
				setYUV(img, x+1, y, y1, u, v)
			}
		}
	}
	return img, nil
}

func setYUV(img *image.RGBA, x, y int, lum, u, v float64) {
	r := clampByte(lum + 1.402*v)
	g := clampByte(lum - 0.344136*u - 0.714136*v)
	b := clampByte(lum + 1.772*u)

	off := img.PixOffset(x, y)
	img.Pix[off] = r
	img.Pix[off+1] = g
	img.Pix[off+2] = b
	img.Pix[off+3] = 0xFF
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// WaitReady polls until the device can be opened or the timeout elapses.
// Useful at daemon startup when the camera enumerates slowly.
func WaitReady(ctx context.Context, src Source, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		openCtx, cancel := context.WithDeadline(ctx, deadline)
		err := src.Open(openCtx)
		cancel()
		if err == nil {
			return src.Close()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("camera not ready after %s: %w", timeout, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}
