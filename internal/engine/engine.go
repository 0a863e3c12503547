// Package engine owns the capture/recognition loop: camera lifecycle, the
// per-frame detect→recognize→report cycle, and the one-shot registration
// workflow. The camera is a single exclusively-owned handle; all frame
// grabs, from the loop and from registration, are serialized on one mutex.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/your-org/faceid/internal/camera"
	"github.com/your-org/faceid/internal/fault"
	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
	"github.com/your-org/faceid/internal/recognize"
	"github.com/your-org/faceid/internal/vision"
)

// ErrNoFaceDetected is returned by RegisterIdentity when the single captured
// frame contains no face. The caller is expected to retry.
var ErrNoFaceDetected = errors.New("no face detected")

// EmbeddingStore is the slice of the store the engine mutates. Satisfied by
// *store.Store.
type EmbeddingStore interface {
	StoreEmbedding(ctx context.Context, name string, vec []float32, quality float32) error
	RecordRecognition(ctx context.Context, name string) error
}

// RecognitionHook observes successful recognitions, with the face crop that
// produced them. Used to wire snapshot archiving and event publishing.
type RecognitionHook func(ctx context.Context, ev models.RecognitionEvent, crop image.Image)

// Config carries the loop's tunables.
type Config struct {
	FrameInterval  time.Duration
	AcquireTimeout time.Duration
}

// Controller drives the capture/recognition loop and exposes lifecycle
// control. Start and Stop are safe to call from any goroutine and to repeat
// across the lifetime of the process.
type Controller struct {
	cam        camera.Source
	detector   vision.Detector
	recognizer *recognize.Recognizer
	store      EmbeddingStore
	cfg        Config

	state atomic.Int32

	// mu guards lifecycle transitions; camMu serializes every camera
	// open/grab/close between the loop and the registration workflow.
	mu     sync.Mutex
	camMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	subMu  sync.RWMutex
	subs   map[int]chan models.RecognitionEvent
	nextID int

	hookMu sync.RWMutex
	hook   RecognitionHook
	render func(image.Image)
}

func New(cam camera.Source, detector vision.Detector, recognizer *recognize.Recognizer, store EmbeddingStore, cfg Config) *Controller {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 100 * time.Millisecond
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}
	return &Controller{
		cam:        cam,
		detector:   detector,
		recognizer: recognizer,
		store:      store,
		cfg:        cfg,
		subs:       make(map[int]chan models.RecognitionEvent),
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() models.EngineState {
	return models.EngineState(c.state.Load())
}

// IsRunning reports whether the loop is processing frames.
func (c *Controller) IsRunning() bool {
	return c.State() == models.EngineRunning
}

func (c *Controller) setState(s models.EngineState) {
	c.state.Store(int32(s))
	observability.EngineState.Set(float64(s))
}

// Start acquires the camera (bounded by the configured timeout), refreshes
// the matching index, and spawns the loop. A no-op when already running.
// A Start that lands while a previous run is still winding down waits for
// the camera to be released, then starts fresh, so a nil return always means
// the loop is up. On any failure the engine is left Stopped with the camera
// released.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.awaitRestLocked()

	if c.State() != models.EngineStopped {
		return nil
	}
	c.setState(models.EngineStarting)

	openCtx, cancelOpen := context.WithTimeout(ctx, c.cfg.AcquireTimeout)
	c.camMu.Lock()
	err := c.cam.Open(openCtx)
	c.camMu.Unlock()
	cancelOpen()
	if err != nil {
		c.setState(models.EngineStopped)
		return err
	}

	if err := c.recognizer.Refresh(ctx); err != nil {
		slog.Warn("matching index refresh failed, starting with stale index", "error", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.setState(models.EngineRunning)

	go c.run(loopCtx)

	slog.Info("capture loop started", "interval", c.cfg.FrameInterval)
	return nil
}

// Stop signals the loop to exit and waits until the camera handle has been
// released. A no-op when already stopped. Safe from any goroutine.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.State() == models.EngineStopped || c.State() == models.EngineStopping {
		c.mu.Unlock()
		return
	}
	c.setState(models.EngineStopping)
	c.cancel()
	done := c.done
	c.mu.Unlock()

	<-done
}

// awaitRestLocked blocks while a loop goroutine is winding down, so callers
// never act on a handle the loop is about to release. Must be called with
// c.mu held; returns with c.mu held and the state out of Stopping.
func (c *Controller) awaitRestLocked() {
	for c.State() == models.EngineStopping {
		done := c.done
		c.mu.Unlock()
		<-done
		c.mu.Lock()
	}
}

// run is the loop goroutine. Its deferred cleanup is the only place the
// camera handle acquired by Start is released, so a handle can never leak
// across stop/start cycles.
func (c *Controller) run(ctx context.Context) {
	defer func() {
		c.camMu.Lock()
		if err := c.cam.Close(); err != nil {
			slog.Error("close camera", "error", err)
		}
		c.camMu.Unlock()
		c.setState(models.EngineStopped)
		close(c.done)
		slog.Info("capture loop stopped")
	}()

	ticker := time.NewTicker(c.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.processFrame(ctx); err != nil {
				// Only camera-level failures escalate this far.
				slog.Error("camera failure, stopping loop", "error", err)
				c.setState(models.EngineStopping)
				return
			}
		}
	}
}

// processFrame runs one cycle: grab → detect → recognize boxes → report
// best → annotate. Detector and recognizer failures skip the frame and
// return nil; a camera failure is returned and stops the loop.
func (c *Controller) processFrame(ctx context.Context) error {
	c.camMu.Lock()
	frame, err := c.cam.Grab()
	c.camMu.Unlock()
	if err != nil {
		return err
	}
	observability.FramesProcessed.Inc()

	start := time.Now()
	detections, err := c.detector.Detect(frame)
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Warn("detection failed, skipping frame", "error", err)
		observability.FramesSkipped.WithLabelValues("detection").Inc()
		return nil
	}

	if len(detections) == 0 {
		c.publish(models.RecognitionEvent{
			Identity:  models.UnknownIdentity,
			Timestamp: time.Now(),
		})
		c.renderFrame(frame)
		return nil
	}
	observability.FacesDetected.Add(float64(len(detections)))

	// Best confidence across all boxes in the frame wins.
	var (
		best     recognize.Match
		bestBBox [4]float32
		bestCrop image.Image
		found    bool
	)
	for _, det := range detections {
		crop := vision.CropFace(frame, det.BBox)
		if crop == nil {
			continue
		}
		start = time.Now()
		match, err := c.recognizer.Recognize(ctx, crop)
		observability.InferenceDuration.WithLabelValues("recognize").Observe(time.Since(start).Seconds())
		if err != nil {
			slog.Debug("recognition failed for box", "error", err)
			observability.FramesSkipped.WithLabelValues("recognition").Inc()
			continue
		}
		if !found || match.Confidence > best.Confidence {
			best = match
			bestBBox = det.BBox
			bestCrop = crop
			found = true
		}
	}

	if !found {
		c.publish(models.RecognitionEvent{
			Identity:  models.UnknownIdentity,
			Timestamp: time.Now(),
		})
		c.renderFrame(frame)
		return nil
	}

	ev := models.RecognitionEvent{
		Identity:   best.Name,
		Confidence: best.Confidence,
		Recognized: best.Recognized,
		FaceFound:  true,
		BBox:       bestBBox,
		Timestamp:  time.Now(),
	}

	if best.Recognized {
		observability.FacesRecognized.WithLabelValues(best.Name).Inc()
		if err := c.store.RecordRecognition(ctx, best.Name); err != nil {
			slog.Warn("record recognition", "identity", best.Name, "error", err)
		}
		c.runHook(ctx, ev, bestCrop)
	}

	c.publish(ev)
	c.renderFrame(Annotate(frame, bestBBox, labelFor(ev)))
	return nil
}

func labelFor(ev models.RecognitionEvent) string {
	return fmt.Sprintf("%s (%.2f)", ev.Identity, ev.Confidence)
}

// RegisterIdentity captures exactly one frame, takes the first detected
// face, embeds it, and commits it under the given name. Fails with
// ErrNoFaceDetected when the frame holds no face; no partial state is
// written on any failure path.
func (c *Controller) RegisterIdentity(ctx context.Context, name string) error {
	if name == "" {
		observability.Enrollments.WithLabelValues("invalid").Inc()
		return fmt.Errorf("identity name is empty")
	}

	frame, err := c.grabOneFrame(ctx)
	if err != nil {
		observability.Enrollments.WithLabelValues("camera_error").Inc()
		return err
	}

	detections, err := c.detector.Detect(frame)
	if err != nil {
		observability.Enrollments.WithLabelValues("detection_error").Inc()
		return err
	}
	if len(detections) == 0 {
		observability.Enrollments.WithLabelValues("no_face").Inc()
		return ErrNoFaceDetected
	}

	// First detected box, by contract. No best-face heuristic.
	det := detections[0]
	crop := vision.CropFace(frame, det.BBox)
	if crop == nil {
		observability.Enrollments.WithLabelValues("degenerate").Inc()
		return fault.New(fault.Recognition, "detected box produced an empty crop")
	}

	vec, err := c.recognizer.GenerateEmbedding(crop)
	if err != nil {
		observability.Enrollments.WithLabelValues("embed_error").Inc()
		return err
	}

	if err := c.store.StoreEmbedding(ctx, name, vec, det.Confidence); err != nil {
		observability.Enrollments.WithLabelValues("store_error").Inc()
		return err
	}

	// The committed sample is appended to the live index directly; a full
	// rebuild would re-read the whole corpus for one known vector.
	c.recognizer.AddSample(name, vec)

	observability.Enrollments.WithLabelValues("ok").Inc()
	slog.Info("identity enrolled", "name", name, "dim", len(vec))
	return nil
}

// grabOneFrame pulls a single frame for registration. When the loop is
// running it shares the open handle; only when the engine is verifiably at
// rest does it open and close the device itself. The share-vs-own decision
// happens under the lifecycle mutex: a concurrent Start holds c.mu for its
// whole acquire-and-spawn sequence, and a winding-down loop is waited out,
// so registration can never close a handle the loop still owns. Grabs are
// additionally serialized on camMu so the two readers never interleave on
// the device.
func (c *Controller) grabOneFrame(ctx context.Context) (image.Image, error) {
	c.mu.Lock()
	c.awaitRestLocked()

	if c.State() == models.EngineRunning {
		c.mu.Unlock()
		c.camMu.Lock()
		defer c.camMu.Unlock()
		return c.cam.Grab()
	}

	// Stopped. Holding c.mu keeps it that way for the whole grab.
	defer c.mu.Unlock()
	c.camMu.Lock()
	defer c.camMu.Unlock()

	openCtx, cancel := context.WithTimeout(ctx, c.cfg.AcquireTimeout)
	defer cancel()
	if err := c.cam.Open(openCtx); err != nil {
		return nil, err
	}
	defer func() {
		if err := c.cam.Close(); err != nil {
			slog.Error("close camera after registration", "error", err)
		}
	}()
	return c.cam.Grab()
}

// Subscribe attaches an event consumer. Events are pushed asynchronously;
// a slow consumer drops events rather than blocking the loop. The returned
// func detaches the subscription and closes the channel.
func (c *Controller) Subscribe(buffer int) (<-chan models.RecognitionEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan models.RecognitionEvent, buffer)

	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	c.subMu.Unlock()

	unsubscribe := func() {
		c.subMu.Lock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
		c.subMu.Unlock()
	}
	return ch, unsubscribe
}

func (c *Controller) publish(ev models.RecognitionEvent) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default: // drop for slow consumers
		}
	}
}

// SetRecognitionHook installs the hook run on every successful recognition.
func (c *Controller) SetRecognitionHook(h RecognitionHook) {
	c.hookMu.Lock()
	c.hook = h
	c.hookMu.Unlock()
}

// SetRenderSink installs the surface that receives annotated frames.
func (c *Controller) SetRenderSink(render func(image.Image)) {
	c.hookMu.Lock()
	c.render = render
	c.hookMu.Unlock()
}

func (c *Controller) runHook(ctx context.Context, ev models.RecognitionEvent, crop image.Image) {
	c.hookMu.RLock()
	h := c.hook
	c.hookMu.RUnlock()
	if h != nil {
		h(ctx, ev, crop)
	}
}

func (c *Controller) renderFrame(frame image.Image) {
	c.hookMu.RLock()
	render := c.render
	c.hookMu.RUnlock()
	if render != nil {
		render(frame)
	}
}
