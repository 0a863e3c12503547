package engine

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/recognize"
	"github.com/your-org/faceid/internal/vision"
)

type fakeCamera struct {
	mu      sync.Mutex
	open    bool
	opens   int
	closes  int
	grabs   int
	grabErr error
	openErr error

	// v4l2Open mirrors the real device source, where Open on an
	// already-open handle is a silent no-op.
	v4l2Open bool
	// closeGate, when set, blocks Close until the channel is closed.
	closeGate chan struct{}
}

func (f *fakeCamera) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	if f.open {
		if f.v4l2Open {
			return nil
		}
		return errors.New("device already open")
	}
	f.open = true
	f.opens++
	return nil
}

func (f *fakeCamera) Grab() (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return nil, errors.New("device not open")
	}
	if f.grabErr != nil {
		return nil, f.grabErr
	}
	f.grabs++
	return image.NewRGBA(image.Rect(0, 0, 64, 64)), nil
}

func (f *fakeCamera) Close() error {
	if f.closeGate != nil {
		<-f.closeGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open {
		f.open = false
		f.closes++
	}
	return nil
}

func (f *fakeCamera) snapshot() (opens, closes int, open bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.closes, f.open
}

type fakeDetector struct {
	mu         sync.Mutex
	detections []vision.Detection
	err        error
	calls      int
}

func (f *fakeDetector) Detect(img image.Image) ([]vision.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.detections, f.err
}

func (f *fakeDetector) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	mu        sync.Mutex
	stored    []string
	vectors   [][]float32
	recorded  []string
	storeErr  error
	recordErr error
}

func (f *fakeStore) StoreEmbedding(ctx context.Context, name string, vec []float32, quality float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return f.storeErr
	}
	f.stored = append(f.stored, name)
	f.vectors = append(f.vectors, vec)
	return nil
}

func (f *fakeStore) RecordRecognition(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, name)
	return nil
}

func (f *fakeStore) storedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stored...)
}

type stubEmbedder struct {
	vec []float32
}

func (s *stubEmbedder) Embed(region image.Image) ([]float32, error) { return s.vec, nil }
func (s *stubEmbedder) Dim() int                                    { return len(s.vec) }

type stubCorpus struct {
	entries []models.LabeledEmbedding
}

func (s *stubCorpus) AllEmbeddings(ctx context.Context) ([]models.LabeledEmbedding, error) {
	return s.entries, nil
}

func knownVector() []float32 {
	v := make([]float32, 8)
	v[0] = 1
	return v
}

func newTestController(cam *fakeCamera, det *fakeDetector, store *fakeStore, corpus []models.LabeledEmbedding) *Controller {
	rec := recognize.NewRecognizer(&stubEmbedder{vec: knownVector()}, &stubCorpus{entries: corpus}, 0.4)
	return New(cam, det, rec, store, Config{
		FrameInterval:  time.Millisecond,
		AcquireTimeout: time.Second,
	})
}

func faceAt(x, y, w, h float32) vision.Detection {
	return vision.Detection{BBox: [4]float32{x, y, x + w, y + h}, Confidence: 0.9}
}

func TestStartStopIsIdempotentAndLeaksNothing(t *testing.T) {
	cam := &fakeCamera{}
	det := &fakeDetector{}
	ctrl := newTestController(cam, det, &fakeStore{}, nil)

	for i := 0; i < 100; i++ {
		if err := ctrl.Start(context.Background()); err != nil {
			t.Fatalf("cycle %d: Start: %v", i, err)
		}
		if !ctrl.IsRunning() {
			t.Fatalf("cycle %d: expected running after Start", i)
		}
		// Start again while running must be a no-op.
		if err := ctrl.Start(context.Background()); err != nil {
			t.Fatalf("cycle %d: repeated Start: %v", i, err)
		}

		ctrl.Stop()
		ctrl.Stop() // repeated Stop must also be a no-op

		if got := ctrl.State(); got != models.EngineStopped {
			t.Fatalf("cycle %d: expected stopped, got %s", i, got)
		}
		opens, closes, open := cam.snapshot()
		if open {
			t.Fatalf("cycle %d: camera still open after Stop", i)
		}
		if opens != closes {
			t.Fatalf("cycle %d: camera handle leak: %d opens, %d closes", i, opens, closes)
		}
	}
}

func TestLoopSkipsFrameOnDetectorFailure(t *testing.T) {
	cam := &fakeCamera{}
	det := &fakeDetector{err: errors.New("tensor shape mismatch")}
	ctrl := newTestController(cam, det, &fakeStore{}, nil)

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ctrl.Stop()

	deadline := time.After(2 * time.Second)
	for det.callCount() < 5 {
		select {
		case <-deadline:
			t.Fatal("detector never reached 5 calls; loop appears stalled")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Per-frame failures must not kill the loop.
	if !ctrl.IsRunning() {
		t.Error("expected loop to keep running across detector failures")
	}
}

func TestLoopStopsOnCameraFailure(t *testing.T) {
	cam := &fakeCamera{}
	det := &fakeDetector{}
	ctrl := newTestController(cam, det, &fakeStore{}, nil)

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cam.mu.Lock()
	cam.grabErr = errors.New("device unplugged")
	cam.mu.Unlock()

	deadline := time.After(2 * time.Second)
	for ctrl.State() != models.EngineStopped {
		select {
		case <-deadline:
			t.Fatal("engine never stopped after camera failure")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, _, open := cam.snapshot(); open {
		t.Error("camera must be released after a self-stop")
	}

	// A later Start must succeed once the device recovers.
	cam.mu.Lock()
	cam.grabErr = nil
	cam.mu.Unlock()
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("restart after failure: %v", err)
	}
	ctrl.Stop()
}

func TestRegisterIdentityStopped(t *testing.T) {
	cam := &fakeCamera{}
	det := &fakeDetector{detections: []vision.Detection{faceAt(10, 10, 30, 30)}}
	store := &fakeStore{}
	ctrl := newTestController(cam, det, store, nil)

	if err := ctrl.RegisterIdentity(context.Background(), "alice"); err != nil {
		t.Fatalf("RegisterIdentity: %v", err)
	}

	if got := store.storedNames(); len(got) != 1 || got[0] != "alice" {
		t.Errorf("expected one stored embedding for alice, got %v", got)
	}
	opens, closes, open := cam.snapshot()
	if open || opens != 1 || closes != 1 {
		t.Errorf("registration must open and release the camera exactly once, got opens=%d closes=%d open=%v",
			opens, closes, open)
	}
}

func TestRegisterIdentityWhileRunningSharesCamera(t *testing.T) {
	cam := &fakeCamera{}
	det := &fakeDetector{detections: []vision.Detection{faceAt(10, 10, 30, 30)}}
	store := &fakeStore{}
	ctrl := newTestController(cam, det, store, nil)

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ctrl.Stop()

	if err := ctrl.RegisterIdentity(context.Background(), "bob"); err != nil {
		t.Fatalf("RegisterIdentity while running: %v", err)
	}

	if got := store.storedNames(); len(got) != 1 || got[0] != "bob" {
		t.Errorf("expected one stored embedding for bob, got %v", got)
	}
	opens, _, _ := cam.snapshot()
	if opens != 1 {
		t.Errorf("registration while running must share the loop's handle, got %d opens", opens)
	}
}

// gatedCorpus parks AllEmbeddings until the gate opens, holding a Start in
// its index-refresh phase.
type gatedCorpus struct {
	gate chan struct{}
}

func (g *gatedCorpus) AllEmbeddings(ctx context.Context) ([]models.LabeledEmbedding, error) {
	<-g.gate
	return nil, nil
}

func TestRegisterIdentityDuringStartupSharesHandle(t *testing.T) {
	gate := make(chan struct{})
	cam := &fakeCamera{v4l2Open: true}
	det := &fakeDetector{detections: []vision.Detection{faceAt(10, 10, 30, 30)}}
	store := &fakeStore{}
	rec := recognize.NewRecognizer(&stubEmbedder{vec: knownVector()}, &gatedCorpus{gate: gate}, 0.4)
	ctrl := New(cam, det, rec, store, Config{
		FrameInterval:  time.Millisecond,
		AcquireTimeout: time.Second,
	})

	startErr := make(chan error, 1)
	go func() { startErr <- ctrl.Start(context.Background()) }()

	// Wait until Start holds the camera and is parked in the index refresh.
	deadline := time.After(2 * time.Second)
	for {
		if opens, _, open := cam.snapshot(); opens == 1 && open {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Start never acquired the camera")
		case <-time.After(time.Millisecond):
		}
	}

	regErr := make(chan error, 1)
	go func() { regErr <- ctrl.RegisterIdentity(context.Background(), "alice") }()

	// Registration must wait for startup to finish, not race it and close
	// the handle the loop is about to use.
	select {
	case err := <-regErr:
		t.Fatalf("registration completed mid-startup: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	if err := <-startErr; err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := <-regErr; err != nil {
		t.Fatalf("RegisterIdentity: %v", err)
	}
	if !ctrl.IsRunning() {
		t.Fatal("loop must survive a registration issued during startup")
	}
	opens, closes, open := cam.snapshot()
	if opens != 1 || closes != 0 || !open {
		t.Fatalf("registration must share the startup handle, got opens=%d closes=%d open=%v",
			opens, closes, open)
	}
	if got := store.storedNames(); len(got) != 1 || got[0] != "alice" {
		t.Errorf("expected one stored embedding for alice, got %v", got)
	}
	ctrl.Stop()
}

func TestStartWaitsOutSelfStop(t *testing.T) {
	cam := &fakeCamera{closeGate: make(chan struct{})}
	det := &fakeDetector{}
	ctrl := newTestController(cam, det, &fakeStore{}, nil)

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cam.mu.Lock()
	cam.grabErr = errors.New("device unplugged")
	cam.mu.Unlock()

	// The loop hits the failure and parks in its gated cleanup, pinning
	// the engine in Stopping.
	deadline := time.After(2 * time.Second)
	for ctrl.State() != models.EngineStopping {
		select {
		case <-deadline:
			t.Fatal("engine never began stopping after camera failure")
		case <-time.After(time.Millisecond):
		}
	}

	cam.mu.Lock()
	cam.grabErr = nil
	cam.mu.Unlock()

	restart := make(chan error, 1)
	go func() { restart <- ctrl.Start(context.Background()) }()

	// Start must not report success while the previous run is winding down.
	select {
	case err := <-restart:
		t.Fatalf("Start returned mid-teardown: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(cam.closeGate)
	if err := <-restart; err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !ctrl.IsRunning() {
		t.Fatal("a nil Start must leave the engine running")
	}
	ctrl.Stop()
}

func TestRegisterIdentityNoFace(t *testing.T) {
	cam := &fakeCamera{}
	det := &fakeDetector{} // no detections
	store := &fakeStore{}
	ctrl := newTestController(cam, det, store, nil)

	err := ctrl.RegisterIdentity(context.Background(), "alice")
	if !errors.Is(err, ErrNoFaceDetected) {
		t.Fatalf("expected ErrNoFaceDetected, got %v", err)
	}
	if len(store.storedNames()) != 0 {
		t.Error("failed registration must not write partial state")
	}
	if _, _, open := cam.snapshot(); open {
		t.Error("camera must be released after failed registration")
	}
}

func TestRegisterIdentityEmptyName(t *testing.T) {
	ctrl := newTestController(&fakeCamera{}, &fakeDetector{}, &fakeStore{}, nil)
	if err := ctrl.RegisterIdentity(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestSubscriberReceivesRecognitionEvents(t *testing.T) {
	corpus := []models.LabeledEmbedding{{Name: "alice", Vector: knownVector()}}
	cam := &fakeCamera{}
	det := &fakeDetector{detections: []vision.Detection{faceAt(5, 5, 40, 40)}}
	store := &fakeStore{}
	ctrl := newTestController(cam, det, store, corpus)

	events, unsubscribe := ctrl.Subscribe(16)
	defer unsubscribe()

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ctrl.Stop()

	select {
	case ev := <-events:
		if !ev.FaceFound {
			t.Errorf("expected face_found, got %+v", ev)
		}
		if !ev.Recognized || ev.Identity != "alice" {
			t.Errorf("expected alice recognized, got %+v", ev)
		}
		if ev.Confidence < 0.4 {
			t.Errorf("expected confidence above threshold, got %f", ev.Confidence)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestUnknownFaceReportedAsUnknown(t *testing.T) {
	// Corpus holds only an orthogonal vector, so the query never matches.
	orthogonal := make([]float32, 8)
	orthogonal[1] = 1
	corpus := []models.LabeledEmbedding{{Name: "bob", Vector: orthogonal}}

	cam := &fakeCamera{}
	det := &fakeDetector{detections: []vision.Detection{faceAt(5, 5, 40, 40)}}
	ctrl := newTestController(cam, det, &fakeStore{}, corpus)

	events, unsubscribe := ctrl.Subscribe(16)
	defer unsubscribe()

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ctrl.Stop()

	select {
	case ev := <-events:
		if ev.Recognized {
			t.Errorf("orthogonal corpus must not recognize, got %+v", ev)
		}
		if ev.Identity != models.UnknownIdentity {
			t.Errorf("expected %s, got %s", models.UnknownIdentity, ev.Identity)
		}
		if !ev.FaceFound {
			t.Error("face was detected, event must say so")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}
