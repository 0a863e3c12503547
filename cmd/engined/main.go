package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceid/internal/api"
	"github.com/your-org/faceid/internal/api/ws"
	"github.com/your-org/faceid/internal/camera"
	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/engine"
	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
	"github.com/your-org/faceid/internal/queue"
	"github.com/your-org/faceid/internal/recognize"
	"github.com/your-org/faceid/internal/store"
	"github.com/your-org/faceid/internal/vision"
	"github.com/your-org/faceid/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	autostart := flag.Bool("autostart", false, "start the capture loop on boot")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting face identification engine", "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres (also runs migrations)
	db, err := store.New(ctx, cfg.Database, cfg.Security)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize ONNX Runtime and the vision models
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("onnx runtime init", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	detector, err := vision.NewONNXDetector(
		filepath.Join(cfg.Vision.ModelsDir, "det_10g.onnx"),
		float32(cfg.Vision.DetectionThreshold),
		nil,
	)
	if err != nil {
		slog.Error("load detection model", "error", err)
		os.Exit(1)
	}
	defer detector.Close()

	embedder, err := vision.NewONNXEmbedder(
		filepath.Join(cfg.Vision.ModelsDir, "w600k_r50.onnx"),
		cfg.Vision.MinFaceSize,
	)
	if err != nil {
		slog.Error("load recognition model", "error", err)
		os.Exit(1)
	}
	defer embedder.Close()

	recognizer := recognize.NewRecognizer(embedder, db, cfg.Vision.RecognitionThreshold)
	if err := recognizer.Refresh(ctx); err != nil {
		slog.Warn("initial index build", "error", err)
	}

	// Camera and the capture loop
	cam := camera.NewV4L2Source(cfg.Camera)
	interval := time.Second / time.Duration(max(cfg.Camera.FPS, 1))
	ctrl := engine.New(cam, detector, recognizer, db, engine.Config{
		FrameInterval:  interval,
		AcquireTimeout: cfg.Camera.AcquireTimeout,
	})

	// Optional snapshot archive
	var snapshots *store.SnapshotStore
	if cfg.Snapshots.Enabled {
		snapshots, err = store.NewSnapshotStore(cfg.Snapshots)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := snapshots.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure snapshot bucket", "error", err)
		}
	}

	// Optional event bus
	var producer *queue.Producer
	if cfg.NATS.Enabled {
		producer, err = queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
	}

	ctrl.SetRecognitionHook(func(ctx context.Context, ev models.RecognitionEvent, crop image.Image) {
		if producer != nil {
			if err := producer.PublishRecognition(ctx, ev); err != nil {
				slog.Warn("publish recognition", "error", err)
			}
		}
		if snapshots != nil {
			data := vision.EncodeJPEG(crop, 85)
			key := fmt.Sprintf("%s/%s/%s.jpg",
				ev.Timestamp.Format("2006-01-02"), ev.Identity, uuid.NewString())
			if err := snapshots.Put(ctx, key, data); err != nil {
				slog.Warn("store snapshot", "error", err)
			}
		}
	})

	// WebSocket hub, fed from the engine's event stream
	hub := ws.NewHub()
	go hub.Run()

	events, unsubscribe := ctrl.Subscribe(64)
	defer unsubscribe()
	go func() {
		for ev := range events {
			evtType := "no_face"
			switch {
			case ev.Recognized:
				evtType = "recognized"
			case ev.FaceFound:
				evtType = "unknown_face"
			}
			hub.BroadcastEvent(&dto.WSEvent{
				Type:       evtType,
				Identity:   ev.Identity,
				Confidence: ev.Confidence,
				Recognized: ev.Recognized,
				FaceFound:  ev.FaceFound,
				BBox:       ev.BBox,
				Timestamp:  ev.Timestamp,
			})
		}
	}()

	if *autostart {
		if err := ctrl.Start(ctx); err != nil {
			slog.Error("autostart capture loop", "error", err)
		}
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:     cfg.Server.APIKey,
		DB:         db,
		Snapshots:  snapshots,
		Producer:   producer,
		Controller: ctrl,
		Recognizer: recognizer,
		Hub:        hub,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")
	ctrl.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("engine stopped")
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
