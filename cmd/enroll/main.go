// Command enroll registers an identity from an image file instead of a live
// camera frame. Useful for seeding the corpus from existing photos.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/observability"
	"github.com/your-org/faceid/internal/recognize"
	"github.com/your-org/faceid/internal/store"
	"github.com/your-org/faceid/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	name := flag.String("name", "", "identity name to enroll")
	imagePath := flag.String("image", "", "path to a photo containing one face")
	flag.Parse()

	if *name == "" || *imagePath == "" {
		fmt.Fprintln(os.Stderr, "usage: enroll -name <identity> -image <photo.jpg>")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx := context.Background()

	db, err := store.New(ctx, cfg.Database, cfg.Security)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ort.SetSharedLibraryPath(onnxLibPath())
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

	f, err := os.Open(*imagePath)
	if err != nil {
		slog.Error("open image", "error", err)
		os.Exit(1)
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		slog.Error("decode image", "error", err)
		os.Exit(1)
	}

	detections, err := detector.Detect(img)
	if err != nil {
		slog.Error("detect", "error", err)
		os.Exit(1)
	}
	if len(detections) == 0 {
		slog.Error("no face detected in image", "path", *imagePath)
		os.Exit(1)
	}

	det := detections[0]
	crop := vision.CropFace(img, det.BBox)
	if crop == nil {
		slog.Error("detected box produced an empty crop")
		os.Exit(1)
	}

	recognizer := recognize.NewRecognizer(embedder, db, cfg.Vision.RecognitionThreshold)
	vec, err := recognizer.GenerateEmbedding(crop)
	if err != nil {
		slog.Error("generate embedding", "error", err)
		os.Exit(1)
	}

	if err := db.StoreEmbedding(ctx, *name, vec, det.Confidence); err != nil {
		slog.Error("store embedding", "error", err)
		os.Exit(1)
	}

	slog.Info("identity enrolled", "name", *name, "dim", len(vec), "quality", det.Confidence)
}

func onnxLibPath() string {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
