package vision

import (
	"math"
	"testing"
)

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b [4]float32
		want float32
	}{
		{"identical", [4]float32{0, 0, 10, 10}, [4]float32{0, 0, 10, 10}, 1},
		{"disjoint", [4]float32{0, 0, 10, 10}, [4]float32{20, 20, 30, 30}, 0},
		{"half overlap", [4]float32{0, 0, 10, 10}, [4]float32{5, 0, 15, 10}, 1.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := iou(tt.a, tt.b)
			if math.Abs(float64(got-tt.want)) > 1e-5 {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestNMSSuppressesOverlaps(t *testing.T) {
	detections := []Detection{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.9},
		{BBox: [4]float32{1, 1, 11, 11}, Confidence: 0.8}, // heavy overlap with the first
		{BBox: [4]float32{50, 50, 60, 60}, Confidence: 0.7},
	}

	kept := nms(detections, 0.4)
	if len(kept) != 2 {
		t.Fatalf("expected 2 detections after suppression, got %d", len(kept))
	}
	if kept[0].Confidence != 0.9 {
		t.Errorf("highest-confidence box must survive, got %f", kept[0].Confidence)
	}
	if kept[1].BBox != ([4]float32{50, 50, 60, 60}) {
		t.Errorf("disjoint box must survive, got %v", kept[1].BBox)
	}
}

func TestNMSKeepsAllDisjoint(t *testing.T) {
	detections := []Detection{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.6},
		{BBox: [4]float32{20, 20, 30, 30}, Confidence: 0.9},
		{BBox: [4]float32{40, 40, 50, 50}, Confidence: 0.7},
	}

	kept := nms(detections, 0.4)
	if len(kept) != 3 {
		t.Fatalf("expected all 3 disjoint boxes kept, got %d", len(kept))
	}
	// Sorted by confidence, highest first.
	if kept[0].Confidence != 0.9 || kept[2].Confidence != 0.6 {
		t.Errorf("expected confidence-sorted output, got %+v", kept)
	}
}

func TestNMSEmpty(t *testing.T) {
	if got := nms(nil, 0.4); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}
