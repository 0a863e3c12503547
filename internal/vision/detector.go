package vision

import (
	"fmt"
	"image"
	"sort"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceid/internal/fault"
)

// ONNXDetector runs anchor-based face detection (RetinaFace det_10g) via
// ONNX Runtime.
type ONNXDetector struct {
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	inputW        int
	inputH        int
}

// stride configuration for RetinaFace det_10g
var strides = []int{8, 16, 32}

// anchorsPerStride is the number of anchors per pixel at each stride
const anchorsPerStride = 2

const nmsIoUThreshold = 0.4

// NewONNXDetector loads the detection model.
// opts may be nil (ORT defaults) or a pre-configured *ort.SessionOptions.
func NewONNXDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*ONNXDetector, error) {
	inputW, inputH := 640, 640

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// det_10g output shapes (no batch dimension):
	// scores: [12800,1] [3200,1] [800,1] and bboxes: [12800,4] [3200,4] [800,4]
	// for strides 8, 16, 32. 12800 = (640/8)^2 * 2 anchors, and so on.
	type outputSpec struct {
		name  string
		shape ort.Shape
	}

	outputs := []outputSpec{
		{"448", ort.NewShape(12800, 1)}, // scores stride 8
		{"471", ort.NewShape(3200, 1)},  // scores stride 16
		{"494", ort.NewShape(800, 1)},   // scores stride 32
		{"451", ort.NewShape(12800, 4)}, // bboxes stride 8
		{"474", ort.NewShape(3200, 4)},  // bboxes stride 16
		{"497", ort.NewShape(800, 4)},   // bboxes stride 32
	}

	outputNames := make([]string, len(outputs))
	outputTensors := make([]*ort.Tensor[float32], len(outputs))
	outputValues := make([]ort.Value, len(outputs))

	for i, spec := range outputs {
		outputNames[i] = spec.name
		t, err := ort.NewEmptyTensor[float32](spec.shape)
		if err != nil {
			for j := 0; j < i; j++ {
				outputTensors[j].Destroy()
			}
			inputTensor.Destroy()
			return nil, fmt.Errorf("create output tensor %d (%s): %w", i, spec.name, err)
		}
		outputTensors[i] = t
		outputValues[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		outputNames,
		[]ort.Value{inputTensor},
		outputValues,
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		for _, t := range outputTensors {
			t.Destroy()
		}
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &ONNXDetector{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: outputTensors,
		threshold:     threshold,
		inputW:        inputW,
		inputH:        inputH,
	}, nil
}

// Detect runs face detection on a frame. Returns zero or more candidate
// boxes in the frame's coordinate space.
func (d *ONNXDetector) Detect(img image.Image) ([]Detection, error) {
	if err := ValidateFrame(img); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	origW := bounds.Dx()
	origH := bounds.Dy()

	input := preprocessForDetection(img, d.inputW, d.inputH)
	copy(d.inputTensor.GetData(), input)

	if err := d.session.Run(); err != nil {
		return nil, fault.Wrap(fault.Detection, "run detection", err)
	}

	detections := d.parseDetections(origW, origH)
	return nms(detections, nmsIoUThreshold), nil
}

// parseDetections decodes anchor-based outputs at strides 8, 16, 32.
func (d *ONNXDetector) parseDetections(origW, origH int) []Detection {
	var detections []Detection

	scaleW := float32(origW) / float32(d.inputW)
	scaleH := float32(origH) / float32(d.inputH)

	for si, stride := range strides {
		scores := d.outputTensors[si].GetData()   // [N, 1]
		bboxes := d.outputTensors[si+3].GetData() // [N, 4]

		fmW := d.inputW / stride
		fmH := d.inputH / stride

		idx := 0
		for cy := 0; cy < fmH; cy++ {
			for cx := 0; cx < fmW; cx++ {
				for a := 0; a < anchorsPerStride; a++ {
					score := scores[idx]

					if score >= d.threshold {
						anchorX := float32(cx) * float32(stride)
						anchorY := float32(cy) * float32(stride)

						// Bbox outputs are anchor-to-edge distances in
						// stride-normalized units.
						st := float32(stride)
						x1 := (anchorX - bboxes[idx*4+0]*st) * scaleW
						y1 := (anchorY - bboxes[idx*4+1]*st) * scaleH
						x2 := (anchorX + bboxes[idx*4+2]*st) * scaleW
						y2 := (anchorY + bboxes[idx*4+3]*st) * scaleH

						x1 = clampF(x1, 0, float32(origW))
						y1 = clampF(y1, 0, float32(origH))
						x2 = clampF(x2, 0, float32(origW))
						y2 = clampF(y2, 0, float32(origH))

						detections = append(detections, Detection{
							BBox:       [4]float32{x1, y1, x2, y2},
							Confidence: score,
						})
					}
					idx++
				}
			}
		}
	}

	return detections
}

func (d *ONNXDetector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// nms performs Non-Maximum Suppression on detections.
func nms(detections []Detection, iouThreshold float32) []Detection {
	if len(detections) == 0 {
		return detections
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	keep := make([]bool, len(detections))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(detections); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(detections); j++ {
			if !keep[j] {
				continue
			}
			if iou(detections[i].BBox, detections[j].BBox) > iouThreshold {
				keep[j] = false
			}
		}
	}

	var result []Detection
	for i, det := range detections {
		if keep[i] {
			result = append(result, det)
		}
	}
	return result
}

func iou(a, b [4]float32) float32 {
	x1 := maxF(a[0], b[0])
	y1 := maxF(a[1], b[1])
	x2 := minF(a[2], b[2])
	y2 := minF(a[3], b[3])

	intersection := maxF(0, x2-x1) * maxF(0, y2-y1)

	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - intersection

	if union <= 0 {
		return 0
	}
	return intersection / union
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxF(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
