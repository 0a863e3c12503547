package vision

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceid/internal/fault"
)

// ONNXEmbedder extracts face embeddings (ArcFace w600k_r50) via ONNX Runtime.
type ONNXEmbedder struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
	embDim       int
	minFaceSize  int
}

// NewONNXEmbedder loads the embedding model. minFaceSize is the smallest
// region (either dimension, pixels) the embedder will accept.
func NewONNXEmbedder(modelPath string, minFaceSize int) (*ONNXEmbedder, error) {
	// ArcFace w600k_r50 expects 112x112 input
	inputW, inputH := 112, 112
	embDim := 512

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(embDim))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		[]string{"683"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &ONNXEmbedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
		embDim:       embDim,
		minFaceSize:  minFaceSize,
	}, nil
}

// Embed runs embedding extraction on a cropped face region and returns a
// normalized fixed-length vector.
func (e *ONNXEmbedder) Embed(region image.Image) ([]float32, error) {
	if err := ValidateRegion(region, e.minFaceSize); err != nil {
		return nil, err
	}

	input := preprocessForEmbedding(region, e.inputW, e.inputH)
	copy(e.inputTensor.GetData(), input)

	if err := e.session.Run(); err != nil {
		return nil, fault.Wrap(fault.Recognition, "run embedding", err)
	}

	embedding := make([]float32, e.embDim)
	copy(embedding, e.outputTensor.GetData())

	Normalize(embedding)
	return embedding, nil
}

// Dim returns the embedding vector dimension.
func (e *ONNXEmbedder) Dim() int {
	return e.embDim
}

func (e *ONNXEmbedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}

// Normalize performs L2 normalization in-place.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
