package models

import "time"

// UnknownIdentity is the label reported when the best match misses the
// acceptance threshold, or when the corpus is empty.
const UnknownIdentity = "Unknown"

// RecognitionEvent is one loop-cycle result pushed to subscribers. For a
// frame with multiple faces only the highest-confidence result is reported.
type RecognitionEvent struct {
	Identity   string     `json:"identity"`
	Confidence float64    `json:"confidence"`
	Recognized bool       `json:"recognized"`
	FaceFound  bool       `json:"face_found"`
	BBox       [4]float32 `json:"bbox,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// EngineState is the process-wide lifecycle state of the capture loop.
type EngineState int32

const (
	EngineStopped EngineState = iota
	EngineStarting
	EngineRunning
	EngineStopping
)

func (s EngineState) String() string {
	switch s {
	case EngineStopped:
		return "stopped"
	case EngineStarting:
		return "starting"
	case EngineRunning:
		return "running"
	case EngineStopping:
		return "stopping"
	default:
		return "unknown"
	}
}
