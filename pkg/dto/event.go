package dto

import "time"

// WSEvent is the per-frame recognition result pushed to WebSocket clients.
type WSEvent struct {
	Type       string     `json:"type"`
	Identity   string     `json:"identity"`
	Confidence float64    `json:"confidence"`
	Recognized bool       `json:"recognized"`
	FaceFound  bool       `json:"face_found"`
	BBox       [4]float32 `json:"bbox,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}
