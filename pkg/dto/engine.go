// Package dto holds the JSON request/response shapes of the HTTP and
// WebSocket API.
package dto

type EngineStatusResponse struct {
	State          string  `json:"state"`
	Running        bool    `json:"running"`
	IndexSize      int     `json:"index_size"`
	Threshold      float64 `json:"threshold"`
	LastConfidence float64 `json:"last_confidence"`
}

type RegisterRequest struct {
	Name string `json:"name" binding:"required"`
}

type RegisterResponse struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}
