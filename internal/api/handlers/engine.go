package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceid/internal/engine"
	"github.com/your-org/faceid/internal/fault"
	"github.com/your-org/faceid/internal/recognize"
	"github.com/your-org/faceid/pkg/dto"
)

type EngineHandler struct {
	ctrl       *engine.Controller
	recognizer *recognize.Recognizer
}

func NewEngineHandler(ctrl *engine.Controller, recognizer *recognize.Recognizer) *EngineHandler {
	return &EngineHandler{ctrl: ctrl, recognizer: recognizer}
}

func (h *EngineHandler) Start(c *gin.Context) {
	if err := h.ctrl.Start(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.ctrl.State().String()})
}

func (h *EngineHandler) Stop(c *gin.Context) {
	h.ctrl.Stop()
	c.JSON(http.StatusOK, gin.H{"state": h.ctrl.State().String()})
}

func (h *EngineHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, dto.EngineStatusResponse{
		State:          h.ctrl.State().String(),
		Running:        h.ctrl.IsRunning(),
		IndexSize:      h.recognizer.IndexSize(),
		Threshold:      h.recognizer.Threshold(),
		LastConfidence: h.recognizer.LastConfidence(),
	})
}

// Register captures one frame from the camera and enrolls the first detected
// face under the requested name.
func (h *EngineHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.ctrl.RegisterIdentity(c.Request.Context(), req.Name)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, dto.RegisterResponse{Name: req.Name, Status: "enrolled"})
	case errors.Is(err, engine.ErrNoFaceDetected):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no face detected, try again"})
	case fault.IsKind(err, fault.Camera):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
