package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceid/internal/store"
)

type SnapshotHandler struct {
	snapshots *store.SnapshotStore
}

func NewSnapshotHandler(snapshots *store.SnapshotStore) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots}
}

func (h *SnapshotHandler) List(c *gin.Context) {
	keys, err := h.snapshots.List(c.Request.Context(), c.Query("prefix"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": keys})
}

func (h *SnapshotHandler) Get(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	data, err := h.snapshots.Get(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}
