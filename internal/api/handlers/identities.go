package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/recognize"
	"github.com/your-org/faceid/internal/store"
	"github.com/your-org/faceid/pkg/dto"
)

type IdentityHandler struct {
	db         *store.Store
	recognizer *recognize.Recognizer
}

func NewIdentityHandler(db *store.Store, recognizer *recognize.Recognizer) *IdentityHandler {
	return &IdentityHandler{db: db, recognizer: recognizer}
}

func (h *IdentityHandler) List(c *gin.Context) {
	names, err := h.db.ListIdentities(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]dto.IdentityResponse, 0, len(names))
	for _, name := range names {
		ident, err := h.db.GetIdentity(c.Request.Context(), name)
		if err != nil {
			if errors.Is(err, store.ErrIdentityNotFound) {
				continue // deleted between list and get
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out = append(out, identityToDTO(ident))
	}
	c.JSON(http.StatusOK, gin.H{"identities": out})
}

func (h *IdentityHandler) Get(c *gin.Context) {
	ident, err := h.db.GetIdentity(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, store.ErrIdentityNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, identityToDTO(ident))
}

// Delete removes an identity and all of its samples, then refreshes the
// matching index so the next frame can no longer match the removed person.
func (h *IdentityHandler) Delete(c *gin.Context) {
	name := c.Param("name")
	err := h.db.DeleteIdentity(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrIdentityNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.recognizer.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusOK, gin.H{"deleted": name, "warning": "index refresh failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": name})
}

func (h *IdentityHandler) Stats(c *gin.Context) {
	stats, err := h.db.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.StatsResponse{
		Identities: int64(stats.IdentityCount),
		Embeddings: int64(stats.EmbeddingCount),
		IndexSize:  h.recognizer.IndexSize(),
	})
}

// Search runs a similarity query against the database-side vector index.
// Unavailable when embeddings are stored encrypted.
func (h *IdentityHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	matches, err := h.db.SearchEmbeddings(c.Request.Context(), req.Embedding, h.recognizer.Threshold(), req.Limit)
	if err != nil {
		if errors.Is(err, store.ErrSearchUnavailable) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]dto.SearchResult, 0, len(matches))
	for _, m := range matches {
		out = append(out, dto.SearchResult{Name: m.Name, Score: m.Score})
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

func (h *IdentityHandler) Audit(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.db.AuditTrail(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.AuditEntryResponse{
			ID:        e.ID,
			Operation: e.Operation,
			TableName: e.TableName,
			RecordID:  e.RecordID,
			Actor:     e.Actor,
			Origin:    e.Origin,
			OldData:   e.OldData,
			NewData:   e.NewData,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

func identityToDTO(ident *models.Identity) dto.IdentityResponse {
	resp := dto.IdentityResponse{
		ID:               ident.ID,
		Name:             ident.Name,
		Active:           ident.Active,
		RecognitionCount: ident.RecognitionCount,
		CreatedAt:        ident.CreatedAt.Format(time.RFC3339),
	}
	if ident.LastRecognizedAt != nil {
		resp.LastRecognizedAt = ident.LastRecognizedAt.Format(time.RFC3339)
	}
	return resp
}
