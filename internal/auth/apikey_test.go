package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newAuthedRouter(key string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKeyMiddleware(key))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		header     string
		value      string
		wantStatus int
	}{
		{"valid key", "secret", Header, "secret", http.StatusOK},
		{"missing key", "secret", "", "", http.StatusUnauthorized},
		{"wrong key", "secret", Header, "nope", http.StatusForbidden},
		{"bearer token accepted", "secret", "Authorization", "Bearer secret", http.StatusOK},
		{"wrong bearer token", "secret", "Authorization", "Bearer nope", http.StatusForbidden},
		{"malformed authorization", "secret", "Authorization", "Basic secret", http.StatusUnauthorized},
		{"auth disabled", "", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newAuthedRouter(tt.key)
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestCustomHeaderWinsOverBearer(t *testing.T) {
	r := newAuthedRouter("secret")
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(Header, "nope")
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}
