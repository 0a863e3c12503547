package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/faceid/internal/api/handlers"
	"github.com/your-org/faceid/internal/api/ws"
	"github.com/your-org/faceid/internal/auth"
	"github.com/your-org/faceid/internal/engine"
	"github.com/your-org/faceid/internal/queue"
	"github.com/your-org/faceid/internal/recognize"
	"github.com/your-org/faceid/internal/store"
)

type RouterConfig struct {
	APIKey     string
	DB         *store.Store
	Snapshots  *store.SnapshotStore // optional
	Producer   *queue.Producer      // optional
	Controller *engine.Controller
	Recognizer *recognize.Recognizer
	Hub        *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.Snapshots, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Engine lifecycle and enrollment
	engineH := handlers.NewEngineHandler(cfg.Controller, cfg.Recognizer)
	v1.POST("/engine/start", engineH.Start)
	v1.POST("/engine/stop", engineH.Stop)
	v1.GET("/engine/status", engineH.Status)
	v1.POST("/register", engineH.Register)

	// Identities
	identityH := handlers.NewIdentityHandler(cfg.DB, cfg.Recognizer)
	v1.GET("/identities", identityH.List)
	v1.GET("/identities/:name", identityH.Get)
	v1.DELETE("/identities/:name", identityH.Delete)
	v1.GET("/stats", identityH.Stats)
	v1.POST("/search", identityH.Search)
	v1.GET("/audit", identityH.Audit)

	// Snapshots (only when the archive is configured)
	if cfg.Snapshots != nil {
		snapH := handlers.NewSnapshotHandler(cfg.Snapshots)
		v1.GET("/snapshots", snapH.List)
		v1.GET("/snapshots/*key", snapH.Get)
	}

	return r
}
