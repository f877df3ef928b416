package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facematch/internal/api/handlers"
	"github.com/your-org/facematch/internal/api/ws"
	"github.com/your-org/facematch/internal/auth"
	"github.com/your-org/facematch/internal/ingest"
	"github.com/your-org/facematch/internal/match"
	"github.com/your-org/facematch/internal/process"
	"github.com/your-org/facematch/internal/queue"
	"github.com/your-org/facematch/internal/registration"
	"github.com/your-org/facematch/internal/storage"
)

type RouterConfig struct {
	APIKey        string
	DB            *storage.PostgresStore
	Blobs         *storage.MinIOStore
	Producer      *queue.Producer
	Hub           *ws.Hub
	Registrations *registration.Service
	Ingest        *ingest.Service
	Engine        *match.Engine
	Retrier       *process.Retrier
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.Blobs, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket progress feed
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Registrations
	regH := handlers.NewRegistrationHandler(cfg.Registrations, cfg.Blobs)
	v1.POST("/registrations", regH.Create)
	v1.GET("/registrations/:id", regH.Get)
	v1.GET("/registrations/:id/selfie", regH.Selfie)
	v1.GET("/events/:id/registrations", regH.ListByEvent)

	// Photos
	photoH := handlers.NewPhotoHandler(cfg.Ingest, cfg.Engine, cfg.Retrier, cfg.DB, cfg.Blobs)
	v1.POST("/photos/upload", photoH.Upload)
	v1.GET("/photos/status/:eventId", photoH.Status)
	v1.POST("/photos/search", photoH.Search)
	v1.POST("/photos/:id/retry", photoH.Retry)
	v1.GET("/photos/:id/image", photoH.Image)

	return r
}
