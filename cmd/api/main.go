package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facematch/internal/api"
	"github.com/your-org/facematch/internal/api/ws"
	"github.com/your-org/facematch/internal/config"
	"github.com/your-org/facematch/internal/ingest"
	"github.com/your-org/facematch/internal/match"
	"github.com/your-org/facematch/internal/models"
	"github.com/your-org/facematch/internal/observability"
	"github.com/your-org/facematch/internal/process"
	"github.com/your-org/facematch/internal/queue"
	"github.com/your-org/facematch/internal/registration"
	"github.com/your-org/facematch/internal/storage"
	"github.com/your-org/facematch/internal/vision"
	"github.com/your-org/facematch/pkg/dto"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facematch API service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	blobs, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := blobs.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Relay processing updates from workers to WebSocket subscribers
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create progress consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeProgress(ctx, "api-progress", func(ctx context.Context, msg jetstream.Msg) error {
		var upd models.ProcessingUpdate
		if err := json.Unmarshal(msg.Data(), &upd); err != nil {
			return err
		}

		hub.BroadcastUpdate(&dto.WSUpdate{
			Type:      upd.Type,
			EventID:   upd.EventID,
			PhotoID:   upd.PhotoID,
			FaceCount: upd.FaceCount,
			Error:     upd.Error,
		})
		return nil
	})
	if err != nil {
		slog.Warn("start progress consumer", "error", err)
	}

	// Initialize ONNX Runtime for synchronous selfie embedding. Registration
	// with a selfie returns 503 if the models are unavailable; everything else
	// keeps working.
	var provider vision.Provider

	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Warn("onnx runtime init failed, selfie registration will be unavailable", "error", err)
	} else {
		defer ort.DestroyEnvironment()
		p, err := vision.NewONNXProvider(cfg.Vision)
		if err != nil {
			slog.Warn("vision provider init failed, selfie registration will be unavailable", "error", err)
		} else {
			provider = p
			defer p.Close()
			slog.Info("vision provider ready for selfie embedding")
		}
	}

	// Services
	registrations := registration.NewService(db, blobs, provider)
	ingestSvc := ingest.NewService(db, blobs, producer)
	engine := match.NewEngine(db, cfg.Vision.MatchThreshold)
	retrier := process.NewRetrier(db, producer)

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:        cfg.Server.APIKey,
		DB:            db,
		Blobs:         blobs,
		Producer:      producer,
		Hub:           hub,
		Registrations: registrations,
		Ingest:        ingestSvc,
		Engine:        engine,
		Retrier:       retrier,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
