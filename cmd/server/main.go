package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meet-coordinator/internal/captions"
	"meet-coordinator/internal/platform/config"
	"meet-coordinator/internal/platform/logger"
	"meet-coordinator/internal/platform/metrics"
	"meet-coordinator/internal/signaling"
	"meet-coordinator/internal/store"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	shutdownTimeout     = 10 * time.Second
	mongoConnectTimeout = 10 * time.Second
)

var defaultSTUNURLs = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	mongoURI := config.GetEnv("MONGO_URI", "")
	mongoDB := config.GetEnv("MONGO_DB", "meet")
	whisperURL := config.GetEnv("WHISPER_URL", "")
	whisperCmd := config.GetEnv("WHISPER_CMD", "whisper-json")
	whisperModel := config.GetEnv("WHISPER_MODEL", "base")
	maxRetries := config.GetEnvInt("WHISPER_MAX_RETRIES", captions.DefaultMaxRetries)
	callTimeout := config.GetEnvDuration("WHISPER_TIMEOUT_MS", 10*time.Minute)
	concurrency := config.GetEnvInt("TRANSCRIBE_CONCURRENCY", captions.DefaultConcurrency)
	ffmpegBin := config.GetEnv("FFMPEG_BIN", "ffmpeg")
	historyLimit := config.GetEnvInt("CHAT_HISTORY_LIMIT", signaling.DefaultChatHistoryLimit)
	stunURLs := config.GetEnvList("STUN_URLS", defaultSTUNURLs)

	log := logger.New(logLevel, logFormat)

	var st store.Store
	var mongoClient *mongo.Client
	if mongoURI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
		if err == nil {
			err = client.Ping(ctx, nil)
		}
		cancel()
		if err != nil {
			log.Error("mongo connect failed", "uri", mongoURI, "error", err)
			os.Exit(1)
		}
		mongoClient = client
		st = store.NewMongoStore(client.Database(mongoDB))
		log.Info("using mongo store", "db", mongoDB)
	} else {
		st = store.NewMemoryStore()
		log.Warn("MONGO_URI not set, using in-memory store; chat and captions will not survive restart")
	}

	met := metrics.New()

	var engine captions.Engine
	if whisperURL != "" {
		policy := captions.DefaultPolicy(maxRetries)
		policy.OnRetry = met.IncTranscribeRetries
		engine = captions.NewRemoteEngine(whisperURL, callTimeout, policy)
		log.Info("using remote transcription engine", "url", whisperURL)
	} else {
		engine = captions.NewLocalEngine(whisperCmd, whisperModel)
		log.Info("using local transcription engine", "command", whisperCmd, "model", whisperModel)
	}

	iceServers := make([]signaling.ICEServer, 0, len(stunURLs))
	for _, u := range stunURLs {
		iceServers = append(iceServers, signaling.ICEServer{URLs: u})
	}

	reg := signaling.NewRegistry()
	hub := signaling.NewHub(logger.Component(log, "hub"))
	router := signaling.NewRouter(reg, hub, st, logger.Component(log, "router"), met, iceServers, historyLimit)
	norm := captions.NewNormalizer(ffmpegBin, "")
	pipeline := captions.NewPipeline(norm, engine, st, router, logger.Component(log, "captions"), met, concurrency, callTimeout)
	ws := signaling.NewHandler(hub, router, pipeline, logger.Component(log, "ws"))
	exporter := captions.NewExporter(st, logger.Component(log, "export"))

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			met.SetActiveConnections(hub.Count())
			met.SetActiveRooms(reg.RoomCount())
		}).ServeHTTP(w, r)
	})
	r.Get("/ws", ws.ServeWS)
	r.Get("/meetings/{meeting_id}/transcript", exporter.Transcript)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"transcribe_concurrency", concurrency,
		"chat_history_limit", historyLimit,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	if mongoClient != nil {
		if err := mongoClient.Disconnect(ctx); err != nil {
			log.Error("mongo disconnect error", "error", err)
		}
	}

	log.Info("server stopped")
}
