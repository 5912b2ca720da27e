package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bard-backend/cmd"
	"bard-backend/internal/api"
	"bard-backend/internal/bot"
	"bard-backend/internal/database"
	"bard-backend/internal/dedup"
	"bard-backend/internal/history"
	"bard-backend/internal/llm"
	"bard-backend/internal/slack"
	"bard-backend/internal/weather"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type APIConfig struct {
	DatabaseURL string `env:"DATABASE_URL,notEmpty,required"`
	APIPort     string `env:"API_PORT" envDefault:"8080"`

	LLMProvider  string `env:"LLM_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	OpenAIModel  string `env:"OPENAI_MODEL"`

	SlackSigningSecret string `env:"SLACK_SIGNING_SECRET,notEmpty,required"`
	SlackBotToken      string `env:"SLACK_BOT_TOKEN,notEmpty,required"`
	SlackClientID      string `env:"SLACK_CLIENT_ID"`
	SlackClientSecret  string `env:"SLACK_CLIENT_SECRET"`

	WFAPIKey    string `env:"WF_API_KEY,notEmpty,required"`
	WFStationID string `env:"WF_STATION_ID"`

	MaxWindow     int           `env:"MAX_WINDOW" envDefault:"100"`
	DedupHorizon  time.Duration `env:"DEDUP_HORIZON" envDefault:"10m"`
	SweepInterval time.Duration `env:"DEDUP_SWEEP_INTERVAL" envDefault:"1m"`

	// Optional S3-compatible bucket for workspace installation records.
	InstallBucketName string `env:"INSTALL_BUCKET_NAME"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.GetMigrator(db).Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	llmClient, err := llm.NewClient(llm.FactoryConfig{
		Provider:     llm.Provider(cfg.LLMProvider),
		GeminiAPIKey: cfg.GeminiAPIKey,
		GeminiModel:  cfg.GeminiModel,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		OpenAIModel:  cfg.OpenAIModel,
	})
	if err != nil {
		log.Fatalf("Failed to create LLM client: %v", err)
	}

	weatherClient, err := weather.NewClient(cfg.WFAPIKey)
	if err != nil {
		log.Fatalf("Failed to create WeatherFlow client: %v", err)
	}

	var installStore *slack.InstallStore
	if cfg.InstallBucketName != "" {
		installStore, err = slack.NewInstallStore(&slack.InstallStoreConfig{
			EndpointURL:     cfg.S3EndpointURL,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			BucketName:      cfg.InstallBucketName,
		})
		if err != nil {
			log.Fatalf("Failed to create installation store: %v", err)
		}
	}

	deduplicator := dedup.New(db, cfg.DedupHorizon)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	deduplicator.StartSweeper(sweepCtx, cfg.SweepInterval)

	responder := bot.NewResponder(history.NewStoreWithWindow(db, cfg.MaxWindow), llmClient)
	slackClient := slack.NewClient(cfg.SlackBotToken)
	verifier := slack.NewVerifier(cfg.SlackSigningSecret)

	// --- Chi Router Setup ---
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "X-Slack-Signature", "X-Slack-Request-Timestamp"},
	}))

	service := api.NewSlackService(verifier, deduplicator, responder, weatherClient, slackClient, cfg.WFStationID)
	service.AddRoutes(r)

	if installStore != nil && cfg.SlackClientID != "" {
		installService := api.NewInstallService(slackClient, installStore, cfg.SlackClientID, cfg.SlackClientSecret)
		installService.AddRoutes(r)
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
