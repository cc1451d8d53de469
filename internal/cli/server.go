package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livequiz-service/internal/app"
	"livequiz-service/internal/config"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"
	pgloader "livequiz-service/internal/infra/postgres"
	redisinfra "livequiz-service/internal/infra/redis"
	"livequiz-service/internal/store"
	transport "livequiz-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		log.Printf("config %s not found, using defaults", configPath)
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	sessionCode := cfg.Quiz.SessionCode
	if sessionCode == "" {
		sessionCode = "demo"
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestionSets(sessionCode))
	if pool != nil {
		loader = pgloader.NewQuestionLoader(pool)
	}

	questionTTL := config.Duration(cfg.Quiz.QuestionTTL, 10*time.Minute)
	var questions app.QuestionSource
	if redisClient != nil {
		questions = redisinfra.NewQuestionRepository(redisClient, loader, questionTTL)
	} else {
		questions = memory.NewQuestionBank(loader, questionTTL)
	}

	batchLimit := cfg.Quiz.BatchLimit
	var docs store.Store
	if redisClient != nil {
		opts := []redisinfra.Option{}
		if batchLimit > 0 {
			opts = append(opts, redisinfra.WithBatchLimit(batchLimit))
		}
		docs = redisinfra.NewDocumentStore(redisClient, opts...)
	} else {
		opts := []memory.Option{}
		if batchLimit > 0 {
			opts = append(opts, memory.WithBatchLimit(batchLimit))
		}
		docs = memory.NewDocumentStore(opts...)
	}

	service := app.NewQuizService(docs, questions)
	if err := service.EnsureSession(ctx, sessionCode, cfg.Quiz.DurationSeconds); err != nil {
		return err
	}
	// Pick up a bulk reset that a previous process left unfinished.
	if err := service.ResumeReset(ctx, sessionCode); err != nil {
		log.Printf("resume reset for %s: %v", sessionCode, err)
	}

	wsHandler := transport.NewWSHandler(service, transport.Options{
		PollInterval:    config.Duration(cfg.Quiz.PollInterval, app.DefaultPollInterval),
		LeaderBannerTTL: config.Duration(cfg.Quiz.LeaderBannerTTL, app.DefaultLeaderBannerTTL),
		ScorePulseTTL:   config.Duration(cfg.Quiz.ScorePulseTTL, app.DefaultScorePulseTTL),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting live quiz service on :%s (session %s)", finalPort, sessionCode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuestionSets provides a minimal question bank for demo runs without
// Postgres; production deployments load authored sets from the database.
func sampleQuestionSets(sessionCode string) map[string][]domain.Question {
	return map[string][]domain.Question{
		sessionCode: {
			{
				Index: 0,
				Text:  "What is 2 + 2?",
				Options: map[string]string{
					"A": "3",
					"B": "4",
					"C": "5",
					"D": "22",
				},
				Correct: "B",
			},
			{
				Index: 1,
				Text:  "Which planet is known as the Red Planet?",
				Options: map[string]string{
					"A": "Venus",
					"B": "Jupiter",
					"C": "Mars",
					"D": "Saturn",
				},
				Correct: "C",
			},
		},
	}
}
