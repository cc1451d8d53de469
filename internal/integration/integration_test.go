package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
	pgloader "livequiz-service/internal/infra/postgres"
	pgmigrations "livequiz-service/internal/infra/postgres/migrations"
	infraredis "livequiz-service/internal/infra/redis"
	"livequiz-service/internal/store"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestLiveQuizEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuestions(t, ctx, pgURL, "quiz-1", sampleQuestions())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	loader := pgloader.NewQuestionLoader(pool)
	questions := infraredis.NewQuestionRepository(redisClient, loader, 5*time.Minute)
	docs := infraredis.NewDocumentStore(redisClient)
	service := app.NewQuizService(docs, questions)

	if err := service.EnsureSession(ctx, "quiz-1", 30); err != nil {
		t.Fatalf("ensure session: %v", err)
	}

	alice, err := service.Join(ctx, "quiz-1", "Alice")
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	bob, err := service.Join(ctx, "quiz-1", "Bob")
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}

	if err := service.Start(ctx, "quiz-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	result, err := service.Submit(ctx, "quiz-1", bob.ID, 0, "B")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Correct || result.AlreadySubmitted {
		t.Fatalf("unexpected result: %+v", result)
	}

	// A retried submission must not credit a second point.
	retry, err := service.Submit(ctx, "quiz-1", bob.ID, 0, "B")
	if err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if !retry.AlreadySubmitted {
		t.Fatalf("duplicate not detected: %+v", retry)
	}

	snap, err := docs.Get(ctx, store.PlayerPath("quiz-1", bob.ID))
	if err != nil {
		t.Fatalf("read bob: %v", err)
	}
	if got := snap.Int("score"); got != 1 {
		t.Fatalf("expected bob at 1 point, got %d", got)
	}
	aliceSnap, _ := docs.Get(ctx, store.PlayerPath("quiz-1", alice.ID))
	if got := aliceSnap.Int("score"); got != 0 {
		t.Fatalf("expected alice at 0 points, got %d", got)
	}

	if err := service.Reset(ctx, "quiz-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	players, err := docs.ListAll(ctx, store.PlayersCollection("quiz-1"))
	if err != nil {
		t.Fatalf("list players: %v", err)
	}
	if len(players) != 0 {
		t.Fatalf("expected players wiped, got %d", len(players))
	}
	session, err := service.Session(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("read session: %v", err)
	}
	if session.Status != domain.StatusEnded || session.CurrentQuestionIndex != 0 {
		t.Fatalf("unexpected post-reset session: %+v", session)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuestions(t *testing.T, ctx context.Context, dsn, sessionCode string, questions []domain.Question) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(questions)
	if err != nil {
		t.Fatalf("marshal questions: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO question_sets (session_code, data) VALUES (?, ?::jsonb) ON CONFLICT (session_code) DO UPDATE SET data=EXCLUDED.data`, sessionCode, string(data)); err != nil {
		t.Fatalf("insert questions: %v", err)
	}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			Index:   0,
			Text:    "What is 2 + 2?",
			Options: map[string]string{"A": "3", "B": "4", "C": "5"},
			Correct: "B",
		},
		{
			Index:   1,
			Text:    "Largest ocean?",
			Options: map[string]string{"A": "Atlantic", "B": "Pacific"},
			Correct: "B",
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
