package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gongzi-quiz-service/internal/app"
	"gongzi-quiz-service/internal/bank"
	"gongzi-quiz-service/internal/config"
	"gongzi-quiz-service/internal/history"
	"gongzi-quiz-service/internal/infra/memory"
	"gongzi-quiz-service/internal/infra/postgres"
	infraredis "gongzi-quiz-service/internal/infra/redis"
	"gongzi-quiz-service/internal/infra/sqlite"
	transport "gongzi-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	redisClient := newRedisClient(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var (
		pool *pgxpool.Pool
		db   *bun.DB
	)
	if cfg.Postgres.URL != "" {
		db, err = openBun(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := migrateDB(ctx, db); err != nil {
			return err
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	loader, err := catalogLoader(cfg, pool)
	if err != nil {
		return err
	}
	catalogTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var catalog app.CatalogRepository
	if redisClient != nil {
		catalog = infraredis.NewCatalogRepository(redisClient, loader, catalogTTL)
	} else {
		catalog = memory.NewCatalogRepository(loader, catalogTTL)
	}

	var players app.PlayerRepository
	if redisClient != nil {
		players = infraredis.NewPlayerStore(redisClient, redisTTL)
	} else {
		players = memory.NewPlayerStore()
	}

	var cache history.LocalCache
	switch {
	case cfg.SQLite.Path != "":
		c, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return err
		}
		defer c.Close()
		cache = c
	case redisClient != nil:
		cache = infraredis.NewCache(redisClient)
	default:
		cache = memory.NewCache()
	}

	var documents history.DocumentStore
	if pool != nil {
		documents = postgres.NewDocumentStore(pool)
	} else {
		documents = memory.NewDocumentStore()
	}

	var leaderboard app.Leaderboard
	switch {
	case db != nil:
		leaderboard = postgres.NewLeaderboard(db)
	case redisClient != nil:
		leaderboard = infraredis.NewLeaderboard(redisClient)
	default:
		leaderboard = memory.NewLeaderboard()
	}

	problemCap, knowledgeCap := cfg.Caps()
	service := app.NewPlayService(app.Backends{
		Catalog:      catalog,
		Players:      players,
		Cache:        cache,
		Documents:    documents,
		Leaderboard:  leaderboard,
		Flashcards:   bank.DefaultFlashcards(),
		Rules:        cfg.Quiz.Rules(),
		ProblemCap:   problemCap,
		KnowledgeCap: knowledgeCap,
	})
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go service.SweepIdle(sweepCtx, config.TTLDuration(cfg.Server.IdleSweep, time.Minute))

	identities := transport.NewIdentityResolver(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.AllowQueryIdentity)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(service, identities),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would cut long-lived websocket connections.
	}

	go func() {
		log.Printf("starting quiz service on :%s", finalPort)
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

// newRedisClient returns nil when no Redis address is configured.
func newRedisClient(cfg config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// catalogLoader prefers Postgres, then a configured YAML file, then the built-in catalog.
func catalogLoader(cfg config.Config, pool *pgxpool.Pool) (memory.CatalogLoader, error) {
	if pool != nil {
		return postgres.NewCatalogLoader(pool), nil
	}
	questions, err := catalogFrom(cfg.Quiz.CatalogPath)
	if err != nil {
		return nil, err
	}
	return memory.NewStaticCatalogLoader(questions), nil
}
