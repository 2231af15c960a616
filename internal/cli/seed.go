package cli

import (
	"context"
	"fmt"
	"log"

	"gongzi-quiz-service/internal/bank"
	"gongzi-quiz-service/internal/config"
	"gongzi-quiz-service/internal/domain"
	"gongzi-quiz-service/internal/infra/postgres"
	infraredis "gongzi-quiz-service/internal/infra/redis"
	"github.com/spf13/cobra"
)

// NewSeedCmd loads the question catalog into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the question catalog into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML catalog to load (defaults to quiz.catalogPath, then the built-in catalog)")
	return cmd
}

func runSeed(ctx context.Context, configPath, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if file == "" {
		file = cfg.Quiz.CatalogPath
	}
	questions, err := catalogFrom(file)
	if err != nil {
		return err
	}

	db, err := openBun(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := migrateDB(ctx, db); err != nil {
		return err
	}

	n, err := postgres.SeedCatalog(ctx, db, questions)
	if err != nil {
		return err
	}
	log.Printf("seeded %d questions", n)
	return invalidateCatalogCache(ctx, cfg)
}

// invalidateCatalogCache makes servers behind Redis reload the catalog on next use.
func invalidateCatalogCache(ctx context.Context, cfg config.Config) error {
	client := newRedisClient(cfg)
	if client == nil {
		return nil
	}
	defer client.Close()
	if err := infraredis.NewCatalogRepository(client, nil, 0).Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidate cached catalog: %w", err)
	}
	log.Printf("dropped cached catalog from redis")
	return nil
}

func catalogFrom(path string) ([]domain.QuizQuestion, error) {
	if path == "" {
		return bank.DefaultCatalog(), nil
	}
	return bank.LoadCatalogFile(path)
}
