package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wisefido-risk/internal/config"
	"wisefido-risk/internal/repository"
	"wisefido-risk/internal/service"
	"wisefido-risk/owl-common/database"
	logpkg "wisefido-risk/owl-common/logger"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-risk-trainer")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting wisefido-risk-trainer",
		zap.Int("dataset_size", cfg.Dataset.Size),
		zap.Int64("dataset_seed", cfg.Dataset.Seed),
		zap.String("model_path", cfg.Model.Path),
		zap.Bool("use_registry", cfg.Model.UseRegistry),
	)

	// 启用注册表时训练结果同时写入 PostgreSQL
	var store service.ModelStore
	if cfg.Model.UseRegistry {
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer database.Close(db)

		registry := repository.NewModelRegistry(db, log)
		if err := registry.EnsureSchema(ctx); err != nil {
			log.Fatal("Failed to prepare model registry", zap.Error(err))
		}
		store = registry
	}

	res, err := service.NewTrainerService(cfg, store, log).Run(ctx)
	if err != nil {
		log.Error("Training failed", zap.Error(err))
		os.Exit(1)
	}

	meta := res.Model.Metadata()
	fmt.Printf("model_id:     %s\n", meta.ModelID)
	fmt.Printf("dataset_size: %d\n", meta.DatasetSize)
	fmt.Printf("cv_r2:        %.4f ± %.4f (%d folds)\n", meta.CrossValidation.Mean, meta.CrossValidation.Std, meta.CrossValidation.Folds)
	fmt.Printf("holdout_r2:   %.4f\n", meta.CrossValidation.HoldoutScore)
	fmt.Println("feature importances:")
	for _, fi := range res.Model.RankedImportances() {
		fmt.Printf("  %-26s %.4f\n", fi.Feature, fi.Importance)
	}

	log.Info("Training finished", zap.String("model_id", meta.ModelID))
}
