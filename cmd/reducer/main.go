// One-shot 3-D projection rebuild, for operators and deploy hooks. The
// worker refreshes on a schedule; this forces a run right now.
package main

import (
	"context"
	"log"
	"time"

	"docatlas/internal/config"
	"docatlas/internal/logger"
	"docatlas/internal/store"
	"docatlas/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	pool, err := config.ConnectPostgres(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to connect to Postgres:", err)
	}
	defer pool.Close()

	st := store.New(pool, cfg.VectorDim)
	if err := st.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to ensure schema:", err)
	}

	reducer := services.NewReducerService(st, cfg.ReducerSeed)
	if err := reducer.Run(ctx); err != nil {
		log.Fatal("Reducer run failed:", err)
	}
	logger.Info("Projection rebuilt")
}
