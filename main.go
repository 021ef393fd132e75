package main

import (
	"context"
	"net/http"

	"coedit/config"
	"coedit/config/database"
	"coedit/pkg/logger"
	"coedit/presence"
	"coedit/router"
	"coedit/socket"
	"coedit/store"
	"coedit/version"
)

func main() {
	logger.Init()
	defer logger.Log.Sync()

	cfg := config.Load()

	var st store.DocumentStore
	if cfg.DatabaseURL == "" {
		logger.Sugar.Warn("DATABASE_URL not set, using the in-memory document store")
		st = store.NewMemoryStore()
	} else {
		db := database.Connect(cfg.DatabaseURL)
		defer db.Close()

		pg := store.NewPostgresStore(db)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			logger.Sugar.Fatalf("Failed to ensure database schema: %v", err)
		}
		st = pg
	}

	tracker := presence.NewTracker()
	engine := version.NewEngine(st, version.DefaultPolicy())
	srv := socket.NewServer(st, tracker, engine)

	logger.Sugar.Infof("Collaborative editor backend listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, router.Setup(srv)); err != nil {
		logger.Sugar.Fatal(err)
	}
}
