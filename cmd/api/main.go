package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/anonymousobject/shuushuu-api-sub001/internal/auth"
	"github.com/anonymousobject/shuushuu-api-sub001/internal/auth/repo"
	"github.com/anonymousobject/shuushuu-api-sub001/internal/router"
	"github.com/anonymousobject/shuushuu-api-sub001/pkg/database"
	"github.com/anonymousobject/shuushuu-api-sub001/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	// best-effort: if no .env exists, continue with real env or defaults
	_ = godotenv.Load()

	lg, err := utilities.InitLogger(utilities.LogConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting shuushuu auth service")

	dbCfg := database.ConfigFromEnv()
	sqlDB, err := database.Connect(dbCfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()

	sqlxDB := sqlx.NewDb(sqlDB, "postgres")
	defer sqlxDB.Close()

	// bootstrap schema
	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 10*time.Second)
	if err := repo.NewStore(sqlxDB).EnsureSchema(bootCtx); err != nil {
		cancelBoot()
		sugar.Fatalf("ensure schema: %v", err)
	}
	cancelBoot()

	authCfg := auth.ConfigFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = "0.0.0.0:8431"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.RegisterRoutes(sugar, sqlxDB, authCfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	if err := sqlDB.PingContext(doneCtx); err != nil {
		sugar.Warnf("db ping on shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
