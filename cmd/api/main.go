package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Arash3f/icart-pos/internal/platform/database"
	"github.com/Arash3f/icart-pos/internal/platform/logger"
	"github.com/Arash3f/icart-pos/internal/platform/server"
	"github.com/Arash3f/icart-pos/internal/pos/adapter/auth"
	"github.com/Arash3f/icart-pos/internal/pos/adapter/fee"
	"github.com/Arash3f/icart-pos/internal/pos/adapter/repo"
	"github.com/Arash3f/icart-pos/internal/pos/api"
	"github.com/Arash3f/icart-pos/internal/pos/service"
)

func main() {
	viper.SetConfigFile("configs/config.yaml")
	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %s", err)
	}

	appLogger := logger.NewLogger(viper.GetString("server.mode"))
	defer appLogger.Sync()

	db := database.NewPostgresDB(
		viper.GetString("database.dsn"),
		viper.GetInt("database.max_idle_conns"),
		viper.GetInt("database.max_open_conns"),
	)
	if err := database.Migrate(db); err != nil {
		appLogger.Fatal("migration failed", zap.Error(err))
	}

	store := repo.NewStore(db)
	codes := repo.NewRandomCodeGenerator()

	feeTable, err := fee.FromViper()
	if err != nil {
		appLogger.Fatal("fee table config invalid", zap.Error(err))
	}

	authz := auth.NewJWT(
		viper.GetString("auth.jwt_secret"),
		time.Duration(viper.GetInt("auth.token_ttl_hours"))*time.Hour,
		store.Users(),
	)

	settlement := service.NewSettlement(store, feeTable, codes, appLogger, service.Config{
		TransactionCeiling: viper.GetInt64("settlement.transaction_ceiling"),
		CeilingWindow:      time.Duration(viper.GetInt("settlement.ceiling_window_minutes")) * time.Minute,
		LockTimeout:        time.Duration(viper.GetInt("settlement.lock_timeout_seconds")) * time.Second,
	})
	issuer := service.NewCardIssuer(store, appLogger)

	posHandler := api.NewHandler(settlement, issuer, authz, store, appLogger)

	srv := server.NewServer(
		appLogger,
		viper.GetString("server.port"),
		viper.GetString("server.mode"),
		posHandler,
		auth.Middleware(authz),
	)

	go func() {
		if err := srv.Run(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("server startup failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	appLogger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("graceful shutdown failed", zap.Error(err))
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	appLogger.Info("server stopped")
}
