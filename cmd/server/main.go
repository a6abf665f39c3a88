package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"poker-service/internal/api"
	"poker-service/internal/config"
	"poker-service/internal/repo"
	"poker-service/internal/service"
	"poker-service/internal/telemetry"
	"poker-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load Config
	config.LoadConfig(configPath)
	conf := config.GlobalConfig

	// 2. Init Logger
	logger.InitLogger(conf.Server.Mode, logger.FileOptions{
		Path:       conf.Log.File,
		MaxSizeMB:  conf.Log.MaxSizeMB,
		MaxBackups: conf.Log.MaxBackups,
		MaxAgeDays: conf.Log.MaxAgeDays,
		Compress:   conf.Log.Compress,
	})
	defer logger.Log.Sync()

	logger.Log.Info("Starting server...", zap.String("mode", conf.Server.Mode))

	shutdownTelemetry, err := telemetry.Init(ctx, conf.Telemetry)
	if err != nil {
		logger.Log.Fatal("failed to init telemetry", zap.Error(err))
	}

	// 3. Init DB & Redis
	repo.InitDB()
	repo.InitRedis()

	// 4. Init Services
	services := service.NewContainer(conf, repo.DB, repo.RDB)
	if err := services.Start(ctx); err != nil {
		logger.Log.Fatal("failed to start services", zap.Error(err))
	}

	// 5. Init Router
	if conf.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	api.RegisterRoutes(r, services)

	// 6. Serve until signalled
	addr := fmt.Sprintf(":%s", conf.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Log.Info("Server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return services.Sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()
		services.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Log.Warn("http shutdown", zap.Error(err))
		}
		return shutdownTelemetry(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.Fatal("Server stopped", zap.Error(err))
	}
	logger.Log.Info("Server stopped")
}
