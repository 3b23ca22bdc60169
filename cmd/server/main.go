package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nshruti113/packet-analysis-service/internal/analysis"
	"github.com/nshruti113/packet-analysis-service/internal/config"
	"github.com/nshruti113/packet-analysis-service/internal/detection"
	"github.com/nshruti113/packet-analysis-service/internal/server"
	"github.com/nshruti113/packet-analysis-service/internal/storage"
	"github.com/nshruti113/packet-analysis-service/internal/version"
)

func main() {
	configPath := flag.String("config", config.GetEnv("CONFIG_PATH", "configs/config.yaml"), "path to the YAML config file")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.WithError(err).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	gin.SetMode(cfg.Server.GinMode)

	log.WithField("version", version.Version).Info("Starting packet analysis service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	detector := detection.NewAnomalyDetector(detection.IsolationForestConfig{
		Trees:         cfg.Detector.Trees,
		MaxSamples:    cfg.Detector.MaxSamples,
		Contamination: cfg.Detector.Contamination,
		Seed:          cfg.Detector.Seed,
	})
	svc := analysis.New(detector, log)

	var store server.Store
	if cfg.Redis.Enabled {
		redisClient, err := storage.NewRedisClient(ctx, storage.Options{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Retention: cfg.Redis.Retention,
			History:   cfg.Redis.History,
		})
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisClient.Close()
		store = redisClient
	} else {
		log.Warn("Redis disabled, running stateless")
	}

	srv := server.New(cfg, svc, store, log)
	srv.Start(ctx)

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down")
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}
