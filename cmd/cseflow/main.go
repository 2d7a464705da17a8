package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"cseflow/config"
	"cseflow/internal/archive"
	"cseflow/internal/cse"
	"cseflow/internal/metrics"
	"cseflow/internal/mirror"
	"cseflow/internal/scheduler"
	"cseflow/internal/store"
	"cseflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Cseflow.Name,
		"version": cfg.Cseflow.Version,
	}).Info("starting cseflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := cse.NewClient(cfg.Source.BaseURL, cfg.Source.Timeout, log)
	series := store.NewTimeSeries(cfg.Storage.DataDir, log)
	reference := store.NewReference(cfg.Storage.DataDir, cfg.Storage.ReferenceDir, log)

	var legacy *store.Legacy
	if cfg.Storage.LegacyCSV {
		legacy, err = store.NewLegacy(cfg.Storage.DataDir, log)
		if err != nil {
			log.WithError(err).Error("Failed to prepare legacy outputs")
			os.Exit(1)
		}
	}

	var companyArchive *archive.CompanyArchive
	if cfg.Storage.Archive.Enabled {
		companyArchive = archive.NewCompanyArchive(cfg.Storage.DataDir, cfg.Storage.Archive.Compression, log)
	}

	var s3Mirror *mirror.S3Mirror
	if cfg.Storage.S3.Enabled {
		s3Mirror, err = mirror.NewS3Mirror(cfg.Storage.S3, log)
		if err != nil {
			log.WithError(err).Error("Failed to create S3 mirror")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 mirroring disabled")
	}

	reporter := metrics.NewCycleReporter(cfg.Metrics.CloudWatch, cfg.Storage.S3.Region, cfg.Metrics.Namespace, log)

	sched := scheduler.New(cfg, scheduler.Options{
		Fetcher:   client,
		Series:    series,
		Reference: reference,
		Legacy:    legacy,
		Archive:   companyArchive,
		Mirror:    s3Mirror,
		Reporter:  reporter,
		Log:       log,
	})

	done := make(chan error, 1)
	go func() {
		done <- sched.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
		<-done
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("scheduler stopped")
			os.Exit(1)
		}
	}

	log.Info("shutdown complete")
}
