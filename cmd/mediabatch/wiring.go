package main

import (
	"context"
	"fmt"
	"log/slog"

	"mediabatch/internal/adapters/archive"
	"mediabatch/internal/adapters/downloader"
	"mediabatch/internal/adapters/localstorage"
	"mediabatch/internal/adapters/objectstore"
	"mediabatch/internal/adapters/ytdlp"
	"mediabatch/internal/config"
	"mediabatch/internal/service"
)

// pipeline is the fully wired acquisition stack.
type pipeline struct {
	store        *objectstore.S3Client
	staging      *localstorage.LocalStorage
	orchestrator *service.Orchestrator
}

func newExtractor(cfg *config.Config) *ytdlp.YtDlpExtractor {
	return ytdlp.NewYtDlpExtractor(ytdlp.Options{
		BinaryPath: cfg.Extractor.Binary,
		Timeout:    cfg.Extractor.Timeout,
		RateLimit:  cfg.Extractor.RateLimit,
		RateBurst:  cfg.Extractor.RateBurst,
	})
}

func orchestratorOptions(cfg *config.Config) service.Options {
	return service.Options{
		Concurrency:     cfg.Jobs.Concurrency,
		KeyPrefix:       cfg.Storage.KeyPrefix,
		PreferredFormat: cfg.Jobs.PreferredFormat,
		ResolveAttempts: cfg.Extractor.Retries,
		RetryBackoff:    cfg.Extractor.RetryBackoff,
	}
}

// newPipeline validates cfg and builds every adapter. It also prepares the
// bucket and clears stale staging entries.
func newPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := objectstore.NewS3Client(objectstore.Config{
		EndpointURL:     cfg.Storage.Endpoint,
		Region:          cfg.Storage.Region,
		UseSSL:          cfg.Storage.UseSSL,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		Bucket:          cfg.Storage.Bucket,
		PublicBaseURL:   cfg.Storage.PublicBaseURL,
		PartSize:        uint64(cfg.Storage.PartSizeMiB) << 20,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Storage.CreateBucket {
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
	}

	staging := localstorage.NewLocalStorage(cfg.Jobs.StagingDir, logger)
	if removed, err := staging.CleanStale(cfg.Jobs.StaleAfter); err != nil {
		logger.Warn("stale staging cleanup incomplete", slog.String("error", err.Error()))
	} else if len(removed) > 0 {
		logger.Info("stale staging cleaned", slog.Int("removed", len(removed)))
	}

	dl := downloader.NewHTTPDownloader(downloader.Options{
		ConnectTimeout: cfg.Transfer.ConnectTimeout,
		ReadTimeout:    cfg.Transfer.ReadTimeout,
		UserAgent:      cfg.Transfer.UserAgent,
	})

	orch := service.NewOrchestrator(
		newExtractor(cfg),
		dl,
		store,
		staging,
		archive.NewPackager(),
		orchestratorOptions(cfg),
		logger,
	)
	return &pipeline{store: store, staging: staging, orchestrator: orch}, nil
}

// newListOnly builds an orchestrator that can only enumerate listings.
func newListOnly(cfg *config.Config, logger *slog.Logger) *service.Orchestrator {
	return service.NewOrchestrator(newExtractor(cfg), nil, nil, nil, nil, orchestratorOptions(cfg), logger)
}
