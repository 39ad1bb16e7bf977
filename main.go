package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"imageforge/admission"
	"imageforge/api"
	"imageforge/core"
	"imageforge/db"
	"imageforge/janitor"
	"imageforge/logging"
	"imageforge/metrics"
	"imageforge/pipeline"
	"imageforge/providers"
	"imageforge/shutdown"
	"imageforge/storage"
	"imageforge/tagging"

	"github.com/joho/godotenv"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Use fmt here since logger isn't initialized yet
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	// Handle service install/uninstall/start/stop commands
	if HandleServiceCommand(os.Args[1:]) {
		return
	}

	isDevelopment := os.Getenv("DEV_MODE") == "true"

	logger, err := logging.NewLogger(isDevelopment, "app.log")
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(core.ExitCodeError)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if runningAsService, err := RunAsService(logger); err != nil {
		logger.Fatal("Service runner failed", zap.Error(err))
	} else if runningAsService {
		return
	}

	os.Exit(run(logger, isDevelopment))
}

// run assembles and runs the service, returning the process exit code.
func run(logger *logging.Logger, isDevelopment bool) int {
	config, err := core.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", zap.Error(err))
		return core.ExitCodeError
	}

	if _, ok := core.NewStartupChecker().WithShowProgress(!isServiceMode()).Run(config); !ok {
		logger.Error("Startup checks failed")
		return core.ExitCodeError
	}

	logger.Info("Configuration loaded",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.Int("rate_limit", config.RateLimitMaxRequests),
		zap.Duration("rate_limit_window", config.RateLimitWindow),
		zap.Int("queue_capacity", config.QueueCapacity),
		zap.String("images_dir", config.ImagesDir),
		zap.String("database_path", config.DatabasePath),
		zap.Bool("dev_mode", isDevelopment),
	)

	manager := shutdown.NewManager(logger.Zap(), shutdown.WithTimeout(config.ShutdownTimeout))
	m := metrics.NewProm("imageforge")

	// Metadata store
	database, err := db.NewDatabase(db.DatabaseConfig{
		Path:           config.DatabasePath,
		MigrationsPath: config.MigrationsPath,
	})
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))
		return core.ExitCodeError
	}
	manager.Register("database", 30, func(ctx context.Context) error {
		return database.Close()
	})
	repo := db.NewImageRepository(database)

	// Async tag writes
	tagWriter := db.NewAsyncTagWriter(100, func(ctx context.Context, update db.TagUpdate) error {
		return repo.UpdateTags(ctx, update.ImageID, update.Tags, update.Metadata, update.TaggedAt)
	}, logger)
	tagWriter.Start()
	manager.Register("tag-writer", 20, func(ctx context.Context) error {
		return tagWriter.StopWithTimeout(10 * time.Second)
	})

	// Blob store
	blobs, err := storage.NewDiskStore(config.ImagesDir, config.PublicBaseURL, logger)
	if err != nil {
		logger.Error("Failed to initialize blob store", zap.Error(err))
		return core.ExitCodeError
	}

	// Provider registry and dispatcher
	registry, err := buildProviderRegistry(config, logger)
	if err != nil {
		logger.Error("Failed to build provider registry", zap.Error(err))
		return core.ExitCodeError
	}
	logger.Info("Providers registered",
		zap.Strings("providers", registry.Names()),
		zap.Any("aliases", registry.Aliases()))

	dispatcher, err := providers.NewDispatcher(registry, logger, providers.DispatcherConfig{
		Timeout: config.ProviderTimeout,
	})
	if err != nil {
		logger.Error("Failed to create dispatcher", zap.Error(err))
		return core.ExitCodeError
	}

	// Persistence
	coordinator, err := pipeline.NewCoordinator(blobs, repo, logger)
	if err != nil {
		logger.Error("Failed to create persistence coordinator", zap.Error(err))
		return core.ExitCodeError
	}

	// Tagging (optional; requires an OpenAI key)
	var tagger pipeline.Tagger
	if config.OpenAIAPIKey != "" {
		chatConfig := openai.DefaultConfig(config.OpenAIAPIKey)
		if config.OpenAIBaseURL != "" {
			chatConfig.BaseURL = config.OpenAIBaseURL
		}
		chatConfig.HTTPClient = core.GetHTTPClient(config, config.TaggingTimeout)

		t, err := tagging.NewTagger(openai.NewClientWithConfig(chatConfig), tagWriter, logger, m, tagging.TaggerConfig{
			Model:   config.TaggingModel,
			Timeout: config.TaggingTimeout,
		})
		if err != nil {
			logger.Error("Failed to create tagger", zap.Error(err))
			return core.ExitCodeError
		}
		tagger = t
		manager.Register("tagging", 15, func(ctx context.Context) error {
			t.Wait(10 * time.Second)
			return nil
		})
	} else {
		logger.Warn("Tagging disabled: OPENAI_API_KEY not set")
	}

	// Pipeline
	pl, err := pipeline.NewPipeline(dispatcher, coordinator, tagger, m, logger, pipeline.PipelineConfig{
		QueueCapacity: config.QueueCapacity,
	})
	if err != nil {
		logger.Error("Failed to create pipeline", zap.Error(err))
		return core.ExitCodeError
	}
	pl.Start()
	manager.Register("pipeline", 12, func(ctx context.Context) error {
		pl.Stop()
		return nil
	})

	// Admission control
	memoryStore, counterStore, err := buildCounterStore(config, logger)
	if err != nil {
		logger.Error("Failed to initialize admission store", zap.Error(err))
		return core.ExitCodeError
	}
	if redisStore, ok := counterStore.(*admission.RedisStore); ok {
		manager.Register("redis", 35, func(ctx context.Context) error {
			return redisStore.Close()
		})
	}
	limiter, err := admission.NewLimiter(counterStore, logger, m, admission.LimiterConfig{
		Limit:        config.RateLimitMaxRequests,
		Window:       config.RateLimitWindow,
		AdminKeyHash: config.AdminKeyHash,
	})
	if err != nil {
		logger.Error("Failed to create rate limiter", zap.Error(err))
		return core.ExitCodeError
	}

	// Validation
	validator := pipeline.NewValidator(pipeline.ValidatorConfig{
		MaxPromptLength: config.MaxPromptLength,
		MinGuidance:     config.MinGuidance,
		MaxGuidance:     config.MaxGuidance,
		DefaultGuidance: config.DefaultGuidance,
		KnownProvider:   registry.Known,
	})

	// HTTP server
	server, err := api.NewServer(validator, limiter, pl, repo, logger, m, api.ServerConfig{
		Host:          config.Host,
		Port:          config.Port,
		ImagesDir:     config.ImagesDir,
		PublicBaseURL: config.PublicBaseURL,
	})
	if err != nil {
		logger.Error("Failed to create HTTP server", zap.Error(err))
		return core.ExitCodeError
	}
	manager.Register("http-server", 5, func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})

	// Maintenance
	jan, err := janitor.NewJanitor(blobs, repo, memoryStore, logger, m, janitor.JanitorConfig{
		Schedule:    config.JanitorSchedule,
		GracePeriod: config.OrphanGracePeriod,
	})
	if err != nil {
		logger.Error("Failed to create janitor", zap.Error(err))
		return core.ExitCodeError
	}
	if err := jan.Start(); err != nil {
		logger.Error("Failed to start janitor", zap.Error(err))
		return core.ExitCodeError
	}
	manager.Register("janitor", 25, func(ctx context.Context) error {
		jan.Stop()
		return nil
	})

	manager.Start()

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		logger.Error("HTTP server failed", zap.Error(err))
		manager.Trigger()
	case <-manager.Context().Done():
	}

	if err := manager.Shutdown(); err != nil {
		logger.Error("Shutdown completed with errors", zap.Error(err))
		return core.ExitCodeError
	}
	logger.Info("Goodbye!")
	return core.ExitCodeSuccess
}

// buildProviderRegistry constructs backends for every configured API key and
// wires them through the YAML registry config. Registry entries whose backend
// has no key are skipped with a warning rather than failing startup.
func buildProviderRegistry(config *core.Config, logger *logging.Logger) (*providers.Registry, error) {
	backends := make(map[string]providers.Provider)

	if config.OpenAIAPIKey != "" {
		p, err := providers.NewOpenAIProvider(config)
		if err != nil {
			return nil, err
		}
		backends[p.Name()] = p
	}
	if config.DezgoAPIKey != "" {
		p, err := providers.NewDezgoProvider(config)
		if err != nil {
			return nil, err
		}
		backends[p.Name()] = p
	}

	file, err := providers.LoadRegistryFile(config.ProvidersConfigPath)
	if err != nil {
		return nil, err
	}

	disabled := false
	for i, entry := range file.Providers {
		if _, ok := backends[strings.ToLower(strings.TrimSpace(entry.Name))]; !ok {
			logger.Warn("Provider in registry config has no API key, disabling",
				zap.String("provider", entry.Name))
			file.Providers[i].Enabled = &disabled
		}
	}

	return providers.BuildRegistry(file, backends)
}

// buildCounterStore picks the admission counter backend: Redis when
// configured, otherwise in-process memory. The memory store is returned
// separately (possibly nil) so the janitor can reap its expired records.
func buildCounterStore(config *core.Config, logger *logging.Logger) (*admission.MemoryStore, admission.CounterStore, error) {
	if config.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store, err := admission.NewRedisStoreFromAddr(ctx, config.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using Redis admission store", zap.String("addr", config.RedisAddr))
		return nil, store, nil
	}

	memory := admission.NewMemoryStore()
	logger.Info("Using in-memory admission store")
	return memory, memory, nil
}
