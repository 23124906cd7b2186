package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"fitstudio/internal/adapter/repo"
	"fitstudio/internal/composer"
	"fitstudio/internal/dispatch"
	"fitstudio/internal/events"
	"fitstudio/internal/http/handlers"
	httpapi "fitstudio/internal/http/httpapi"
	"fitstudio/internal/infra"
	"fitstudio/internal/ledger"
	"fitstudio/internal/middleware"
	"fitstudio/internal/providers/image"
	"fitstudio/internal/providers/prompt"
	"fitstudio/internal/storage"
	"fitstudio/internal/watermark"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	ctx := context.Background()

	// Persistence is optional: without DATABASE_URL jobs and cost events live
	// in process memory only.
	var (
		costs    ledger.Recorder
		jobStore composer.JobStore
		jobFind  handlers.JobFinder
	)
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()

		pgLedger := ledger.NewPostgres(pool, logger)
		if err := pgLedger.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to ensure ledger schema")
		}
		jobRepo := repo.NewJobRepository(pool)
		if err := jobRepo.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to ensure jobs schema")
		}
		costs, jobStore, jobFind = pgLedger, jobRepo, jobRepo
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory persistence")
		memLedger := ledger.NewMemory()
		memJobs := repo.NewJobMemory()
		costs, jobStore, jobFind = memLedger, memJobs, memJobs
	}

	files, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize file store")
	}
	var store composer.Uploader = files
	if cfg.S3Bucket != "" {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize s3 store")
		}
		store = s3Store
	}

	providerClient := &http.Client{Timeout: cfg.ProviderTimeout}
	providers := map[composer.ProviderKind]image.Generator{
		composer.ProviderTryOn: image.NewTryOnGenerator(image.TryOnOptions{
			BaseURL:      cfg.TryOnBaseURL,
			TokenURL:     cfg.TryOnTokenURL,
			ClientID:     cfg.TryOnClientID,
			ClientSecret: cfg.TryOnClientSecret,
			HTTPClient:   providerClient,
			Logger:       &logger,
			Recorder:     costs,
		}),
		composer.ProviderEdit: image.NewEditGenerator(image.EditOptions{
			BaseURL:    cfg.EditBaseURL,
			APIKey:     cfg.EditAPIKey,
			Model:      cfg.EditModel,
			HTTPClient: providerClient,
			Logger:     &logger,
			Recorder:   costs,
		}),
		composer.ProviderComposite: image.NewCompositeGenerator(image.CompositeOptions{
			BaseURL:    cfg.CompositeBaseURL,
			APIKey:     cfg.CompositeAPIKey,
			Model:      cfg.CompositeModel,
			HTTPClient: providerClient,
			Logger:     &logger,
			Recorder:   costs,
		}),
	}

	var enhancer prompt.Enhancer = prompt.NewStaticEnhancer()
	if cfg.OpenAIAPIKey != "" {
		openaiEnhancer, err := prompt.NewOpenAIEnhancer(prompt.OpenAIOptions{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Logger:  &logger,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("instruction enhancer unavailable, using static")
		} else {
			enhancer = openaiEnhancer
		}
	}

	var applier watermark.Applier = watermark.Noop{}
	switch {
	case cfg.WatermarkServiceURL != "":
		httpApplier, err := watermark.NewHTTPApplier(watermark.HTTPOptions{
			BaseURL: cfg.WatermarkServiceURL,
			Logger:  &logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize watermark client")
		}
		applier = httpApplier
	case cfg.WatermarkLogoURL != "":
		applier = watermark.NewLocalApplier(watermark.LocalOptions{
			Store:   files,
			BaseURL: cfg.StorageBaseURL,
			Logger:  &logger,
		})
	}

	queue := dispatch.New[*image.Result](cfg.DispatchMinInterval)
	hub := events.NewHub(logger)
	hub.Start()

	orchestrator := composer.NewOrchestrator(composer.Options{
		Providers:   providers,
		Queue:       queue,
		Watermarker: applier,
		Enhancer:    enhancer,
		Store:       store,
		StoreBase:   cfg.StorageBaseURL,
		Repo:        jobStore,
		Publisher:   hub,
		Watermark: watermark.Options{
			LogoURL:     cfg.WatermarkLogoURL,
			LegalNotice: cfg.LegalNotice,
			Position:    watermark.NormalizePosition(cfg.WatermarkPosition),
			Opacity:     cfg.WatermarkOpacity,
		},
		Logger: logger,
	})

	app := &handlers.App{
		Orchestrator: orchestrator,
		Jobs:         jobFind,
		Hub:          hub,
		Files:        files,
		Logger:       logger,
	}

	routerOpts := httpapi.Options{
		EmbedTokenSecret: cfg.EmbedTokenSecret,
		CORSOrigins:      cfg.CORSOrigins,
		FallbackLimit:    cfg.RateLimitPerMin,
		FallbackPer:      time.Minute,
		ServeLocalFiles:  cfg.S3Bucket == "",
		Logger:           logger,
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		refill := float64(cfg.RateLimitPerMin) / 60
		routerOpts.Limiter = middleware.NewRedisLimiter(client, cfg.RateLimitPerMin, refill, 5*time.Minute, logger)
	}
	router := httpapi.NewRouter(app, routerOpts)

	server := infra.NewHTTPServer(cfg, router)
	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	queue.Drain()
	hub.Stop()
	logger.Info().Msg("server stopped")
}
