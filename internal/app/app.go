package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	mediahttp "github.com/canvasflow/server/internal/adapter/inbound/http/media"
	"github.com/canvasflow/server/internal/adapter/outbound/credentials"
	"github.com/canvasflow/server/internal/adapter/outbound/filestore"
	"github.com/canvasflow/server/internal/adapter/outbound/mediaio"
	"github.com/canvasflow/server/internal/adapter/outbound/mediaprovider"
	redisadapter "github.com/canvasflow/server/internal/adapter/outbound/redis"
	s3adapter "github.com/canvasflow/server/internal/adapter/outbound/s3"
	"github.com/canvasflow/server/internal/domain/media"
	"github.com/canvasflow/server/internal/infra/config"
	"github.com/canvasflow/server/internal/infra/httpclient"
	"github.com/canvasflow/server/internal/infra/ratelimit"
	"github.com/canvasflow/server/internal/infra/task"
	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/outbound"
	sharedcache "github.com/canvasflow/server/internal/shared/cache"
	"github.com/canvasflow/server/internal/shared/logger"
	sharedmiddleware "github.com/canvasflow/server/internal/shared/middleware"
	"github.com/canvasflow/server/internal/utils/metrics"
	"github.com/canvasflow/server/internal/utils/middleware"
)

// Application is the interface the server entrypoint drives.
type Application interface {
	Router() *gin.Engine
	Stop()
}

var _ Application = (*App)(nil)

// App wires the generation pipeline behind a gin router.
type App struct {
	config    *config.Config
	router    *gin.Engine
	logger    *logger.Logger
	zapLogger *zap.Logger
	metrics   *metrics.Metrics

	// Infrastructure
	redis      redis.UniversalClient
	httpClient *http.Client
	store      *filestore.Store
	index      outbound.RecordIndexPort
	storage    outbound.StoragePort
	limiter    *ratelimit.KeyedLimiter

	// Domain
	media *media.Domain

	gatherer prometheus.Gatherer
	cancel   context.CancelFunc
}

// New creates a new application with the given configuration.
func New(cfg *config.Config) (*App, error) {
	return newApp(cfg, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

func newApp(cfg *config.Config, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*App, error) {
	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}
	log := logger.New(logCfg)

	zapLogger, err := logger.NewZapLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("create zap logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		config:    cfg,
		logger:    log,
		zapLogger: zapLogger,
		metrics:   metrics.New("canvasflow", reg),
		gatherer:  gatherer,
		cancel:    cancel,
	}

	if err := app.initInfrastructure(ctx); err != nil {
		app.Stop()
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	if err := app.initDomain(); err != nil {
		app.Stop()
		return nil, fmt.Errorf("init domain: %w", err)
	}

	app.setupRouter()
	app.registerRoutes()

	return app, nil
}

// initInfrastructure builds clients and stores. Redis and S3 are optional.
func (a *App) initInfrastructure(ctx context.Context) error {
	a.httpClient = httpclient.New(a.config.HTTPClient)

	if a.config.Redis.Enabled() {
		client, err := sharedcache.NewRedisClient(ctx, &a.config.Redis)
		if err != nil {
			a.zapLogger.Warn("redis unavailable, falling back to in-memory record index", zap.Error(err))
		} else {
			a.redis = client
		}
	}

	store, err := filestore.New(a.config.Storage.ContentRoot, a.config.Storage.URLPrefix, a.zapLogger)
	if err != nil {
		return fmt.Errorf("open content store: %w", err)
	}
	a.store = store

	if a.redis != nil {
		a.index = redisadapter.NewRecordIndexAdapter(a.redis)
	} else {
		a.index = filestore.NewMemoryIndex()
	}
	n, err := filestore.Warm(ctx, a.store, a.index)
	if err != nil {
		return fmt.Errorf("warm record index: %w", err)
	}
	a.zapLogger.Info("record index warmed", zap.Int("records", n))

	s3Cfg := &s3adapter.Config{
		Endpoint:        a.config.Storage.S3.Endpoint,
		Region:          a.config.Storage.S3.Region,
		AccessKeyID:     a.config.Storage.S3.AccessKeyID,
		SecretAccessKey: a.config.Storage.S3.SecretAccessKey,
		Bucket:          a.config.Storage.S3.Bucket,
	}
	if s3Cfg.Enabled() {
		storage, err := s3adapter.New(ctx, s3Cfg)
		if err != nil {
			return fmt.Errorf("create object storage: %w", err)
		}
		a.storage = storage
	}

	if a.config.RateLimit.Enabled {
		a.limiter = ratelimit.New(&ratelimit.Config{
			Enabled:           true,
			RequestsPerSecond: a.config.RateLimit.RequestsPerSecond,
			Burst:             a.config.RateLimit.Burst,
			IdleTTL:           a.config.RateLimit.IdleTTL,
		})
		go a.limiter.Run(ctx)
	}

	return nil
}

// initDomain builds provider adapters and the generation domain.
func (a *App) initDomain() error {
	gen := a.config.Generation

	loader := mediaio.NewLoader(a.httpClient, a.store, mediaio.LoaderConfig{
		MaxBytes:    gen.ReferenceMaxBytes,
		CacheTTL:    gen.ReferenceCacheTTL,
		Concurrency: gen.LoadConcurrency,
	}, a.zapLogger)
	resolver := mediaio.NewResolver(loader, a.store, a.storage, mediaio.ResolverConfig{
		PublicBaseURL: a.config.Storage.PublicBaseURL,
		PresignTTL:    a.config.Storage.PresignTTL,
		UploadPrefix:  a.config.Storage.UploadPrefix,
	}, a.zapLogger)

	poller := task.NewPoller(&task.Config{
		Interval:             gen.Poller.Interval,
		MaxWait:              gen.Poller.MaxWait,
		CheckTimeout:         gen.Poller.CheckTimeout,
		MaxConsecutiveErrors: gen.Poller.MaxConsecutiveErrors,
	}, a.zapLogger)
	poller.OnTick(func(provider model.ProviderKind) {
		a.metrics.RecordPollTick(string(provider))
	})

	deps := mediaprovider.Deps{
		Client:      a.httpClient,
		Poller:      poller,
		Loader:      loader,
		Resolver:    resolver,
		Normalizer:  mediaio.NewNormalizer(),
		Diagnostics: logger.Diagnostics(a.zapLogger),
	}

	breaker := &mediaprovider.BreakerConfig{
		FailureThreshold:    a.config.CircuitBreaker.FailureThreshold,
		Interval:            a.config.CircuitBreaker.Interval,
		Timeout:             a.config.CircuitBreaker.Timeout,
		MaxHalfOpenRequests: a.config.CircuitBreaker.MaxHalfOpenRequests,
	}
	onState := func(provider model.ProviderKind, healthy bool) {
		a.metrics.SetProviderHealth(string(provider), healthy)
	}

	registry := mediaprovider.NewRegistry()
	for _, adapter := range []outbound.MediaVendorAdapterPort{
		mediaprovider.NewGeminiAdapter(a.providerConfig(model.ProviderGemini), deps),
		mediaprovider.NewKlingAdapter(a.providerConfig(model.ProviderKling), deps),
		mediaprovider.NewHailuoAdapter(a.providerConfig(model.ProviderHailuo), deps),
		mediaprovider.NewOpenAIAdapter(a.providerConfig(model.ProviderOpenAI), deps),
		mediaprovider.NewFalAdapter(a.providerConfig(model.ProviderFal), deps),
		mediaprovider.NewKieAdapter(a.providerConfig(model.ProviderKie), deps),
	} {
		registry.Register(mediaprovider.NewGuardedAdapter(adapter, breaker, onState, a.zapLogger))
		a.metrics.SetProviderHealth(string(adapter.Provider()), true)
	}

	routes, err := media.NewRoutingTable(media.DefaultRoutes())
	if err != nil {
		return fmt.Errorf("build routing table: %w", err)
	}
	dispatcher := media.NewDispatcher(routes, registry, credentials.NewConfigStore(a.config.Providers.Credentials()))

	mediaCfg := &media.Config{
		MaxVariations:       gen.MaxVariations,
		DownloadConcurrency: gen.DownloadConcurrency,
	}
	downloader := mediaio.NewDownloader(a.httpClient, gen.DownloadMaxBytes)
	materializer := media.NewMaterializer(a.store, a.index, downloader, a.metrics, mediaCfg, a.zapLogger)
	a.media = media.NewDomain(dispatcher, materializer, a.store, a.index, a.metrics, mediaCfg, a.zapLogger)

	return nil
}

func (a *App) providerConfig(kind model.ProviderKind) mediaprovider.Config {
	pc := a.config.Providers.Get(kind)
	return mediaprovider.Config{
		BaseURL:      pc.BaseURL,
		UploadURL:    pc.UploadURL,
		PollInterval: pc.PollInterval,
		ImageTimeout: pc.ImageTimeout,
		VideoTimeout: pc.VideoTimeout,
	}
}

// setupRouter configures the Gin router with middleware.
func (a *App) setupRouter() {
	if a.config.Server.Mode != "" {
		gin.SetMode(a.config.Server.Mode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowOrigins: a.config.CORS.AllowOrigins,
		MaxAge:       a.config.CORS.MaxAge,
	}))
	r.Use(sharedmiddleware.Metrics(a.metrics))
	if a.limiter != nil {
		r.Use(middleware.RateLimit(a.limiter, middleware.RateLimitConfig{
			SkipFunc: func(c *gin.Context) bool {
				p := c.Request.URL.Path
				return p == "/health" || p == "/metrics"
			},
		}))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))

	a.router = r
}

// registerRoutes mounts the generation API and generated content.
func (a *App) registerRoutes() {
	v1 := a.router.Group("/api/v1")
	mediahttp.NewHandler(a.media, a.config.Server.MaxBodyBytes).RegisterRoutes(v1)

	mediahttp.RegisterContentRoutes(a.router, a.store)
}

// Router returns the Gin router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Domain returns the generation domain.
func (a *App) Domain() *media.Domain {
	return a.media
}

// Stop gracefully stops the application.
func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
	}

	if a.zapLogger != nil {
		_ = a.zapLogger.Sync()
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("failed to close redis", logger.Err(err))
		}
	}
}
