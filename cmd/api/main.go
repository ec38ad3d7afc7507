package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/modelscan-sec/internal/application"
	appai "github.com/bryanwahyu/modelscan-sec/internal/application/ai"
	appscans "github.com/bryanwahyu/modelscan-sec/internal/application/scans"
	"github.com/bryanwahyu/modelscan-sec/internal/application/worker"
	"github.com/bryanwahyu/modelscan-sec/internal/config"
	"github.com/bryanwahyu/modelscan-sec/internal/domain/advisor"
	"github.com/bryanwahyu/modelscan-sec/internal/domain/scanerrors"
	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
	ailocal "github.com/bryanwahyu/modelscan-sec/internal/infra/ai/local"
	aiopenai "github.com/bryanwahyu/modelscan-sec/internal/infra/ai/openai"
	"github.com/bryanwahyu/modelscan-sec/internal/infra/cache"
	memstore "github.com/bryanwahyu/modelscan-sec/internal/infra/db/memory"
	mysqlp "github.com/bryanwahyu/modelscan-sec/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/modelscan-sec/internal/infra/db/postgres"
	"github.com/bryanwahyu/modelscan-sec/internal/infra/httpserver"
	"github.com/bryanwahyu/modelscan-sec/internal/infra/notify"
	"github.com/bryanwahyu/modelscan-sec/internal/infra/storage"
	"github.com/bryanwahyu/modelscan-sec/internal/logging"
	"github.com/bryanwahyu/modelscan-sec/internal/middleware"
	"github.com/bryanwahyu/modelscan-sec/internal/scanner"
)

func main() {
	_ = godotenv.Load()

	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	mainLog := logging.Component(log, "main")

	ctx := context.Background()

	// record store per driver
	var (
		repo    domain.RecordStore
		errRepo scanerrors.Repository
		advRepo advisor.Repository
		sqlDB   *sql.DB
	)
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			mainLog.WithError(err).Fatal("mysql connect error")
		}
		sqlDB = db
		repo = mysqlp.NewScanRepository(db)
		errRepo = mysqlp.NewScanErrorRepository(db)
		advRepo = mysqlp.NewAdviceRepository(db)
	case "postgres":
		db, err := pgp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			mainLog.WithError(err).Fatal("postgres connect error")
		}
		sqlDB = db
		repo = pgp.NewScanRepository(db)
		errRepo = pgp.NewScanErrorRepository(db)
		advRepo = pgp.NewAdviceRepository(db)
	default:
		repo = memstore.NewStore()
		errRepo = memstore.NewScanErrorRepository()
		advRepo = memstore.NewAdviceRepository()
	}
	if sqlDB != nil {
		defer sqlDB.Close()
	}

	// artifact storage per driver
	var artifacts domain.ArtifactStore
	switch cfg.Storage.Driver {
	case "minio":
		m, err := storage.NewMinio(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.QuarantineBucket,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			mainLog.WithError(err).Fatal("minio init error")
		}
		artifacts = m
	default:
		f, err := storage.NewFS(cfg.Storage.Root, cfg.Storage.QuarantineDir)
		if err != nil {
			mainLog.WithError(err).Fatal("fs storage init error")
		}
		artifacts = f
	}

	// result cache per driver
	var results domain.ResultCache
	switch cfg.Cache.Driver {
	case "redis":
		r, err := cache.NewRedis(ctx, cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB, logging.Component(log, "cache"))
		if err != nil {
			mainLog.WithError(err).Fatal("redis connect error")
		}
		defer r.Close()
		results = r
	default:
		m := cache.NewMemory()
		defer m.Close()
		results = m
	}

	// notifier: selalu log, webhook opsional
	var notifier domain.Notifier = notify.NewLog(logging.Component(log, "notify"))
	if cfg.Notify.WebhookURL != "" {
		wh := notify.NewWebhook(cfg.Notify.WebhookURL, time.Duration(cfg.Notify.TimeoutSeconds)*time.Second, logging.Component(log, "notify"))
		notifier = notify.NewMulti(notifier, wh)
	}

	// pattern catalog: file kalau ada, builtin kalau tidak
	catalog := scanner.BuiltinCatalog()
	if cfg.Scanner.CatalogPath != "" {
		cat, err := scanner.LoadCatalogFile(cfg.Scanner.CatalogPath)
		if err != nil {
			mainLog.WithError(err).Fatal("catalog load error")
		}
		catalog = cat
	}
	engine := scanner.NewEngine(catalog, cfg.Tunables(), artifacts, logging.Component(log, "scanner"))
	mainLog.WithFields(logrus.Fields{"version": catalog.Version(), "patterns": catalog.Len()}).Info("pattern catalog loaded")

	svc := &appscans.Service{
		Repo:      repo,
		Errors:    errRepo,
		Artifacts: artifacts,
		Cache:     results,
		Notify:    notifier,
		Engine:    engine,
		Clock:     application.SystemClock{},
		Log:       logging.Component(log, "scans"),
		CacheTTL:  time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
	}

	// AI advisor: provider kalau enabled + ada key, selain itu aturan lokal
	var aiClient advisor.Client = ailocal.NewClient()
	if cfg.AI.Enabled && cfg.AI.APIKey != "" {
		aiClient = aiopenai.NewClient(cfg.AI.APIKey, cfg.AI.Model)
	}
	aiSvc := appai.NewService(aiClient, advRepo, repo, application.SystemClock{})

	wrk := worker.New(svc, logging.Component(log, "worker"), worker.Options{
		Interval:       time.Duration(cfg.Worker.IntervalSeconds) * time.Second,
		BatchSize:      cfg.Worker.BatchSize,
		Concurrency:    cfg.Worker.Concurrency,
		ErrorThreshold: cfg.Worker.ErrorThreshold,
	})
	wrk.Start()

	// hot reload untuk tunables + catalog
	watcher, err := config.NewWatcher(path, cfg.Scanner.CatalogPath, logging.Component(log, "config"))
	if err != nil {
		mainLog.WithError(err).Warn("config watcher unavailable, hot reload disabled")
	} else {
		watcher.OnTunables(engine.SetTunables)
		watcher.OnCatalog(engine.SetCatalog)
		watcher.Start()
		defer watcher.Close()
	}

	// health checks
	checkers := map[string]middleware.HealthChecker{
		"storage": middleware.CheckerFunc(func(ctx context.Context) error {
			_, err := artifacts.Stat(ctx, ".healthcheck")
			if err != nil && !errors.Is(err, domain.ErrArtifactNotFound) {
				return err
			}
			return nil
		}),
	}
	if sqlDB != nil {
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: sqlDB}
	}

	router := httpserver.NewRouter(svc, aiSvc, wrk, middleware.HealthHandler(checkers), logging.Component(log, "http"))

	// middleware chain, paling luar dieksekusi duluan
	handler := http.Handler(router)
	handler = middleware.RateLimitMiddleware(cfg.Server.RateLimitPerMin)(handler)
	keys := cfg.TenantKeys()
	if len(keys) > 0 {
		handler = middleware.APIKeyAuth(keys)(handler)
	} else {
		mainLog.Warn("no api keys configured, auth disabled")
	}
	handler = middleware.MetricsMiddleware(handler)
	handler = middleware.RequestLogger(logging.Component(log, "http"))(handler)
	handler = cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	})(handler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		mainLog.WithField("addr", addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			mainLog.WithError(err).Fatal("server error")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	mainLog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		mainLog.WithError(err).Warn("http shutdown error")
	}
	if err := wrk.Stop(shutdownCtx); err != nil {
		mainLog.WithError(err).Warn("worker stop error")
	}
	mainLog.Info("bye")
}
