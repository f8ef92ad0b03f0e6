package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/madprep/config"
	"github.com/yoockh/madprep/internal/api/handlers"
	"github.com/yoockh/madprep/internal/api/middleware"
	"github.com/yoockh/madprep/internal/api/routes"
	"github.com/yoockh/madprep/internal/bootstrap"
	"github.com/yoockh/madprep/internal/cache"
	"github.com/yoockh/madprep/internal/events"
	"github.com/yoockh/madprep/internal/logger"
	"github.com/yoockh/madprep/internal/repositories"
	"github.com/yoockh/madprep/internal/repositories/memory"
	mongorepo "github.com/yoockh/madprep/internal/repositories/mongo"
	pgrepo "github.com/yoockh/madprep/internal/repositories/postgres"
	redisrepo "github.com/yoockh/madprep/internal/repositories/redis"
	"github.com/yoockh/madprep/internal/services"
	"github.com/yoockh/madprep/internal/storage"
	"github.com/yoockh/madprep/internal/telemetry"
	"github.com/yoockh/madprep/internal/workers"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TelemetryEnabled {
		shutdown, err := telemetry.Init(ctx, cfg.LogDir, "gin-server")
		if err != nil {
			log.WithError(err).Fatal("telemetry init")
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.WithError(err).Warn("telemetry shutdown")
			}
		}()
	}

	// Init Redis when anything needs it
	if cfg.SessionStore == "redis" || cfg.QueueBackend == "redis" {
		if err := config.InitRedis(); err != nil {
			log.WithError(err).Fatal("Redis init error")
		}
		defer config.CloseRedis()
		log.Info("Redis connected")
	}

	sessions, err := sessionRepo(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("session store")
	}
	questions, err := questionRepo(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("question store")
	}

	uploads, err := storage.NewLocal(filepath.Join(cfg.UploadDir, "uploads"))
	if err != nil {
		log.WithError(err).Fatal("upload dir")
	}

	var bus events.Bus = events.NewMemoryBus()
	if config.RedisClient != nil {
		bus = events.NewRedisBus(config.RedisClient, log)
	}

	pl, err := bootstrap.NewPipeline(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("pipeline")
	}
	defer pl.Close()

	questionSvc := services.NewQuestionService(questions)
	if err := questionSvc.SeedDefaults(ctx); err != nil {
		log.WithError(err).Fatal("seed questions")
	}

	// the queue handler needs the service and the service needs the queue
	var (
		queue workers.Queue
		local *workers.LocalQueue
		pool  *workers.AnalysisWorkerPool
	)
	switch cfg.QueueBackend {
	case "redis":
		queue = &workers.RedisQueue{Redis: config.RedisClient, MaxLen: 10000}
		pool = &workers.AnalysisWorkerPool{
			Redis:          config.RedisClient,
			NumWorkers:     cfg.Workers,
			Logger:         log,
			ConsumerPrefix: consumerPrefix(),
		}
	default:
		local = &workers.LocalQueue{NumWorkers: cfg.Workers, Logger: log}
		queue = local
	}

	analysisSvc := services.NewAnalysisService(sessions, questionSvc, uploads, queue, bus, pl.Orchestrator,
		services.AnalysisConfig{
			DefaultCredential: cfg.DefaultCredential(),
			DefaultModel:      cfg.ModelName,
			Stride:            cfg.SampleStride,
			MaxUploadBytes:    cfg.MaxUploadMB << 20,
			SessionTTL:        cfg.SessionTTL,
		}, log)

	workCtx, stopWork := context.WithCancel(context.Background())
	defer stopWork()
	if local != nil {
		local.Handler = analysisSvc.Process
		if err := local.Start(workCtx); err != nil {
			log.WithError(err).Fatal("local queue")
		}
	}
	if pool != nil {
		pool.Handler = analysisSvc.Process
		if err := pool.Start(workCtx); err != nil {
			log.WithError(err).Fatal("worker pool")
		}
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	r.MaxMultipartMemory = 32 << 20

	routes.RegisterRoutes(r, routes.Deps{
		Auth: middleware.AuthConfig{
			Secret:   cfg.JWTSecret,
			Issuer:   os.Getenv("SUPABASE_JWT_ISSUER"),
			Audience: os.Getenv("SUPABASE_JWT_AUDIENCE"),
			Disabled: cfg.AuthDisabled,
		},
		Analysis: handlers.NewAnalysisHandler(analysisSvc, cfg.MaxUploadMB<<20),
		Question: handlers.NewQuestionHandler(questionSvc),
		WS:       handlers.NewWSHandler(analysisSvc, bus),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.Port).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}

	// running analyses end as abandoned
	stopWork()
	if local != nil {
		local.Wait()
	}
	_ = config.CloseMongo(shutdownCtx)
}

func sessionRepo(cfg *config.AppConfig, log *logrus.Logger) (repositories.SessionRepository, error) {
	switch cfg.SessionStore {
	case "redis":
		return redisrepo.NewSessionRepo(cache.NewRedisCache(config.RedisClient)), nil
	case "mongo":
		if err := config.InitMongo(); err != nil {
			return nil, err
		}
		log.Info("MongoDB connected")
		if err := config.EnsureMongoIndexes(); err != nil {
			return nil, err
		}
		db, err := config.MongoDatabase()
		if err != nil {
			return nil, err
		}
		return mongorepo.NewSessionRepo(db), nil
	default:
		return memory.NewSessionRepo(), nil
	}
}

func questionRepo(cfg *config.AppConfig, log *logrus.Logger) (repositories.QuestionRepository, error) {
	if cfg.QuestionStore != "postgres" {
		return memory.NewQuestionRepo(), nil
	}
	if err := config.InitPostgres(); err != nil {
		return nil, err
	}
	log.Info("PostgreSQL connected")
	if err := config.MigratePostgres(); err != nil {
		return nil, err
	}
	return pgrepo.NewQuestionRepo(config.PostgresDB), nil
}

func consumerPrefix() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "madprep"
}
