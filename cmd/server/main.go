package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"tcmclinic/internal/config"
	"tcmclinic/internal/database"
	"tcmclinic/internal/handlers"
	"tcmclinic/internal/jobs"
	"tcmclinic/internal/lineimport"
	"tcmclinic/internal/logging"
	"tcmclinic/internal/middleware"
	"tcmclinic/internal/preflight"
	"tcmclinic/internal/services"
	"tcmclinic/pkg/auth"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional
	envErr := godotenv.Load()

	logging.Init()
	log := logging.L()
	log.Info("🚀 Starting TCM clinic server...")
	if envErr != nil {
		log.Debugf("No .env file loaded: %v", envErr)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	loc := cfg.Location()
	log.Infof("📋 Configuration loaded (Port: %s, Env: %s, TZ: %s)", cfg.Port, cfg.Environment, loc)

	// Databases
	clinicDB, err := database.NewMongoDB(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatalf("❌ Failed to connect to clinic database: %v", err)
	}
	defer clinicDB.Close(context.Background())

	lineBotDB, err := database.NewMongoDB(cfg.LineBotMongoURI, cfg.LineBotMongoDB)
	if err != nil {
		log.Fatalf("❌ Failed to connect to LINE bot database: %v", err)
	}
	defer lineBotDB.Close(context.Background())

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := clinicDB.Initialize(initCtx); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}
	cancelInit()

	// Redis is optional; without it merges lock in-process
	var redisService *services.RedisService
	var locker services.KeyedLocker = services.NewLocalLocker()
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Warnf("⚠️ Redis unavailable, using in-process merge locks: %v", err)
		} else {
			defer redisService.Close()
			locker = services.NewRedisLocker(redisService, 30*time.Second)
		}
	}

	var redisPinger preflight.Pinger
	if redisService != nil {
		redisPinger = redisService
	}
	results := preflight.NewChecker(cfg, clinicDB, lineBotDB, redisPinger).RunAll(context.Background())
	if preflight.HasFailures(results) {
		log.Fatal("❌ Pre-flight checks failed")
	}

	services.InitMetrics()

	// CSV import pipeline
	columns := lineimport.DefaultColumns()
	if cfg.CSVColumnsFile != "" {
		columns, err = lineimport.LoadColumns(cfg.CSVColumnsFile)
		if err != nil {
			log.Fatalf("❌ Failed to load CSV column mapping: %v", err)
		}
		log.Infof("📄 CSV column mapping loaded from %s", cfg.CSVColumnsFile)
	}
	pipeline := lineimport.NewPipeline(columns, loc)
	resolver := services.NewMergeResolver(services.NewMongoPatientStore(clinicDB), locker)
	importService := services.NewImportService(pipeline, resolver, loc)

	patientService := services.NewPatientService(clinicDB, loc)
	exportService := services.NewExportService(loc)

	// LINE
	lineClient := services.NewLineClient(cfg.LineAPIBaseURL, cfg.LineChannelAccessToken)
	lineEnabled := lineClient.Configured()
	if !lineEnabled {
		log.Warn("⚠️ LINE_CHANNEL_ACCESS_TOKEN not set, notifications and sync disabled")
	}
	notificationService := services.NewNotificationService(lineClient)
	lineSyncService := services.NewLineSyncService(services.NewMongoLineSyncStore(clinicDB, lineBotDB), lineClient)

	// Auth
	sessions, err := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionMaxAge)
	if err != nil {
		log.Fatalf("❌ Failed to create session manager: %v", err)
	}
	allowList, err := auth.NewAllowList(cfg.AllowedEmails, cfg.AllowedEmailsFile)
	if err != nil {
		log.Fatalf("❌ Failed to load allow-list: %v", err)
	}
	log.Infof("🔐 Allow-list loaded with %d addresses", allowList.Len())

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if err := allowList.Watch(watchCtx, log); err != nil {
		log.Warnf("⚠️ Allow-list hot reload disabled: %v", err)
	}

	// Scheduled jobs
	var scheduler *jobs.JobScheduler
	if cfg.LineSyncCron != "" && lineEnabled {
		scheduler, err = jobs.NewJobScheduler(loc)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		if err := scheduler.Register(cfg.LineSyncCron, jobs.NewLineSyncJob(lineSyncService, 10*time.Minute)); err != nil {
			log.Fatalf("❌ %v", err)
		}
		scheduler.Start()
	}

	app := fiber.New(fiber.Config{
		AppName:      "TCM Clinic API",
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    cfg.BodyLimitBytes,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))

	prometheus := fiberprometheus.New("tcmclinic")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	allowCredentials := cfg.AllowedOrigins != "*"
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		ExposeHeaders:    "Content-Disposition",
		AllowCredentials: allowCredentials,
	}))
	log.Infof("🔒 CORS allowed origins: %s", cfg.AllowedOrigins)

	rateLimit := middleware.LoadRateLimitConfig(strings.ToLower(cfg.Environment))

	registerRoutes(app, routeDeps{
		sessions:  sessions,
		allowList: allowList,
		rateLimit: rateLimit,
		scheduler: scheduler,

		health:        handlers.NewHealthHandler(clinicDB, cfg.Environment),
		auth:          handlers.NewAuthHandler(auth.NewGoogleVerifier(cfg.GoogleClientID), sessions, allowList, cfg.IsProduction()),
		importer:      handlers.NewImportHandler(importService),
		patients:      handlers.NewPatientHandler(patientService),
		records:       handlers.NewRecordsHandler(patientService, exportService),
		notifications: handlers.NewNotificationHandler(notificationService, lineEnabled),
		sync:          handlers.NewSyncHandler(lineSyncService, lineEnabled),
		linkPreview:   handlers.NewLinkPreviewHandler(services.NewLinkPreviewService()),
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("🛑 Shutting down server...")
		stopWatch()
		if scheduler != nil {
			if err := scheduler.Stop(); err != nil {
				log.Warnf("⚠️ Error stopping scheduler: %v", err)
			}
		}
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Warnf("⚠️ Error shutting down server: %v", err)
		}
	}()

	log.Infof("✅ Server listening on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
