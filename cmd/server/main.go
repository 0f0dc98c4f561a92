package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callsheet/internal/config"
	"callsheet/internal/database"
	"callsheet/internal/handlers"
	"callsheet/internal/logging"
	"callsheet/internal/middleware"
	"callsheet/internal/preflight"
	"callsheet/internal/services"
	"callsheet/pkg/auth"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Callsheet Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}
	calendar := cfg.Calendar()
	log.Printf("📋 Configuration loaded (Port: %s, Timezone: %s, Anchor: %02d:00)",
		cfg.Port, calendar.Location, calendar.AnchorHour)

	backends := map[string]database.Pinger{}

	// Redis is optional: it relays change notices when change streams aren't available
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Redis unavailable, falling back to polling: %v", err)
		} else {
			backends["redis"] = redisService
		}
	}

	// Remote store
	var (
		store    database.DocumentStore
		profiles services.ProfileStore
		mongodb  *database.MongoDB
	)
	if cfg.MongoURI != "" {
		mongodb, err = database.NewMongoDB(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
		}

		initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := mongodb.Initialize(initCtx); err != nil {
			cancel()
			log.Fatalf("❌ Failed to initialize MongoDB: %v", err)
		}
		cancel()

		var opts []database.MongoStoreOption
		if redisService != nil {
			feed := redisService.ChangeFeed()
			opts = append(opts, database.WithFallbackFeed(feed), database.WithChangePublisher(feed))
		}
		opts = append(opts, database.WithFallbackFeed(database.NewPollingFeed(cfg.PollInterval)))

		store = database.NewMongoStore(mongodb, opts...)
		profiles = database.NewMongoProfileStore(mongodb)
		backends["mongodb"] = mongodb
		log.Printf("✅ Project store: MongoDB (%s)", mongodb.Name())
	} else {
		store = database.NewMemoryStore()
		profiles = database.NewMemoryProfileStore()
		log.Println("⚠️  MONGODB_URI not set, using the in-memory store (data is lost on restart)")
	}

	if preflight.HasFailures(preflight.NewChecker(cfg, backends).RunAll()) {
		log.Fatal("❌ Pre-flight checks failed, refusing to start")
	}

	// Identity
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "callsheet-development-secret"
		log.Println("⚠️  JWT_SECRET not set, using an insecure development secret")
	}
	jwtAuth, err := auth.NewLocalJWTAuth(cfg.JWTSecret, 0)
	if err != nil {
		log.Fatalf("❌ Failed to initialize JWT authentication: %v", err)
	}
	profileService := services.NewProfileService(profiles)
	session := auth.NewSession(jwtAuth, profileService)

	// Replica
	provider := services.NewOpenMeteoProvider(cfg.ForecastBaseURL, cfg.ForecastDays, cfg.ForecastRatePerSecond, cfg.ForecastTimeout)
	manager := services.NewProjectionManager(store, provider, services.ManagerConfig{
		Calendar:          calendar,
		ConditionalWrites: cfg.ConditionalWrites,
		ForecastTimeout:   cfg.ForecastTimeout,
	})
	stopIdentity := session.Subscribe(manager.HandleIdentityChange)
	membership := services.NewMembershipService(store, manager)

	// Settings that can change without a restart
	watchCtx, stopWatch := context.WithCancel(context.Background())
	if path := os.Getenv("CALLSHEET_CONFIG_PATH"); path != "" {
		go func() {
			err := config.Watch(watchCtx, path, func(updated *config.Config) {
				manager.SetConditionalWrites(updated.ConditionalWrites)
			})
			if err != nil {
				log.Printf("⚠️  Config hot-reload disabled: %v", err)
			}
		}()
	}

	connManager := services.NewConnectionManager()
	stopPush := manager.OnChange(connManager.BroadcastProjection)

	var prefetch *services.ForecastPrefetchJob
	if cfg.PrefetchCron != "" {
		prefetch, err = services.NewForecastPrefetchJob(manager, cfg.PrefetchCron, cfg.PrefetchDays)
		if err != nil {
			log.Fatalf("❌ Failed to create forecast prefetch job: %v", err)
		}
		if err := prefetch.Start(); err != nil {
			log.Fatalf("❌ Failed to start forecast prefetch job: %v", err)
		}
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Callsheet v1.0",
		ErrorHandler: handlers.ErrorHandler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    4 * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("callsheet")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", allowedOrigins)

	handlers.SetupRoutes(app, handlers.Handlers{
		Schedule:   handlers.NewScheduleHandler(manager, services.NewCallSheetExporter(calendar)),
		Session:    handlers.NewSessionHandler(session, membership, profileService, manager),
		Health:     handlers.NewHealthHandler(manager, connManager, backends),
		Projection: handlers.NewProjectionSocket(manager, connManager),
		Limits:     middleware.LoadRateLimitConfig(),
	})

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("🔌 Projection stream: ws://localhost:%s/ws/projection", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	// Handle graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if prefetch != nil {
			if err := prefetch.Stop(); err != nil {
				log.Printf("⚠️  Error stopping forecast prefetch: %v", err)
			}
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️  Error shutting down server: %v", err)
		}

		// Detach and let dispatched writes finish before closing the store
		stopWatch()
		stopPush()
		stopIdentity()
		manager.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if mongodb != nil {
			if err := mongodb.Close(ctx); err != nil {
				log.Printf("⚠️  Error closing MongoDB: %v", err)
			}
		}
		if redisService != nil {
			if err := redisService.Close(); err != nil {
				log.Printf("⚠️  Error closing Redis: %v", err)
			}
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
	<-shutdownDone
	log.Println("👋 Server stopped")
}
