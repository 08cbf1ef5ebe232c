package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipsyncapp/api-clipsync/internal/config"
	"github.com/clipsyncapp/api-clipsync/internal/handler"
	"github.com/clipsyncapp/api-clipsync/internal/middleware"
	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/clipsyncapp/api-clipsync/internal/repository"
	"github.com/clipsyncapp/api-clipsync/internal/service"
	"github.com/clipsyncapp/api-clipsync/internal/ws"
	"github.com/clipsyncapp/api-clipsync/migrations"
	"github.com/clipsyncapp/api-clipsync/pkg/auth"
	"github.com/clipsyncapp/api-clipsync/pkg/mailer"
	"github.com/clipsyncapp/api-clipsync/pkg/notification"
	"github.com/clipsyncapp/api-clipsync/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// @title           ClipSync API
// @version         1.0
// @description     Cross-device media synchronization API with Go, Gin, WebSocket, Redis Pub/Sub, MinIO.

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      api.localhost
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// ==================== Load Config ====================
	cfg := config.Load()
	log.Printf("🚀 Starting ClipSync API Server [env=%s]", cfg.App.Env)

	// ==================== Database (PostgreSQL) ====================
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.App.Env == "production" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	// ==================== Run Migrations ====================
	if err := migrations.Run(cfg.DB.URL()); err != nil {
		log.Printf("⚠️  Migration warning: %v", err)
		log.Println("📦 Falling back to GORM AutoMigrate...")
		// Fallback to AutoMigrate if migration files fail
		if err := db.AutoMigrate(
			&model.Installation{},
			&model.Account{},
			&model.AccountProperty{},
			&model.SecretUpdate{},
			&model.InstallationLink{},
			&model.AuthSession{},
			&model.Media{},
			&model.MediaReceipt{},
			&model.MediaRequest{},
		); err != nil {
			log.Fatalf("❌ Failed to migrate database: %v", err)
		}
	}
	log.Println("✅ Database migrated successfully")

	// ==================== Redis ====================
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       0,
	})

	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Printf("⚠️  Redis not available: %v (single-instance delivery only)", err)
		rdb = nil
	} else {
		log.Println("✅ Connected to Redis")
	}

	// ==================== Email (SMTP / Mailpit) ====================
	mailClient := mailer.New(mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
	})
	log.Printf("📧 SMTP configured: %s:%s", cfg.SMTP.Host, cfg.SMTP.Port)

	// ==================== Push (FCM) ====================
	pushService, err := notification.New(cfg.FCM.CredentialsFile)
	if err != nil {
		log.Printf("⚠️  FCM not available: %v (push disabled)", err)
	}

	// ==================== MinIO Storage ====================
	blobStore, err := storage.NewMinIO(storage.Config{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
		UseSSL:    cfg.MinIO.UseSSL,
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to MinIO: %v", err)
	}
	log.Println("✅ Connected to MinIO")

	// ==================== Initialize Layers ====================
	// JWT Manager
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)

	// Repositories
	instRepo := repository.NewInstallationRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	mediaRepo := repository.NewMediaRepository(db)
	requestRepo := repository.NewRequestRepository(db)

	// Per-account bus registry (with Redis Pub/Sub for horizontal scaling)
	registry := ws.NewRegistry(rdb)
	busCtx, busCancel := context.WithCancel(context.Background())
	defer busCancel()
	go registry.Run(busCtx)

	// Services
	authService := service.NewAuthService(accountRepo, sessionRepo, instRepo, jwtManager, mailClient, rdb)
	mediaService := service.NewMediaService(mediaRepo, requestRepo, instRepo, registry, pushService)
	uploadLocks := service.NewUploadLocks()

	// Startup consistency repair: drop stray partial blob writes and log
	// flagged rows whose backing blob is missing.
	if flagged, err := mediaRepo.FlaggedMedia(); err != nil {
		log.Printf("⚠️  Reconcile: failed to load flagged media: %v", err)
	} else {
		blobs := make([]storage.FlaggedBlob, 0, len(flagged)*2)
		for _, m := range flagged {
			if m.HasThumb {
				blobs = append(blobs, storage.FlaggedBlob{MediaID: m.ID.String(), Kind: string(model.MediaKindThumb)})
			}
			if m.HasFile {
				blobs = append(blobs, storage.FlaggedBlob{MediaID: m.ID.String(), Kind: string(model.MediaKindFile)})
			}
		}
		blobStore.Reconcile(ctx, blobs)
	}

	// Handlers
	instHandler := handler.NewInstallationHandler(instRepo)
	accountHandler := handler.NewAccountHandler(authService)
	authHandler := handler.NewAuthHandler(authService)
	mediaHandler := handler.NewMediaHandler(mediaService, uploadLocks, blobStore)
	wsHandler := handler.NewWSHandler(jwtManager, registry, authService, mediaService, cfg.App.Env)

	// ==================== Gin Router ====================
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Swagger configuration
	router.StaticFile("/docs/swagger.json", "./docs/swagger.json")
	url := ginSwagger.URL("/docs/swagger.json")
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, url))

	// Global middleware
	router.Use(middleware.CORS(cfg.CORS.Origins))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "clipsync-api",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	// ==================== API Routes ====================
	api := router.Group("/api/v1")
	{
		// Registration (public, no Installation-Id yet)
		api.PUT("/installations", instHandler.Register)

		// Public routes that identify the device by header
		device := api.Group("")
		device.Use(middleware.InstallationMiddleware())
		{
			device.POST("/accounts", accountHandler.CreateAccount)
			device.POST("/accounts/properties", accountHandler.ClaimProperty)
			device.POST("/auth_sessions", authHandler.CreateSession)
			device.POST("/auth_sessions/refresh", authHandler.Refresh)
		}

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.InstallationMiddleware(), middleware.AuthMiddleware(jwtManager))
		{
			// Account
			protected.GET("/accounts/links", accountHandler.GetLinks)
			protected.POST("/accounts/links", accountHandler.RenameLink)
			protected.PUT("/accounts/secret", accountHandler.ChangeSecret)

			// Installation
			protected.POST("/installations/push_token", instHandler.RegisterPushToken)

			// Media
			protected.GET("/medias", mediaHandler.List)
			protected.POST("/medias/:id/:kind", mediaHandler.Upload)
			protected.GET("/medias/:id/:kind/raw", mediaHandler.Raw)
			protected.POST("/medias/:id/receipts", mediaHandler.SaveReceipt)
			protected.GET("/media_requests/next", mediaHandler.NextRequest)
			protected.DELETE("/media_requests/:media_id", mediaHandler.AbandonRequest)
		}
	}

	// WebSocket endpoint (auth via query parameter)
	router.GET("/ws", wsHandler.Connect)

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: router,
		// Large uploads need generous timeouts
		ReadTimeout:  30 * time.Minute,
		WriteTimeout: 30 * time.Minute,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	log.Printf("🌐 ClipSync API running on http://0.0.0.0:%s", cfg.App.Port)
	log.Printf("📋 API docs: http://0.0.0.0:%s/swagger/index.html", cfg.App.Port)
	log.Printf("🔌 Channel: ws://0.0.0.0:%s/ws?token=<jwt>", cfg.App.Port)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	busCancel()
	log.Println("✅ Server exited gracefully")
}
