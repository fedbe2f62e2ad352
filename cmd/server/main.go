package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adventuretogether/booking-backend/internal/cache"
	"github.com/adventuretogether/booking-backend/internal/config"
	"github.com/adventuretogether/booking-backend/internal/database"
	"github.com/adventuretogether/booking-backend/internal/events"
	"github.com/adventuretogether/booking-backend/internal/handlers"
	"github.com/adventuretogether/booking-backend/internal/middleware"
	"github.com/adventuretogether/booking-backend/internal/services"
	"github.com/adventuretogether/booking-backend/pkg/jwt"
	"github.com/adventuretogether/booking-backend/pkg/webhook"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting booking backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Repositories
	bookingRepo := database.NewBookingRepository(db.DB)
	participantRepo := database.NewParticipantRepository(db.DB)
	paymentRepo := database.NewPaymentRepository(db.DB)
	tripRepo := database.NewTripRepository(db.DB)
	travelerRepo := database.NewTravelerRepository(db.DB)
	auditRepo := database.NewPaymentAuditRepository(db.DB, logger)

	// Finalize lock: redis when configured, otherwise per-process
	var locker cache.Locker = cache.NewMemoryLocker()
	if cfg.Redis.Addr != "" {
		redisLocker := cache.NewRedisLocker(cfg.Redis)
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisLocker.Ping(pingCtx); err != nil {
			logger.WithError(err).Warn("Redis unavailable, finalize locks are per-process")
			redisLocker.Close()
		} else {
			locker = redisLocker
			defer redisLocker.Close()
			logger.Infof("✓ Redis finalize locks enabled (%s)", cfg.Redis.Addr)
		}
		pingCancel()
	}

	// Booking events: kafka when brokers are configured, otherwise logged
	var publisher events.Publisher = events.NewLogPublisher(logger)
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka, logger)
		logger.Infof("✓ Kafka booking events enabled (topic %s)", cfg.Kafka.BookingEventsTopic)
	}
	defer publisher.Close()

	insurancePlans := config.DefaultInsurancePlans()
	if cfg.Booking.InsurancePlansFile != "" {
		insurancePlans, err = config.LoadInsurancePlans(cfg.Booking.InsurancePlansFile)
		if err != nil {
			logger.Fatalf("Failed to load insurance plans: %v", err)
		}
	}

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	auditService := services.NewAuditService(auditRepo, logger)
	serializer := services.NewBookingSerializer(cfg.Booking.MetadataValueLimit, cfg.Booking.MaxMetadataChunks)
	pricingService := services.NewPricingService(insurancePlans)
	gateway := services.NewStripeGateway(cfg.Stripe, logger)

	preparationService := services.NewBookingPreparationService(
		bookingRepo,
		tripRepo,
		travelerRepo,
		pricingService,
		serializer,
		gateway,
		auditService,
		cfg.Stripe.Currency,
		logger,
	)
	finalizerService := services.NewBookingFinalizerService(
		bookingRepo,
		participantRepo,
		paymentRepo,
		tripRepo,
		travelerRepo,
		serializer,
		locker,
		auditService,
		publisher,
		cfg.Booking,
		cfg.Redis.LockTTL,
		logger,
	)
	webhookService := services.NewWebhookService(finalizerService, bookingRepo, auditService, logger)
	queryService := services.NewBookingQueryService(bookingRepo, participantRepo, paymentRepo)
	receiptService := services.NewReceiptService(queryService, tripRepo)

	reconciliationService := services.NewBookingReconciliationService(
		bookingRepo,
		auditService,
		cfg.Booking.PendingTTL,
		cfg.Booking.ReconcileInterval,
		logger,
	)
	if err := reconciliationService.Start(); err != nil {
		logger.Fatalf("Failed to start reconciliation: %v", err)
	}
	logger.Info("✓ Reconciliation started - stale PENDING bookings expire")

	verifier := webhook.NewVerifier(cfg.Stripe.WebhookSecret, cfg.Stripe.WebhookTolerance)

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(preparationService, queryService, receiptService, logger)
	webhookHandler := handlers.NewWebhookHandler(verifier, webhookService, logger)
	reviewHandler := handlers.NewReviewHandler(auditService, logger)

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	if cfg.Server.EnableRequestLog {
		router.Use(middleware.RequestLogger(logger))
	}

	// CORS middleware
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", handlers.HealthCheck(db, version))

	// Stripe calls this endpoint directly; it authenticates by signature
	router.POST("/stripe/webhook", webhookHandler.HandleStripe)

	v1 := router.Group("/api/v1")
	{
		bookings := v1.Group("/bookings")
		bookings.Use(middleware.AuthMiddleware(jwtService, logger))
		{
			bookings.POST("/prepare", bookingHandler.Prepare)
			bookings.GET("", bookingHandler.List)
			bookings.GET("/:id", bookingHandler.Get)
			bookings.GET("/:id/receipt", bookingHandler.Receipt)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtService, logger), middleware.RequireRole(middleware.RoleAdmin))
		{
			admin.GET("/reviews", reviewHandler.List)
			admin.POST("/reviews/:id/resolve", reviewHandler.Resolve)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	logger.Info("Stopping reconciliation...")
	reconciliationService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}
