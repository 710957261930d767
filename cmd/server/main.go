package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/gemachnet/backend/docs"
	"github.com/gemachnet/backend/internal/config"
	"github.com/gemachnet/backend/internal/database"
	"github.com/gemachnet/backend/internal/gateway"
	"github.com/gemachnet/backend/internal/handlers"
	mW "github.com/gemachnet/backend/internal/middleware"
	"github.com/gemachnet/backend/internal/retry"
	"github.com/gemachnet/backend/internal/services"
)

// @title Gemach Network Backend API
// @version 1.0
// @description Deposit and payment lifecycle engine for the lending network
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("gateway.base_url", "GATEWAY_BASE_URL")
	viper.BindEnv("gateway.secret_key", "GATEWAY_SECRET_KEY")
	viper.BindEnv("gateway.publishable_key", "GATEWAY_PUBLISHABLE_KEY")
	viper.BindEnv("engine.card_fee_bps", "CARD_FEE_BPS")
	viper.BindEnv("engine.default_deposit_amount", "DEFAULT_DEPOSIT_AMOUNT")
	viper.BindEnv("engine.currency", "CURRENCY")
	viper.BindEnv("engine.status_base_url", "STATUS_BASE_URL")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Gemach Network Backend API"
	docs.SwaggerInfo.Description = "Deposit and payment lifecycle engine for the lending network"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	engineCfg := config.LoadEngineConfig()
	gatewayClient := gateway.NewClient(engineCfg.GatewayBaseURL, engineCfg.GatewaySecretKey)

	auditLogger := services.NewAuditLogger(db)
	failureRecorder := retry.NewFailureRecorder(db)

	depositService := services.NewDepositService(db, gatewayClient, auditLogger, engineCfg)
	payLaterService := services.NewPayLaterService(db, gatewayClient, auditLogger, engineCfg)
	returnService := services.NewReturnService(db, redisClient, auditLogger, failureRecorder, engineCfg)
	authService := services.NewAuthService(db, redisClient)
	locationService := services.NewLocationService(db)

	depositHandler := handlers.NewDepositHandler(depositService)
	payLaterHandler := handlers.NewPayLaterHandler(payLaterService, engineCfg)
	returnHandler := handlers.NewReturnHandler(returnService)
	webhookHandler := handlers.NewWebhookHandler(depositService, payLaterService)
	auditHandler := handlers.NewAuditHandler(auditLogger)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)
		r.Post("/webhooks/gateway", webhookHandler.HandleEvent)
		r.Get("/status/{transactionId}", payLaterHandler.GetStatus)
		r.Get("/status/{transactionId}/qr", payLaterHandler.GetStatusQR)
		r.Get("/locations", locationService.ListLocations)
		r.Get("/locations/{locationId}", locationService.GetLocation)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/profile", authService.GetProfile)

			// Deposit lifecycle
			r.Post("/transactions", depositHandler.CreateTransaction)
			r.Post("/transactions/{transactionId}/payments/card", depositHandler.InitiateCardPayment)
			r.Post("/transactions/{transactionId}/payments/cash", depositHandler.InitiateCashPayment)
			r.Post("/payments/{paymentId}/confirm", depositHandler.ConfirmPayment)
			r.Post("/payments/bulk-confirm", depositHandler.BulkConfirmPayments)
			r.Post("/transactions/{transactionId}/refund", depositHandler.RefundDeposit)

			// Deferred-charge flow
			r.Post("/transactions/{transactionId}/pay-later", payLaterHandler.CreateSetupIntent)
			r.Post("/pay-later/{transactionId}/approve", payLaterHandler.ApproveTransaction)
			r.Post("/pay-later/{transactionId}/decline", payLaterHandler.DeclineTransaction)
			r.Post("/pay-later/{transactionId}/charge", payLaterHandler.ChargeTransaction)

			// Returns
			r.Post("/transactions/{transactionId}/return", returnHandler.ProcessReturn)
			r.Post("/returns/bulk", returnHandler.BulkProcessReturns)

			// Audit trail (admin)
			r.Get("/audit-log", auditHandler.ListEntries)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
