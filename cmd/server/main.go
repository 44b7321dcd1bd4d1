package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/souqly/backend/internal/audit"
	"github.com/souqly/backend/internal/config"
	"github.com/souqly/backend/internal/database"
	"github.com/souqly/backend/internal/handlers"
	"github.com/souqly/backend/internal/logger"
	"github.com/souqly/backend/internal/middleware"
	"github.com/souqly/backend/internal/services"
	"github.com/spf13/viper"
)

// @title Souqly Marketplace API
// @version 1.0
// @description Wallet ledger and escrow for orders, rides, stays, food and services
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")
	viper.BindEnv("database.migrate", "DATABASE_MIGRATE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")

	viper.BindEnv("escrow.refund_policy", "ESCROW_REFUND_POLICY")
	viper.BindEnv("escrow.platform_account_user_id", "ESCROW_PLATFORM_ACCOUNT_USER_ID")
	viper.BindEnv("escrow.currency", "ESCROW_CURRENCY")
	viper.BindEnv("escrow.auto_repair_commitment_fee", "ESCROW_AUTO_REPAIR_COMMITMENT_FEE")
	viper.BindEnv("escrow.apartment_auto_confirm", "ESCROW_APARTMENT_AUTO_CONFIRM")
	viper.BindEnv("escrow.max_order_lines", "ESCROW_MAX_ORDER_LINES")
	viper.BindEnv("escrow.payment_request_ttl", "ESCROW_PAYMENT_REQUEST_TTL")
	viper.BindEnv("idempotency.ttl", "IDEMPOTENCY_TTL")
	viper.BindEnv("idempotency.lock_timeout", "IDEMPOTENCY_LOCK_TIMEOUT")
	viper.BindEnv("payout.debtor_bic", "PAYOUT_DEBTOR_BIC")

	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("log.pretty", "LOG_PRETTY")

	configErr := viper.ReadInConfig()

	logger.New(logger.ConfigFromViper())
	if configErr != nil {
		log.Info().Err(configErr).Msg("config file not found, using environment and defaults")
	}

	if viper.GetString("jwt.secret_key") == "" {
		log.Fatal().Msg("JWT_SECRET_KEY must be set")
	}

	cfg := config.LoadEscrowConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid escrow configuration")
	}

	ctx := context.Background()

	db := database.InitDatabase(ctx)
	defer db.Close()

	redisClient := database.InitRedis(ctx)
	if redisClient != nil {
		defer redisClient.Close()
	}

	auditor := audit.NewLogger()
	ledger := services.NewLedgerService(db, auditor, cfg.Currency)
	if _, err := ledger.OpenAccount(ctx, cfg.PlatformAccountUserID); err != nil {
		log.Fatal().Err(err).Int64("user_id", cfg.PlatformAccountUserID).Msg("failed to open platform account")
	}

	availability := services.NewAvailabilityService(db)
	escrow := services.NewEscrowService(db, ledger, availability, auditor, cfg)
	transfers := services.NewTransferService(db, ledger, auditor)
	paymentRequests := services.NewPaymentRequestService(redisClient, transfers, cfg.PaymentRequestTTL)
	payouts := services.NewPayoutService(db, escrow, cfg.Currency, cfg.PayoutDebtorBIC)
	vendors := services.NewVendorService(db)

	router := &handlers.Router{
		Auth:                   middleware.NewAuthenticator(redisClient),
		Redis:                  redisClient,
		IdempotencyTTL:         cfg.IdempotencyTTL,
		IdempotencyLockTimeout: cfg.IdempotencyLockTimeout,

		Wallet:          handlers.NewWalletHandler(ledger),
		Transfers:       handlers.NewTransferHandler(transfers),
		PaymentRequests: handlers.NewPaymentRequestHandler(paymentRequests),
		Escrow:          handlers.NewEscrowHandler(escrow, availability, payouts),
		Vendors:         handlers.NewVendorHandler(vendors),
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: config.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
