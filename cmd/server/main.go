package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"farmrent/config"
	"farmrent/internal/api"
	"farmrent/internal/broker"
	"farmrent/internal/chain"
	"farmrent/internal/oracle"
	"farmrent/internal/redisclient"
	"farmrent/internal/service"
	"farmrent/internal/store"
	"farmrent/internal/util"
	"farmrent/internal/worker"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting farmrent")

	tp, err := util.InitTracer("farmrent", cfg.Server.Env, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)

	var (
		registry service.RegistryReader
		verifier service.SettlementVerifier
	)
	if cfg.Chain.Enabled() {
		client, err := chain.Dial(cfg.Chain.RPCURL)
		if err != nil {
			logger.Fatal("Failed to dial chain", zap.Error(err))
		}
		defer client.Close()

		reg, err := chain.NewRegistry(client, chain.Config{
			Address:       common.HexToAddress(cfg.Chain.RegistryAddress),
			ChainID:       big.NewInt(cfg.Chain.ChainID),
			Timeout:       cfg.Chain.Timeout,
			Confirmations: cfg.Chain.Confirmations,
		})
		if err != nil {
			logger.Fatal("Failed to configure registry", zap.Error(err))
		}
		registry = reg
		if cfg.Chain.VerifySettlement {
			verifier = chain.NewVerifier(reg)
		} else {
			logger.Warn("VERIFY_SETTLEMENT=false, confirmations accept unverified transaction hashes")
		}
		logger.Info("Registry configured",
			zap.String("address", reg.Address().Hex()),
			zap.Bool("verify_settlement", cfg.Chain.VerifySettlement))
	} else {
		logger.Warn("CHAIN_RPC_URL not set, payment preparation and settlement verification are disabled")
	}

	fallbackRate, _ := new(big.Rat).SetString(cfg.Oracle.FallbackRate)
	var rateSource oracle.Source
	if cfg.Oracle.Endpoint != "" {
		rateSource = oracle.NewCoinGeckoSource(&http.Client{Timeout: cfg.Oracle.Timeout}, cfg.Oracle.Endpoint)
	}
	rates := oracle.New(rateSource, redisClient, oracle.Config{
		FallbackRate: fallbackRate,
		Timeout:      cfg.Oracle.Timeout,
		CacheTTL:     cfg.Oracle.CacheTTL,
	})

	bands := make(map[string]service.PriceBand, len(cfg.Business.PriceBands))
	for category, band := range cfg.Business.PriceBands {
		bands[category] = service.PriceBand{Min: band.Min, Max: band.Max}
	}

	listingService := service.NewListingService(db, eventPublisher, service.ListingConfig{
		AutoApproveMaxAge: cfg.Business.AutoApproveMaxAge,
		PriceBands:        bands,
	})
	bookingService := service.NewBookingService(db, db, eventPublisher, cfg.Business.AbandonAfter)
	paymentService := service.NewPaymentService(db, rates, registry, service.PaymentConfig{
		Fiat:      cfg.Oracle.Fiat,
		Asset:     cfg.Oracle.Asset,
		Precision: cfg.Oracle.Precision,
	})
	reconciler := service.NewReconciler(db, db, verifier, eventPublisher)
	analyticsService := service.NewAnalyticsService(db, redisClient)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	feedConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking, cfg.Kafka.ConsumerGroup)
	feedWorker := worker.NewOrderFeedWorker(feedConsumer, redisClient)
	go func() {
		if err := feedWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Order feed worker stopped", zap.Error(err))
		}
	}()

	sweeper := worker.NewStaleBookingSweeper(cfg.Business.SweepSchedule, bookingService, redisClient)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("Failed to start sweeper", zap.Error(err))
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Listings:   listingService,
		Bookings:   bookingService,
		Payments:   paymentService,
		Reconciler: reconciler,
		Analytics:  analyticsService,
	}, api.NewTokenManager(cfg.Auth.JWTSecret), map[string]api.ReadinessCheck{
		"database": db.Ping,
		"redis":    redisClient.Ping,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	sweeper.Stop()
	if err := feedWorker.Stop(); err != nil {
		logger.Warn("Error stopping order feed worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
