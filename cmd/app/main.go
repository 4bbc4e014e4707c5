package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bmosoluciones/now-lms-payments/internal/config"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/ports/adapter"
	"github.com/bmosoluciones/now-lms-payments/internal/infra/api"
	pg "github.com/bmosoluciones/now-lms-payments/internal/infra/db/postgres"
	"github.com/bmosoluciones/now-lms-payments/internal/infra/logging"
	"github.com/bmosoluciones/now-lms-payments/internal/infra/metrics"
	payAdapters "github.com/bmosoluciones/now-lms-payments/internal/infra/payment"
	red "github.com/bmosoluciones/now-lms-payments/internal/infra/redis"
	"github.com/bmosoluciones/now-lms-payments/internal/infra/sched"
	"github.com/bmosoluciones/now-lms-payments/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop gateway, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	txManager := pg.NewTxManager(pool)
	paymentRepo := pg.NewPaymentRepo(pool)
	courseRepo := pg.NewCourseRepoCacheDecorator(pg.NewCourseRepo(pool), redisClient, cfg.Redis.TTL)
	couponRepo := pg.NewCouponRepo(pool)
	enrollmentRepo := pg.NewEnrollmentRepo(pool)
	progressIndex := pg.NewProgressIndex(pool)

	// ---- Payment gateway ----
	var gateway adapter.PaymentGateway
	if cfg.Runtime.Dev && cfg.Payment.PayPal.ClientID == "" {
		gateway = payAdapters.NewNoopGateway()
		logger.Warn().Msg("payment gateway: noop (dev mode, no paypal credentials)")
	} else {
		gateway = payAdapters.NewPayPalGateway(cfg.Payment.PayPal.ClientID, cfg.Payment.PayPal.Secret, cfg.Payment.PayPal.Sandbox)
		logger.Info().Bool("sandbox", cfg.Payment.PayPal.Sandbox).Msg("payment gateway: paypal")
	}

	// ---- Use cases ----
	pricingUC := usecase.NewPricingUseCase(couponRepo, logger)
	entitlementUC := usecase.NewEntitlementUseCase(courseRepo, enrollmentRepo, logger)
	grantUC := usecase.NewGrantUseCase(enrollmentRepo, progressIndex, logger)
	checkoutUC := usecase.NewCheckoutUseCase(entitlementUC, pricingUC, paymentRepo, couponRepo, grantUC, gateway, txManager, locker, logger)
	confirmUC := usecase.NewConfirmUseCase(paymentRepo, courseRepo, couponRepo, pricingUC, grantUC, gateway, txManager, cfg.Payment.VerifyTimeout, logger)
	statsUC := usecase.NewStatsUseCase(paymentRepo, enrollmentRepo, logger)

	// ---- HTTP server ----
	srv := api.NewServer(checkoutUC, confirmUC, statsUC, cfg.Server.AdminAPIKey, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server")
		}
	}()

	// ---- Payment reconciler ----
	reconciler := sched.NewPaymentReconciler(confirmUC, paymentRepo, cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, logger)
	go reconciler.Start(ctx)

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
