// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-sms-market/internal/config"
	"telegram-sms-market/internal/domain/model"
	pg "telegram-sms-market/internal/infra/db/postgres"
	"telegram-sms-market/internal/infra/httpapi"
	"telegram-sms-market/internal/infra/logging"
	"telegram-sms-market/internal/infra/metrics"
	"telegram-sms-market/internal/infra/payment"
	"telegram-sms-market/internal/infra/providers"
	red "telegram-sms-market/internal/infra/redis"
	"telegram-sms-market/internal/infra/sched"
	tele "telegram-sms-market/internal/infra/telegram"
	"telegram-sms-market/internal/infra/worker"
	"telegram-sms-market/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, verbose)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logging ----
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Telegram.AlertToken != "" && cfg.Telegram.AlertChatID != 0 {
		hook, err := tele.NewAlertHook(cfg.Telegram.AlertToken, cfg.Telegram.AlertChatID)
		if err != nil {
			logger.Warn().Err(err).Msg("alert hook disabled")
		} else {
			hooked := logger.Hook(hook)
			logger = &hooked
		}
	}

	// ---- Metrics ----
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	accountRepo := pg.NewAccountRepo(pool)
	activationRepo := pg.NewActivationRepo(pool)
	paymentRepo := pg.NewPaymentRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Vendors ----
	registry, provs, err := providers.FromConfig(cfg.Providers)
	if err != nil {
		logger.Fatal().Err(err).Msg("providers")
	}
	for _, p := range provs {
		logger.Info().Str("provider", p.Name()).Strs("services", p.Services()).Msg("vendor configured")
	}
	gateway := payment.NewCheckoutGateway(cfg.Payment)

	// ---- Notifications ----
	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram bot")
	}
	notifyPool := worker.NewPool(4, logger)
	notifyPool.Start(ctx)
	defer notifyPool.Stop()
	sink := worker.NewAsyncSink(notifyPool, tele.NewNotifier(bot, logger), logger)

	// ---- Use cases ----
	ledgerUC := usecase.NewLedgerUseCase(accountRepo, activationRepo, tm, logger)
	pricingUC := usecase.NewPricingUseCase(logger)
	lifecycle := usecase.NewLifecycleManager(registry, activationRepo, ledgerUC, sink, usecase.LifecycleConfig{
		PollInterval: cfg.Market.PollInterval,
		Timeout:      cfg.Market.Timeout,
		CancelGrace:  cfg.Market.CancelGrace,
	}, logger)
	purchaseUC := usecase.NewPurchaseUseCase(registry, accountRepo, pricingUC, ledgerUC, lifecycle, sink, rateLimiter, usecase.PurchaseConfig{
		AcquireAttempts: cfg.Market.AcquireAttempts,
		PriceStep:       cfg.Market.PriceStep,
		RateLimit:       cfg.Market.RateLimit,
		RateWindow:      cfg.Market.RateWindow,
		Rules:           selectionRules(cfg.Providers),
	}, logger)
	accountUC := usecase.NewAccountUseCase(accountRepo, activationRepo, logger)
	paymentUC := usecase.NewPaymentUseCase(paymentRepo, accountRepo, ledgerUC, gateway, tm, sink, locker, cfg.Market.ReferralPercent, logger)

	// ---- Background workers ----
	go func() {
		if err := lifecycle.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("lifecycle manager stopped")
		}
	}()
	recovery := sched.NewRecoveryWorker(activationRepo, lifecycle, cfg.Scheduler.RecoveryInterval, logger)
	go recovery.Start(ctx)

	// ---- HTTP ----
	server := httpapi.NewServer(cfg.HTTP.Port, paymentUC, purchaseUC, lifecycle, accountUC, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
}

func selectionRules(provs []config.ProviderConfig) map[string]model.SelectionRule {
	rules := make(map[string]model.SelectionRule, len(provs))
	for _, p := range provs {
		strategy := model.SelectCheapest
		if p.Rule.Strategy == "nearest_from_above" {
			strategy = model.SelectNearestFromAbove
		}
		rules[p.Name] = model.SelectionRule{
			Strategy:           strategy,
			PriceCap:           p.Rule.PriceCap,
			MinAvailable:       p.Rule.MinAvailable,
			SecondaryCap:       p.Rule.SecondaryCap,
			StrictMinAvailable: p.Rule.StrictMinAvailable,
		}
	}
	return rules
}
