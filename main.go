package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sellflow/bot"
	"sellflow/config"
	"sellflow/exchange"
	"sellflow/logger"
	"sellflow/notifier"
	"sellflow/scheduler"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Sellflow.Name,
		"version": cfg.Sellflow.Version,
	}).Info("starting sellflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.InitCloudWatch("", cfg.Sellflow.Name, cfg.Logging.DashboardName)
	if strings.ToLower(cfg.Logging.Level) == "debug" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	creds := exchange.Credentials{Key: cfg.Exchange.APIKey, Secret: cfg.Exchange.APISecret}
	if !creds.Configured() {
		log.Warn("no API credentials configured; private endpoints will fail")
	}

	transport := scheduler.NewHTTPTransport(cfg.Poller)
	signer := exchange.NewSigner(creds)
	clock := scheduler.NewClock()

	poller := scheduler.NewPoller(cfg.Poller, cfg.Exchange.BaseURL, transport, signer, clock)

	display := bot.NewDisplay()
	engine, err := bot.NewEngine(cfg.Trading, poller, display)
	if err != nil {
		log.WithError(err).Error("failed to create trading engine")
		os.Exit(1)
	}

	var marketNotifier *notifier.Notifier
	if cfg.Notifier.Enabled {
		marketNotifier = notifier.New(cfg.Notifier, cfg.Exchange.BaseURL, transport, clock, nil)
	}

	if err := engine.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start trading engine")
		os.Exit(1)
	}
	if err := poller.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start poller")
		os.Exit(1)
	}
	if marketNotifier != nil {
		if err := marketNotifier.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start notifier")
			os.Exit(1)
		}
	}

	if cfg.Trading.Market != "" {
		if err := engine.SelectMarket(cfg.Trading.Market); err != nil {
			log.WithError(err).Error("failed to select configured market")
			os.Exit(1)
		}
		if cfg.Trading.AutoStart {
			if err := engine.ToggleTrading(); err != nil {
				log.WithError(err).Error("failed to start trading")
				os.Exit(1)
			}
		}
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")

	if marketNotifier != nil {
		log.Info("stopping notifier")
		marketNotifier.Stop()
	}

	log.Info("stopping trading engine")
	engine.Stop()

	log.Info("stopping poller")
	poller.Stop()

	cancel()
	log.Info("sellflow stopped")
}
