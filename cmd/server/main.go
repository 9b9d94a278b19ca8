package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"sim-chatter/internal/app"
	"sim-chatter/internal/auth"
	"sim-chatter/internal/cache"
	"sim-chatter/internal/config"
	"sim-chatter/internal/httpapi"
	"sim-chatter/internal/logging"
	"sim-chatter/internal/scheduler"
	"sim-chatter/internal/telegram"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
	addr := pflag.String("addr", "", "listen address, overrides HTTP_ADDR")
	reportSpec := pflag.String("report-cron", scheduler.DefaultReportSpec, "cron spec of the daily Telegram report (UTC)")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("Warning: %s not loaded: %v", *envFile, err)
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	logger, err := logging.Init(cfg)
	if err != nil {
		logger.Warn("file logging disabled", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	responses := cache.New(cfg.CacheTTL)
	sched := scheduler.New(logger)
	sched.AddSweep("response-cache", cfg.CacheSweepEvery, responses.Sweep)

	repliers := make(map[string]httpapi.Replier, len(a.Orchestrators))
	for name, o := range a.Orchestrators {
		repliers[name] = o
	}
	api := httpapi.NewServer(repliers, a.DefaultVendor, a.Personas,
		httpapi.WithRecorder(a.Recorder),
		httpapi.WithCache(responses),
		httpapi.WithAdminToken(cfg.AdminAPIToken),
		httpapi.WithLogger(logger),
	)

	botDone := make(chan struct{})
	if cfg.TelegramBotToken != "" {
		bot, err := newBot(cfg, a, logger)
		if err != nil {
			logger.Error("telegram bot disabled", "error", err)
			close(botDone)
		} else {
			sched.SetReportFunction(*reportSpec, bot.SendDailyReport)
			go func() {
				defer close(botDone)
				bot.Start(ctx)
			}()
		}
	} else {
		close(botDone)
	}

	if err := sched.Start(); err != nil {
		logger.Error("scheduler failed to start", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
	}()

	logger.Info("http server listening", "addr", cfg.HTTPAddr, "default_vendor", a.DefaultVendor)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		stop()
	}
	<-botDone
	logger.Info("shutdown complete")
}

func newBot(cfg *config.Config, a *app.App, logger *slog.Logger) (*telegram.Bot, error) {
	var repo auth.Repository
	if cfg.AllowlistFilePath != "" {
		fr, err := auth.NewFileRepository(cfg.AllowlistFilePath)
		if err != nil {
			logger.Warn("allowlist file unavailable, keeping it in memory", "error", err)
		} else {
			repo = fr
		}
	}
	authSvc, err := auth.NewWithRepo(repo, cfg.AdminUserID, cfg.AllowedUsers)
	if err != nil {
		return nil, err
	}
	return telegram.New(cfg.TelegramBotToken, authSvc, a.Default(), a.Personas, a.Recorder, logger)
}
