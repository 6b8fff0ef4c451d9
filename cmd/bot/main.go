package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ohmynofan/blum-farming-bot/internal/app"
	"github.com/ohmynofan/blum-farming-bot/internal/config"
	"github.com/ohmynofan/blum-farming-bot/internal/platform/logger"
	"github.com/ohmynofan/blum-farming-bot/internal/platform/ui"
)

func main() {
	_ = logger.Init("logs/app.log")
	defer logger.Close()

	cfg := config.Load()

	if err := cfg.Validate(); err != nil {
		print(err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui.StartUISystem()
	err := app.New(cfg).Run(ctx)
	ui.StopUISystem()

	if err != nil {
		print(err.Error() + "\n")
		logger.Close()
		os.Exit(1)
	}

	time.Sleep(1 * time.Second)
}
