package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/irancrypto/marketbot/internal/setup"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "marketbot",
		Usage: "Crypto market social media bot",
		Commands: []*cli.Command{
			{
				Name:  "schedule",
				Usage: "Run one daily scheduling cycle and exit",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return withApp(func(a *setup.App) error {
						return a.Scheduler.RunDailyCycle(ctx, time.Now())
					})
				},
			},
			{
				Name:  "deliver",
				Usage: "Run one delivery cycle and exit",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return withApp(func(a *setup.App) error {
						return a.Poster.RunDeliveryCycle(ctx, time.Now())
					})
				},
			},
			{
				Name:  "run",
				Usage: "Run both cycles on their schedules until interrupted",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return withApp(func(a *setup.App) error {
						return runDaemon(ctx, a)
					})
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// withApp initializes the application, runs fn and cleans up.
func withApp(fn func(a *setup.App) error) error {
	app, err := setup.InitializeApp()
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup()

	return fn(app)
}

// runDaemon schedules the daily cycle at the configured post hour and the
// delivery cycle every hour, then blocks until an interrupt arrives.
func runDaemon(ctx context.Context, app *setup.App) error {
	location, err := time.LoadLocation(app.Config.Schedule.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	c := cron.New(cron.WithLocation(location))

	dailySpec := fmt.Sprintf("0 %d * * *", app.Config.Schedule.PostHour)
	if _, err := c.AddFunc(dailySpec, func() {
		if err := app.Scheduler.RunDailyCycle(ctx, time.Now()); err != nil {
			app.Logger.Error("Daily scheduling cycle failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to register scheduling job: %w", err)
	}

	if _, err := c.AddFunc("@hourly", func() {
		if err := app.Poster.RunDeliveryCycle(ctx, time.Now()); err != nil {
			app.Logger.Error("Delivery cycle failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to register delivery job: %w", err)
	}

	c.Start()
	defer c.Stop()

	app.Logger.Info("Bot started, waiting for interrupt signal",
		zap.String("dailySpec", dailySpec),
		zap.String("timezone", app.Config.Schedule.Timezone))

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	select {
	case <-sc:
	case <-ctx.Done():
	}

	return nil
}
