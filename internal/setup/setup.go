package setup

import (
	"log"

	"github.com/irancrypto/marketbot/internal/ai"
	"github.com/irancrypto/marketbot/internal/market"
	"github.com/irancrypto/marketbot/internal/platform"
	"github.com/irancrypto/marketbot/internal/platform/instagram"
	"github.com/irancrypto/marketbot/internal/platform/telegram"
	"github.com/irancrypto/marketbot/internal/platform/twitter"
	"github.com/irancrypto/marketbot/internal/poster"
	"github.com/irancrypto/marketbot/internal/redis"
	"github.com/irancrypto/marketbot/internal/render"
	"github.com/irancrypto/marketbot/internal/scheduler"
	"github.com/irancrypto/marketbot/internal/setup/config"
	"github.com/irancrypto/marketbot/internal/setup/telemetry"
	"github.com/irancrypto/marketbot/internal/store"
	"go.uber.org/zap"
)

// App bundles all core dependencies and services needed by the bot.
// Each field represents a subsystem that needs initialization and cleanup.
type App struct {
	Config       *config.Config       // Application configuration
	Logger       *zap.Logger          // Main application logger
	RedisManager *redis.Manager       // Redis connection manager
	Store        *store.Store         // Post queue and platform state
	Market       *market.Client       // Market data API client
	AI           *ai.Service          // Text generation with provider failover
	Renderer     *render.Renderer     // HTML to image renderer
	Scheduler    *scheduler.Scheduler // Daily scheduling cycle
	Poster       *poster.Poster       // Delivery cycle
}

// InitializeApp bootstraps all dependencies in order, ensuring each
// component has its requirements available before it is constructed.
func InitializeApp() (*App, error) {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging comes up first to capture setup issues
	logger, err := telemetry.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	redisManager := redis.NewManager(&cfg.Redis, logger)

	queueClient, err := redisManager.GetClient(redis.QueueDBIndex)
	if err != nil {
		return nil, err
	}

	stateClient, err := redisManager.GetClient(redis.StateDBIndex)
	if err != nil {
		return nil, err
	}

	st := store.New(queueClient, stateClient, logger)
	marketClient := market.NewClient(&cfg.Market, logger)
	aiService := ai.NewService(&cfg.AI, logger)
	renderer := render.New(&cfg.Renderer, logger)

	sched, err := scheduler.New(&cfg.Schedule, marketClient, st, logger)
	if err != nil {
		return nil, err
	}

	publishers := []platform.Publisher{
		twitter.New(&cfg.Twitter, st, logger),
		instagram.New(&cfg.Instagram, st, logger),
		telegram.New(&cfg.Telegram, logger),
	}

	post := poster.New(st, aiService, renderer, publishers,
		cfg.Schedule.MinRunSpacing, logger)

	return &App{
		Config:       cfg,
		Logger:       logger,
		RedisManager: redisManager,
		Store:        st,
		Market:       marketClient,
		AI:           aiService,
		Renderer:     renderer,
		Scheduler:    sched,
		Poster:       post,
	}, nil
}

// Cleanup shuts components down in reverse initialization order. Cleanup
// errors are logged, never fatal, so every component gets its attempt.
func (a *App) Cleanup() {
	if err := a.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	telemetry.Flush()

	// Redis goes last as other components might need it during cleanup
	a.RedisManager.Close()
}
