package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/irancrypto/marketbot/internal/setup/config"
	"github.com/irancrypto/marketbot/pkg/utils"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrEmptyCompletion indicates the upstream returned no usable text:
// zero choices, empty content, or a truncated response with nothing to keep.
var ErrEmptyCompletion = errors.New("empty completion from AI provider")

// requestTimeout bounds every completion request.
const requestTimeout = 30 * time.Second

// Service turns prompts into finished post copy, selecting among the
// configured providers with failover. One client per provider is built
// lazily and cached for the process lifetime.
type Service struct {
	cfg       *config.AI
	clients   map[Provider]*openai.Client
	mu        sync.Mutex
	breaker   *gobreaker.CircuitBreaker
	semaphore *semaphore.Weighted
	logger    *zap.Logger
}

// NewService creates an AI content service.
func NewService(cfg *config.AI, logger *zap.Logger) *Service {
	settings := gobreaker.Settings{
		Name:        "ai_completions",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Service{
		cfg:       cfg,
		clients:   make(map[Provider]*openai.Client),
		breaker:   gobreaker.NewCircuitBreaker(settings),
		semaphore: semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:    logger.Named("ai"),
	}
}

// client returns the cached client for a provider, constructing it on first use.
func (s *Service) client(p Provider) *openai.Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client, ok := s.clients[p]; ok {
		return client
	}

	pc := ProviderConfig(s.cfg, p)

	opts := []option.RequestOption{
		option.WithAPIKey(pc.APIKey),
		option.WithRequestTimeout(requestTimeout),
		option.WithMaxRetries(0),
	}
	if pc.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(pc.BaseURL))
	}

	client := openai.NewClient(opts...)
	s.clients[p] = &client

	s.logger.Info("Created AI client", zap.String("provider", p.String()))

	return &client
}

// Generate produces finished post copy from a prompt pair. The raw
// completion is validated and passed through FormatContent. Any returned
// error means "skip this post"; callers must not treat it as cycle-fatal
// except for the configuration errors from SelectProvider.
func (s *Service) Generate(ctx context.Context, system, prompt string, opts utils.FormatOptions) (string, error) {
	provider, err := SelectProvider(s.cfg)
	if err != nil {
		return "", err
	}

	pc := ProviderConfig(s.cfg, provider)
	client := s.client(provider)

	if err := s.semaphore.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("failed to acquire semaphore: %w", err)
	}
	defer s.semaphore.Release(1)

	messages := []openai.ChatCompletionMessageParamUnion{}
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}

	messages = append(messages, openai.UserMessage(prompt))

	result, err := utils.WithRetry(ctx, func() (any, error) {
		return s.breaker.Execute(func() (any, error) {
			return client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
				Model:               openai.ChatModel(pc.Model),
				Messages:            messages,
				MaxCompletionTokens: openai.Int(s.cfg.MaxTokens),
				Temperature:         openai.Float(s.cfg.Temperature),
			})
		})
	}, utils.GetAIRetryOptions())
	if err != nil {
		s.logger.Warn("Completion request failed",
			zap.String("provider", provider.String()),
			zap.String("model", pc.Model),
			zap.Error(err))

		return "", fmt.Errorf("completion request to %s failed: %w", provider, err)
	}

	text, err := extractText(result.(*openai.ChatCompletion))
	if err != nil {
		s.logger.Warn("Completion rejected",
			zap.String("provider", provider.String()),
			zap.String("model", pc.Model),
			zap.Error(err))

		return "", err
	}

	return utils.FormatContent(text, opts), nil
}

// extractText validates the upstream response and returns its usable text.
func extractText(resp *openai.ChatCompletion) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrEmptyCompletion)
	}

	choice := resp.Choices[0]

	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty content", ErrEmptyCompletion)
	}

	// A length-truncated response without even one full word is unusable
	if choice.FinishReason == "length" && !strings.ContainsAny(text, " \n") {
		return "", fmt.Errorf("%w: truncated with no usable text", ErrEmptyCompletion)
	}

	return text, nil
}
