package poster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/irancrypto/marketbot/internal/content"
	"github.com/irancrypto/marketbot/internal/platform"
	"github.com/irancrypto/marketbot/internal/store"
	"github.com/irancrypto/marketbot/pkg/utils"
	"go.uber.org/zap"
)

// JobName is the logical job name used for logging and run markers.
const JobName = "deliver"

var (
	// ErrNoPublisher indicates a scheduled post targets a platform with no
	// registered publisher.
	ErrNoPublisher = errors.New("no publisher registered for platform")
	// ErrDeliveryPanic indicates a publisher panicked while delivering.
	ErrDeliveryPanic = errors.New("delivery panicked")
)

// Caption limits per platform. Twitter counts the whole post, Telegram
// limits the photo caption.
const (
	twitterMaxLength   = 280
	instagramMaxLength = 2200
	telegramMaxLength  = 1024
)

// Generator produces post text from a system instruction and a prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string, opts utils.FormatOptions) (string, error)
}

// Renderer turns a named template plus data into an image.
type Renderer interface {
	Render(ctx context.Context, templateName string, data any) ([]byte, error)
}

// Poster drains due scheduled posts, materializes their content and hands
// them to the per-platform publishers. Failed entries stay queued for the
// next cycle.
type Poster struct {
	store      *store.Store
	generator  Generator
	renderer   Renderer
	publishers map[store.Platform]platform.Publisher
	minSpacing time.Duration
	logger     *zap.Logger
}

// New creates a poster over the given publishers.
func New(
	st *store.Store,
	generator Generator,
	renderer Renderer,
	publishers []platform.Publisher,
	minSpacingMinutes int,
	logger *zap.Logger,
) *Poster {
	byPlatform := make(map[store.Platform]platform.Publisher, len(publishers))
	for _, p := range publishers {
		byPlatform[p.Platform()] = p
	}

	return &Poster{
		store:      st,
		generator:  generator,
		renderer:   renderer,
		publishers: byPlatform,
		minSpacing: time.Duration(minSpacingMinutes) * time.Minute,
		logger:     logger.Named("poster"),
	}
}

// RunDeliveryCycle delivers every due post. Cycles closer together than the
// minimum spacing are skipped so overlapping triggers cannot double-post.
// Each entry is handled independently; a failing entry is logged, left in
// the queue and never blocks its siblings.
func (p *Poster) RunDeliveryCycle(ctx context.Context, now time.Time) error {
	runID := uuid.New().String()
	logger := p.logger.With(
		zap.String("job", JobName),
		zap.String("runId", runID))

	marker, err := p.store.GetMarker(ctx, JobName)
	if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
		return fmt.Errorf("failed to load run marker: %w", err)
	}

	if marker != nil {
		elapsed := now.Sub(time.Unix(marker.LastRun, 0))
		if elapsed < p.minSpacing {
			logger.Info("Skipping delivery cycle, ran too recently",
				zap.Duration("elapsed", elapsed),
				zap.Duration("minSpacing", p.minSpacing))

			return nil
		}
	}

	if err := p.store.PutMarker(ctx, JobName, now); err != nil {
		return fmt.Errorf("failed to write run marker: %w", err)
	}

	due, err := p.store.DuePosts(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to scan due posts: %w", err)
	}

	logger.Info("Starting delivery cycle", zap.Int("duePosts", len(due)))

	var delivered, failed int

	for _, post := range due {
		entryLogger := logger.With(
			zap.String("platform", string(post.Platform)),
			zap.String("target", post.Target))

		if err := p.deliverSafe(ctx, post); err != nil {
			// Entry stays queued for the next cycle
			entryLogger.Error("Failed to deliver post", zap.Error(err))
			failed++

			continue
		}

		if err := p.store.DeletePost(ctx, post.ID); err != nil {
			entryLogger.Error("Failed to dequeue delivered post", zap.Error(err))
		}

		entryLogger.Info("Delivered post")
		delivered++
	}

	logger.Info("Delivery cycle finished",
		zap.Int("delivered", delivered),
		zap.Int("failed", failed))

	return nil
}

// deliverSafe runs deliver with a recover guard so a panicking publisher
// only loses its own entry.
func (p *Poster) deliverSafe(ctx context.Context, post *store.ScheduledPost) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrDeliveryPanic, r)
		}
	}()

	return p.deliver(ctx, post)
}

// deliver materializes one post and publishes it.
func (p *Poster) deliver(ctx context.Context, post *store.ScheduledPost) error {
	publisher, ok := p.publishers[post.Platform]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPublisher, post.Platform)
	}

	payload, err := content.UnmarshalPayload(post.Payload)
	if err != nil {
		return err
	}

	text, err := p.generator.Generate(ctx,
		content.SystemPrompt,
		content.Prompt(post.Target, payload),
		formatOptions(post.Platform))
	if err != nil {
		return fmt.Errorf("failed to generate text: %w", err)
	}

	body := &platform.Content{Text: text}

	if templateName := content.Template(post.Target); templateName != "" {
		image, err := p.renderer.Render(ctx, templateName, content.TemplateData(post.Target, payload))
		if err != nil {
			return fmt.Errorf("failed to render image: %w", err)
		}

		body.Media = []platform.MediaItem{{Data: image}}
	}

	return publisher.Publish(ctx, post.Target, body)
}

// formatOptions returns the text shaping rules for a platform.
func formatOptions(p store.Platform) utils.FormatOptions {
	switch p {
	case store.PlatformTwitter:
		return utils.FormatOptions{
			MaxLength:          twitterMaxLength,
			FirstParagraphOnly: true,
			SeparateHashtags:   true,
		}
	case store.PlatformInstagram:
		return utils.FormatOptions{
			MaxLength:        instagramMaxLength,
			SeparateHashtags: true,
		}
	case store.PlatformTelegram:
		return utils.FormatOptions{
			MaxLength: telegramMaxLength,
		}
	default:
		return utils.FormatOptions{}
	}
}
