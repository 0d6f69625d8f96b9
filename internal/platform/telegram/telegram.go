package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/irancrypto/marketbot/internal/platform"
	"github.com/irancrypto/marketbot/internal/setup/config"
	"github.com/irancrypto/marketbot/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrNoBotConfigured indicates the bot token or chat ID is missing.
	ErrNoBotConfigured = errors.New("no Telegram bot configured")
	// ErrNoMedia indicates the content carries nothing to send.
	ErrNoMedia = errors.New("Telegram post requires a media item")
	// ErrSendFailed indicates the Bot API rejected the request.
	ErrSendFailed = errors.New("Telegram sendPhoto failed")
)

const (
	defaultAPIBase = "https://api.telegram.org"

	requestTimeout = 60 * time.Second
)

// Publisher delivers photo posts through the Telegram Bot API.
type Publisher struct {
	cfg    *config.Telegram
	client *http.Client
	logger *zap.Logger

	// Endpoint override for tests.
	apiBase string
}

// New creates a Telegram publisher.
func New(cfg *config.Telegram, logger *zap.Logger) *Publisher {
	return &Publisher{
		cfg:     cfg,
		client:  &http.Client{Timeout: requestTimeout},
		logger:  logger.Named("telegram"),
		apiBase: defaultAPIBase,
	}
}

// Platform implements platform.Publisher.
func (p *Publisher) Platform() store.Platform {
	return store.PlatformTelegram
}

// Publish sends the first media item via sendPhoto with the content text as
// caption.
func (p *Publisher) Publish(ctx context.Context, target string, content *platform.Content) error {
	if p.cfg.BotToken == "" || p.cfg.ChatID == "" {
		return ErrNoBotConfigured
	}

	if len(content.Media) == 0 {
		return ErrNoMedia
	}

	media, err := platform.ResolveMedia(ctx, p.client, content.Media[0])
	if err != nil {
		return err
	}

	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("chat_id", p.cfg.ChatID); err != nil {
		return err
	}

	if err := writer.WriteField("caption", content.Text); err != nil {
		return err
	}

	part, err := writer.CreateFormFile("photo", "post.jpg")
	if err != nil {
		return err
	}

	if _, err := part.Write(media.Data); err != nil {
		return err
	}

	if err := writer.Close(); err != nil {
		return err
	}

	sendURL := fmt.Sprintf("%s/bot%s/sendPhoto", p.apiBase, p.cfg.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendURL, &body)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}

	if err := sonic.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("%w: status %d", ErrSendFailed, resp.StatusCode)
	}

	if !result.OK {
		return fmt.Errorf("%w: %s", ErrSendFailed, result.Description)
	}

	p.logger.Info("Sent Telegram photo", zap.String("target", target))

	return nil
}
