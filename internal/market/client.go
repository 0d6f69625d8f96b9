package market

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/irancrypto/marketbot/internal/setup/config"
	"github.com/irancrypto/marketbot/pkg/utils"
	"go.uber.org/zap"
)

var (
	ErrMissingAPIKey        = errors.New("market API key is not configured")
	ErrUnexpectedStatusCode = errors.New("unexpected status code from market API")
)

// requestTimeout bounds every market data call.
const requestTimeout = 10 * time.Second

// RecapKind selects the statistic family of a recap request.
type RecapKind string

const (
	RecapCoin     RecapKind = "coin"
	RecapExchange RecapKind = "exchange"
)

// RecapInterval selects the trailing period of a recap request.
type RecapInterval string

const (
	IntervalDaily   RecapInterval = "daily"
	IntervalWeekly  RecapInterval = "weekly"
	IntervalMonthly RecapInterval = "monthly"
)

// Coin is one ranked entry of a coin statistic.
type Coin struct {
	Name     string  `json:"name"`
	NameFa   string  `json:"nameFa"`
	Symbol   string  `json:"symbol"`
	Volume   float64 `json:"volume"`
	PriceUSD float64 `json:"priceUsd"`
}

// Exchange is one ranked entry of an exchange statistic.
type Exchange struct {
	Name   string  `json:"name"`
	NameFa string  `json:"nameFa"`
	Volume float64 `json:"volume"`
}

// Client fetches ranked coin and exchange statistics over HTTPS.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient creates a market data client.
func NewClient(cfg *config.Market, logger *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: requestTimeout},
		logger:  logger.Named("market"),
	}
}

// Popular returns the most traded coins ranked by volume.
func (c *Client) Popular(ctx context.Context, limit int) ([]Coin, error) {
	var coins []Coin
	if err := c.get(ctx, "/popular", url.Values{"limit": {strconv.Itoa(limit)}}, &coins); err != nil {
		return nil, err
	}

	return coins, nil
}

// Exchanges returns exchanges ranked by traded volume.
func (c *Client) Exchanges(ctx context.Context, limit int) ([]Exchange, error) {
	var exchanges []Exchange
	if err := c.get(ctx, "/exchanges", url.Values{"limit": {strconv.Itoa(limit)}}, &exchanges); err != nil {
		return nil, err
	}

	return exchanges, nil
}

// CoinRecap returns the aggregated coin statistics over a trailing period.
func (c *Client) CoinRecap(ctx context.Context, interval RecapInterval, limit int) ([]Coin, error) {
	var coins []Coin
	if err := c.get(ctx, "/recap", recapQuery(RecapCoin, interval, limit), &coins); err != nil {
		return nil, err
	}

	return coins, nil
}

// ExchangeRecap returns the aggregated exchange statistics over a trailing period.
func (c *Client) ExchangeRecap(ctx context.Context, interval RecapInterval, limit int) ([]Exchange, error) {
	var exchanges []Exchange
	if err := c.get(ctx, "/recap", recapQuery(RecapExchange, interval, limit), &exchanges); err != nil {
		return nil, err
	}

	return exchanges, nil
}

func recapQuery(kind RecapKind, interval RecapInterval, limit int) url.Values {
	return url.Values{
		"type":     {string(kind)},
		"interval": {string(interval)},
		"limit":    {strconv.Itoa(limit)},
	}
}

// get performs an authenticated GET with retries and decodes the response.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}

	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	body, err := utils.WithRetry(ctx, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: %d for %s", ErrUnexpectedStatusCode, resp.StatusCode, path)
		}

		return io.ReadAll(resp.Body)
	}, utils.GetMarketRetryOptions())
	if err != nil {
		c.logger.Warn("Market data request failed",
			zap.String("path", path),
			zap.Error(err))

		return err
	}

	if err := sonic.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response for %s: %w", path, err)
	}

	return nil
}
