package twitter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/irancrypto/marketbot/internal/platform"
	"github.com/irancrypto/marketbot/internal/setup/config"
	"github.com/irancrypto/marketbot/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrNoBootstrapCredentials indicates neither a stored credential record
	// nor bootstrap tokens exist. This is a fatal configuration error.
	ErrNoBootstrapCredentials = errors.New("no Twitter credentials configured")
	// ErrRefreshFailed indicates the refresh-token grant did not yield a
	// usable token set. The publish attempt fails and retries next cycle.
	ErrRefreshFailed = errors.New("failed to refresh Twitter token")
	// ErrUnexpectedStatusCode indicates a non-2xx response from the API.
	ErrUnexpectedStatusCode = errors.New("unexpected status code from Twitter API")
)

const (
	defaultTokenURL  = "https://api.twitter.com/2/oauth2/token"
	defaultTweetURL  = "https://api.twitter.com/2/tweets"
	defaultUploadURL = "https://upload.twitter.com/1.1/media/upload.json"

	// bootstrapExpirySeconds is the conservative default lifetime assumed for
	// tokens taken straight from configuration.
	bootstrapExpirySeconds = 7200

	requestTimeout = 30 * time.Second
)

// Publisher delivers tweets, managing the OAuth2 credential lifecycle:
// bootstrap from configuration on first use, reuse while fresh, refresh on
// expiry and persist every refreshed token set.
type Publisher struct {
	cfg    *config.Twitter
	store  *store.Store
	client *http.Client
	logger *zap.Logger

	// Endpoint overrides for tests.
	tokenURL  string
	tweetURL  string
	uploadURL string

	// Process-local cache of the stored credential, invalidated on refresh.
	mu     sync.Mutex
	cached *store.CredentialRecord
}

// New creates a Twitter publisher.
func New(cfg *config.Twitter, st *store.Store, logger *zap.Logger) *Publisher {
	return &Publisher{
		cfg:       cfg,
		store:     st,
		client:    &http.Client{Timeout: requestTimeout},
		logger:    logger.Named("twitter"),
		tokenURL:  defaultTokenURL,
		tweetURL:  defaultTweetURL,
		uploadURL: defaultUploadURL,
	}
}

// Platform implements platform.Publisher.
func (p *Publisher) Platform() store.Platform {
	return store.PlatformTwitter
}

// Publish uploads any media best-effort, then posts a tweet.
func (p *Publisher) Publish(ctx context.Context, target string, content *platform.Content) error {
	token, err := p.accessToken(ctx, time.Now())
	if err != nil {
		return err
	}

	var mediaIDs []string

	for _, item := range content.Media {
		media, err := platform.ResolveMedia(ctx, p.client, item)
		if err != nil {
			// Best-effort media attachment: skip the item, keep the post
			p.logger.Warn("Skipping unavailable media item",
				zap.String("target", target),
				zap.Error(err))

			continue
		}

		id, err := p.uploadMedia(ctx, token, media)
		if err != nil {
			p.logger.Warn("Skipping media item that failed to upload",
				zap.String("target", target),
				zap.Error(err))

			continue
		}

		mediaIDs = append(mediaIDs, id)
	}

	return p.postTweet(ctx, token, content.Text, mediaIDs)
}

// accessToken returns a usable bearer token, walking the credential state
// machine: missing record -> bootstrap, stale record -> refresh.
func (p *Publisher) accessToken(ctx context.Context, now time.Time) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	record := p.cached

	if record == nil {
		stored, err := p.store.GetCredential(ctx, store.PlatformTwitter)

		switch {
		case err == nil:
			record = stored
		case errors.Is(err, store.ErrRecordNotFound):
			record, err = p.bootstrap(ctx, now)
			if err != nil {
				return "", err
			}
		default:
			return "", err
		}
	}

	if record.Fresh(now) {
		p.cached = record
		return record.AccessToken, nil
	}

	refreshed, err := p.refresh(ctx, record, now)
	if err != nil {
		p.cached = nil
		return "", err
	}

	p.cached = refreshed

	return refreshed.AccessToken, nil
}

// bootstrap persists a credential record from environment-level tokens with
// a conservative default expiry.
func (p *Publisher) bootstrap(ctx context.Context, now time.Time) (*store.CredentialRecord, error) {
	if p.cfg.AccessToken == "" || p.cfg.RefreshToken == "" {
		return nil, ErrNoBootstrapCredentials
	}

	record := &store.CredentialRecord{
		AccessToken:  p.cfg.AccessToken,
		RefreshToken: p.cfg.RefreshToken,
		ExpiresIn:    bootstrapExpirySeconds,
		SavedAt:      now.Unix(),
	}

	if err := p.store.PutCredential(ctx, store.PlatformTwitter, record); err != nil {
		return nil, err
	}

	p.logger.Info("Bootstrapped Twitter credentials from configuration")

	return record, nil
}

// refresh exchanges the refresh token for a new token set and persists it.
func (p *Publisher) refresh(ctx context.Context, record *store.CredentialRecord, now time.Time) (*store.CredentialRecord, error) {
	refreshToken := record.RefreshToken
	if refreshToken == "" {
		refreshToken = p.cfg.RefreshToken
	}

	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token available", ErrRefreshFailed)
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {p.cfg.ClientID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrRefreshFailed, resp.StatusCode, body)
	}

	var token struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}

	if err := sonic.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	if token.AccessToken == "" || token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: response missing tokens", ErrRefreshFailed)
	}

	refreshed := &store.CredentialRecord{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresIn:    token.ExpiresIn,
		SavedAt:      now.Unix(),
	}

	if err := p.store.PutCredential(ctx, store.PlatformTwitter, refreshed); err != nil {
		return nil, err
	}

	p.logger.Info("Refreshed Twitter access token",
		zap.Int64("expiresIn", token.ExpiresIn))

	return refreshed, nil
}

// uploadMedia uploads one media buffer and returns its media ID.
func (p *Publisher) uploadMedia(ctx context.Context, token string, media *platform.Media) (string, error) {
	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("media", "media")
	if err != nil {
		return "", err
	}

	if _, err := part.Write(media.Data); err != nil {
		return "", err
	}

	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.uploadURL, &body)
	if err != nil {
		return "", err
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %d: %s", ErrUnexpectedStatusCode, resp.StatusCode, respBody)
	}

	var result struct {
		MediaIDString string `json:"media_id_string"`
	}

	if err := sonic.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}

	return result.MediaIDString, nil
}

// postTweet creates the tweet via the v2 API.
func (p *Publisher) postTweet(ctx context.Context, token, text string, mediaIDs []string) error {
	payload := map[string]any{"text": text}
	if len(mediaIDs) > 0 {
		payload["media"] = map[string]any{"media_ids": mediaIDs}
	}

	body, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal tweet: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tweetURL, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d: %s", ErrUnexpectedStatusCode, resp.StatusCode, respBody)
	}

	p.logger.Info("Posted tweet", zap.Int("mediaCount", len(mediaIDs)))

	return nil
}
