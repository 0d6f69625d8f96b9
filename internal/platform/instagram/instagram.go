package instagram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/irancrypto/marketbot/internal/platform"
	"github.com/irancrypto/marketbot/internal/setup/config"
	"github.com/irancrypto/marketbot/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrNoAccountConfigured indicates username/password are missing.
	ErrNoAccountConfigured = errors.New("no Instagram account configured")
	// ErrLoginFailed indicates the session could not be established.
	ErrLoginFailed = errors.New("Instagram login failed")
	// ErrNoMedia indicates the content carries nothing to publish.
	ErrNoMedia = errors.New("Instagram post requires a media item")
	// ErrUnexpectedStatusCode indicates a non-2xx API response.
	ErrUnexpectedStatusCode = errors.New("unexpected status code from Instagram API")
)

const (
	defaultAPIBase = "https://i.instagram.com/api/v1"
	defaultWebBase = "https://www.instagram.com"

	// sessionMaxAge forces a re-login for blobs older than this.
	sessionMaxAge = 30 * 24 * time.Hour

	requestTimeout = 60 * time.Second
)

// session is the persisted login state, stored as an opaque blob in the
// queue store and reused across invocations until it goes stale.
type session struct {
	Cookies   map[string]string `json:"cookies"`
	CSRFToken string            `json:"csrfToken"`
	SavedAt   int64             `json:"savedAt"`
}

// Publisher delivers photo posts through the session-based API, falling back
// to the web share API when the direct path is rejected (checkpoint bypass).
type Publisher struct {
	cfg    *config.Instagram
	store  *store.Store
	client *http.Client
	logger *zap.Logger

	// Endpoint overrides for tests.
	apiBase string
	webBase string
}

// New creates an Instagram publisher.
func New(cfg *config.Instagram, st *store.Store, logger *zap.Logger) *Publisher {
	return &Publisher{
		cfg:     cfg,
		store:   st,
		client:  &http.Client{Timeout: requestTimeout},
		logger:  logger.Named("instagram"),
		apiBase: defaultAPIBase,
		webBase: defaultWebBase,
	}
}

// Platform implements platform.Publisher.
func (p *Publisher) Platform() store.Platform {
	return store.PlatformInstagram
}

// Publish uploads the first media item as a photo post with the content text
// as caption. Delivery strategies are tried in order: the direct publish
// API, then the web share API.
func (p *Publisher) Publish(ctx context.Context, target string, content *platform.Content) error {
	if len(content.Media) == 0 {
		return ErrNoMedia
	}

	media, err := platform.ResolveMedia(ctx, p.client, content.Media[0])
	if err != nil {
		return err
	}

	sess, err := p.ensureSession(ctx)
	if err != nil {
		return err
	}

	return platform.TryStrategies(ctx, p.logger, []platform.Strategy{
		{
			Name: "direct_publish",
			Run: func(ctx context.Context) error {
				return p.publishDirect(ctx, sess, media, content.Text)
			},
		},
		{
			Name: "web_share",
			Run: func(ctx context.Context) error {
				return p.publishWebShare(ctx, sess, media, content.Text)
			},
		},
	})
}

// ensureSession loads the persisted session blob, logging in again when it
// is missing or stale.
func (p *Publisher) ensureSession(ctx context.Context) (*session, error) {
	blob, err := p.store.GetSession(ctx, store.PlatformInstagram)
	if err == nil {
		var sess session
		if err := sonic.Unmarshal([]byte(blob), &sess); err == nil {
			age := time.Since(time.Unix(sess.SavedAt, 0))
			if age < sessionMaxAge {
				return &sess, nil
			}

			p.logger.Info("Stored Instagram session is stale, logging in again",
				zap.Duration("age", age))
		}
	} else if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	return p.login(ctx)
}

// login establishes a fresh session and persists it.
func (p *Publisher) login(ctx context.Context) (*session, error) {
	if p.cfg.Username == "" || p.cfg.Password == "" {
		return nil, ErrNoAccountConfigured
	}

	form := url.Values{
		"username": {p.cfg.Username},
		"password": {p.cfg.Password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiBase+"/accounts/login/", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrLoginFailed, resp.StatusCode)
	}

	sess := &session{
		Cookies: make(map[string]string),
		SavedAt: time.Now().Unix(),
	}

	for _, cookie := range resp.Cookies() {
		sess.Cookies[cookie.Name] = cookie.Value
		if cookie.Name == "csrftoken" {
			sess.CSRFToken = cookie.Value
		}
	}

	blob, err := sonic.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	if err := p.store.PutSession(ctx, store.PlatformInstagram, string(blob)); err != nil {
		return nil, err
	}

	p.logger.Info("Established new Instagram session")

	return sess, nil
}

// publishDirect uploads the photo and configures the post via the private API.
func (p *Publisher) publishDirect(ctx context.Context, sess *session, media *platform.Media, caption string) error {
	uploadID := strconv.FormatInt(time.Now().UnixMilli(), 10)

	// Stage the photo bytes
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiBase+"/rupload_igphoto/"+uploadID, bytes.NewReader(media.Data))
	if err != nil {
		return err
	}

	p.applySession(req, sess)
	req.Header.Set("Content-Type", media.MIME)
	req.Header.Set("X-Entity-Length", strconv.Itoa(len(media.Data)))

	if err := p.do(req); err != nil {
		return fmt.Errorf("photo upload failed: %w", err)
	}

	// Configure the uploaded photo into a feed post
	form := url.Values{
		"upload_id": {uploadID},
		"caption":   {caption},
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiBase+"/media/configure/", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}

	p.applySession(req, sess)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if err := p.do(req); err != nil {
		return fmt.Errorf("configure failed: %w", err)
	}

	p.logger.Info("Published Instagram photo", zap.String("uploadId", uploadID))

	return nil
}

// publishWebShare posts through the web share API, which bypasses some
// checkpoint challenges the private API triggers. The photo goes through
// the web uploader first, then the configure call turns it into a post.
func (p *Publisher) publishWebShare(ctx context.Context, sess *session, media *platform.Media, caption string) error {
	uploadID := "fb_uploader_" + strconv.FormatInt(time.Now().UnixMilli(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.webBase+"/rupload_igphoto/"+uploadID, bytes.NewReader(media.Data))
	if err != nil {
		return err
	}

	p.applySession(req, sess)
	req.Header.Set("Content-Type", media.MIME)
	req.Header.Set("X-Entity-Name", uploadID)
	req.Header.Set("X-Entity-Length", strconv.Itoa(len(media.Data)))
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	if err := p.do(req); err != nil {
		return fmt.Errorf("web photo upload failed: %w", err)
	}

	form := url.Values{
		"upload_id": {uploadID},
		"caption":   {caption},
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodPost,
		p.webBase+"/create/configure/", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}

	p.applySession(req, sess)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	if err := p.do(req); err != nil {
		return fmt.Errorf("web share failed: %w", err)
	}

	p.logger.Info("Published Instagram photo via web share API",
		zap.String("uploadId", uploadID))

	return nil
}

// applySession attaches the persisted cookies and CSRF token to a request.
func (p *Publisher) applySession(req *http.Request, sess *session) {
	for name, value := range sess.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	if sess.CSRFToken != "" {
		req.Header.Set("X-CSRFToken", sess.CSRFToken)
	}
}

// do executes a request and maps non-2xx responses to errors.
func (p *Publisher) do(req *http.Request) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d: %s", ErrUnexpectedStatusCode, resp.StatusCode, body)
	}

	return nil
}
