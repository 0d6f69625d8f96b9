package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/irancrypto/marketbot/internal/setup/config"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
	"go.uber.org/zap"
)

var ErrEmptyRender = errors.New("renderer produced no output")

const (
	// renderTimeout bounds one full render including browser startup.
	renderTimeout = 90 * time.Second

	// viewportWidth and viewportHeight give square post images that every
	// target platform accepts.
	viewportWidth  = 1080
	viewportHeight = 1080

	// jpegQuality for the captured screenshot.
	jpegQuality = 90
)

// Renderer turns a template name plus structured data into a JPEG image by
// screenshotting the rendered HTML in a transient headless browser. One
// browser per call keeps the resource footprint low between posts.
type Renderer struct {
	templatesDir string
	headless     bool
	minifier     *minify.M
	logger       *zap.Logger
}

// New creates a renderer reading templates from the configured directory.
func New(cfg *config.Renderer, logger *zap.Logger) *Renderer {
	m := minify.New()
	m.AddFunc("text/html", html.Minify)

	return &Renderer{
		templatesDir: cfg.TemplatesDir,
		headless:     cfg.Headless,
		minifier:     m,
		logger:       logger.Named("render"),
	}
}

// Render executes the named template with data and screenshots the result.
func (r *Renderer) Render(ctx context.Context, templateName string, data any) ([]byte, error) {
	page, err := r.renderHTML(templateName, data)
	if err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", r.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	browserCtx, timeoutCancel := context.WithTimeout(browserCtx, renderTimeout)
	defer timeoutCancel()

	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString(page)

	var shot []byte
	if err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(viewportWidth, viewportHeight),
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.FullScreenshot(&shot, jpegQuality),
	); err != nil {
		return nil, fmt.Errorf("failed to capture template %s: %w", templateName, err)
	}

	if len(shot) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyRender, templateName)
	}

	r.logger.Debug("Rendered template",
		zap.String("template", templateName),
		zap.Int("bytes", len(shot)))

	return shot, nil
}

// renderHTML executes and minifies the named template.
func (r *Renderer) renderHTML(templateName string, data any) ([]byte, error) {
	path := filepath.Join(r.templatesDir, templateName+".html")

	tpl, err := template.ParseFiles(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", templateName, err)
	}

	var rendered bytes.Buffer
	if err := tpl.Execute(&rendered, data); err != nil {
		return nil, fmt.Errorf("failed to execute template %s: %w", templateName, err)
	}

	raw := rendered.Bytes()

	var minified bytes.Buffer
	if err := r.minifier.Minify("text/html", &minified, bytes.NewReader(raw)); err != nil {
		// Minification is an optimization, not a requirement
		r.logger.Warn("Failed to minify template, using raw HTML",
			zap.String("template", templateName),
			zap.Error(err))

		return raw, nil
	}

	return minified.Bytes(), nil
}
