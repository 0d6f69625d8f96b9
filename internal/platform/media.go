package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/irancrypto/marketbot/pkg/utils"
)

// ErrMediaUnavailable indicates a media item could not be read or fetched.
var ErrMediaUnavailable = errors.New("media item unavailable")

// maxMediaBytes caps a single attachment read into memory.
const maxMediaBytes = 8 << 20

// Media is a resolved attachment ready for platform upload.
type Media struct {
	Data []byte
	MIME string
}

// ResolveMedia reads a media item into memory and sniffs its content type.
// Remote URLs are fetched with the given client, local paths read directly.
func ResolveMedia(ctx context.Context, client *http.Client, item MediaItem) (*Media, error) {
	data := item.Data

	if data == nil {
		var err error

		if strings.HasPrefix(item.Source, "http://") || strings.HasPrefix(item.Source, "https://") {
			data, err = fetchRemote(ctx, client, item.Source)
		} else {
			data, err = os.ReadFile(item.Source)
		}

		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMediaUnavailable, item.Source, err)
		}
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrMediaUnavailable)
	}

	return &Media{
		Data: data,
		MIME: mimetype.Detect(data).String(),
	}, nil
}

func fetchRemote(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	return utils.WithRetry(ctx, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}

		return io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	}, utils.GetMediaRetryOptions())
}
