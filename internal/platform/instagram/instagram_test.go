package instagram

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/irancrypto/marketbot/internal/platform"
	"github.com/irancrypto/marketbot/internal/setup/config"
	"github.com/irancrypto/marketbot/internal/store"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAPI struct {
	loginCalls     int32
	directCalls    int32
	webShareCalls  int32
	directStatus   int
	webShareStatus int

	mu            sync.Mutex
	webUploadBody []byte
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		directStatus:   http.StatusOK,
		webShareStatus: http.StatusOK,
	}
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/accounts/login/", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&f.loginCalls, 1)
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "sess"})
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "csrf"})
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/rupload_igphoto/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		// The web share flow stages through the fb_uploader endpoint
		if strings.Contains(r.URL.Path, "fb_uploader_") {
			f.mu.Lock()
			f.webUploadBody = body
			f.mu.Unlock()
			w.WriteHeader(f.webShareStatus)

			return
		}

		w.WriteHeader(f.directStatus)
	})

	mux.HandleFunc("/media/configure/", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&f.directCalls, 1)
		w.WriteHeader(f.directStatus)
	})

	mux.HandleFunc("/create/configure/", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&f.webShareCalls, 1)
		w.WriteHeader(f.webShareStatus)
	})

	return mux
}

func setupTest(t *testing.T) (*Publisher, *store.Store, *fakeAPI) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	st := store.New(client, client, zap.NewNop())

	api := newFakeAPI()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	pub := New(&config.Instagram{Username: "user", Password: "pass"}, st, zap.NewNop())
	pub.apiBase = srv.URL
	pub.webBase = srv.URL

	return pub, st, api
}

func photoContent() *platform.Content {
	return &platform.Content{
		Text:  "caption",
		Media: []platform.MediaItem{{Data: []byte{0xFF, 0xD8, 0xFF, 0xE0}}},
	}
}

func TestPublishLogsInAndPostsDirect(t *testing.T) {
	pub, st, api := setupTest(t)
	ctx := t.Context()

	err := pub.Publish(ctx, "daily-coin", photoContent())
	require.NoError(t, err)

	assert.Equal(t, int32(1), api.loginCalls)
	assert.Equal(t, int32(1), api.directCalls)
	assert.Equal(t, int32(0), api.webShareCalls, "fallback must not run after a direct success")

	// Login must persist a reusable session blob
	blob, err := st.GetSession(ctx, store.PlatformInstagram)
	require.NoError(t, err)
	assert.Contains(t, blob, "sessionid")
}

func TestPublishReusesStoredSession(t *testing.T) {
	pub, st, api := setupTest(t)
	ctx := t.Context()

	blob, err := sonic.Marshal(&session{
		Cookies:   map[string]string{"sessionid": "sess"},
		CSRFToken: "csrf",
		SavedAt:   time.Now().Unix(),
	})
	require.NoError(t, err)
	require.NoError(t, st.PutSession(ctx, store.PlatformInstagram, string(blob)))

	err = pub.Publish(ctx, "daily-coin", photoContent())
	require.NoError(t, err)

	assert.Equal(t, int32(0), api.loginCalls, "a fresh stored session must be reused")
}

func TestPublishFallsBackToWebShare(t *testing.T) {
	pub, _, api := setupTest(t)

	api.directStatus = http.StatusBadRequest

	photo := photoContent()
	err := pub.Publish(t.Context(), "daily-coin", photo)
	require.NoError(t, err)

	assert.Equal(t, int32(1), api.webShareCalls)

	// The fallback must transmit the photo bytes, not just configure a post
	api.mu.Lock()
	uploaded := api.webUploadBody
	api.mu.Unlock()
	assert.True(t, bytes.Contains(uploaded, photo.Media[0].Data),
		"web share upload must carry the photo bytes")
}

func TestPublishAggregatesStrategyFailures(t *testing.T) {
	pub, _, api := setupTest(t)

	api.directStatus = http.StatusBadRequest
	api.webShareStatus = http.StatusInternalServerError

	err := pub.Publish(t.Context(), "daily-coin", photoContent())
	assert.ErrorIs(t, err, platform.ErrAllStrategiesFailed)
}

func TestPublishRequiresMedia(t *testing.T) {
	pub, _, _ := setupTest(t)

	err := pub.Publish(t.Context(), "daily-coin", &platform.Content{Text: "caption"})
	assert.ErrorIs(t, err, ErrNoMedia)
}
