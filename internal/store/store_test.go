package store_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/irancrypto/marketbot/internal/store"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTest(t *testing.T) *store.Store {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	queue, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(queue.Close)

	state, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		SelectDB:     1,
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(state.Close)

	return store.New(queue, state, zap.NewNop())
}

func TestUpsertPostOverwrites(t *testing.T) {
	t.Parallel()

	s := setupTest(t)
	ctx := t.Context()
	now := time.Now()

	first := &store.ScheduledPost{
		Platform:  store.PlatformTwitter,
		Target:    "trends",
		Payload:   json.RawMessage(`{"version":1}`),
		NotBefore: now.Add(time.Hour).Unix(),
	}
	require.NoError(t, s.UpsertPost(ctx, first))

	second := &store.ScheduledPost{
		Platform:  store.PlatformTwitter,
		Target:    "trends",
		Payload:   json.RawMessage(`{"version":2}`),
		NotBefore: now.Add(2 * time.Hour).Unix(),
	}
	require.NoError(t, s.UpsertPost(ctx, second))

	// Scheduling twice must leave exactly one entry with the latest payload
	posts, err := s.DuePosts(ctx, now.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.JSONEq(t, `{"version":2}`, string(posts[0].Payload))
	assert.Equal(t, second.NotBefore, posts[0].NotBefore)
}

func TestDuePostsBoundary(t *testing.T) {
	t.Parallel()

	s := setupTest(t)
	ctx := t.Context()
	now := time.Unix(1_700_000_000, 0)

	post := &store.ScheduledPost{
		Platform:  store.PlatformTelegram,
		Target:    "daily-coin",
		Payload:   json.RawMessage(`{}`),
		NotBefore: now.Unix(),
	}
	require.NoError(t, s.UpsertPost(ctx, post))

	// One second early: not due
	posts, err := s.DuePosts(ctx, now.Add(-time.Second))
	require.NoError(t, err)
	assert.Empty(t, posts)

	// Exactly at notBefore: due (boundary inclusive)
	posts, err = s.DuePosts(ctx, now)
	require.NoError(t, err)
	assert.Len(t, posts, 1)

	// After notBefore: still due
	posts, err = s.DuePosts(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestDuePostsMultiplePlatforms(t *testing.T) {
	t.Parallel()

	s := setupTest(t)
	ctx := t.Context()
	now := time.Now()

	for _, p := range []store.Platform{store.PlatformTwitter, store.PlatformInstagram, store.PlatformTelegram} {
		require.NoError(t, s.UpsertPost(ctx, &store.ScheduledPost{
			Platform:  p,
			Target:    "vol",
			Payload:   json.RawMessage(`{}`),
			NotBefore: now.Unix(),
		}))
	}

	posts, err := s.DuePosts(ctx, now)
	require.NoError(t, err)
	assert.Len(t, posts, 3)
}

func TestDeletePost(t *testing.T) {
	t.Parallel()

	s := setupTest(t)
	ctx := t.Context()
	now := time.Now()

	post := &store.ScheduledPost{
		Platform:  store.PlatformInstagram,
		Target:    "weekly-coin",
		Payload:   json.RawMessage(`{}`),
		NotBefore: now.Unix(),
	}
	require.NoError(t, s.UpsertPost(ctx, post))
	require.NoError(t, s.DeletePost(ctx, post.ID))

	posts, err := s.DuePosts(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, posts)

	_, err = s.GetPost(ctx, post.ID)
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
}

func TestCredentialRoundTrip(t *testing.T) {
	t.Parallel()

	s := setupTest(t)
	ctx := t.Context()

	_, err := s.GetCredential(ctx, store.PlatformTwitter)
	assert.ErrorIs(t, err, store.ErrRecordNotFound)

	record := &store.CredentialRecord{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresIn:    7200,
		SavedAt:      time.Now().Unix(),
	}
	require.NoError(t, s.PutCredential(ctx, store.PlatformTwitter, record))

	got, err := s.GetCredential(ctx, store.PlatformTwitter)
	require.NoError(t, err)
	assert.Equal(t, record, got)
}

func TestCredentialFreshness(t *testing.T) {
	t.Parallel()

	now := time.Now()

	expired := &store.CredentialRecord{SavedAt: now.Add(-100 * time.Second).Unix(), ExpiresIn: 50}
	assert.False(t, expired.Fresh(now))

	valid := &store.CredentialRecord{SavedAt: now.Add(-100 * time.Second).Unix(), ExpiresIn: 200}
	assert.True(t, valid.Fresh(now))
}

func TestMarkerRoundTrip(t *testing.T) {
	t.Parallel()

	s := setupTest(t)
	ctx := t.Context()

	_, err := s.GetMarker(ctx, "deliver")
	assert.ErrorIs(t, err, store.ErrRecordNotFound)

	ts := time.Unix(1_700_000_000, 0)
	require.NoError(t, s.PutMarker(ctx, "deliver", ts))

	marker, err := s.GetMarker(ctx, "deliver")
	require.NoError(t, err)
	assert.Equal(t, ts.Unix(), marker.LastRun)
	assert.Equal(t, "deliver", marker.Job)
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	s := setupTest(t)
	ctx := t.Context()

	_, err := s.GetSession(ctx, store.PlatformInstagram)
	assert.ErrorIs(t, err, store.ErrRecordNotFound)

	require.NoError(t, s.PutSession(ctx, store.PlatformInstagram, `{"cookies":"blob"}`))

	blob, err := s.GetSession(ctx, store.PlatformInstagram)
	require.NoError(t, err)
	assert.Equal(t, `{"cookies":"blob"}`, blob)
}
