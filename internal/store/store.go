package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// ErrRecordNotFound indicates the requested record does not exist in the store.
var ErrRecordNotFound = errors.New("record not found in store")

// scanBatchSize controls how many keys each SCAN iteration requests.
const scanBatchSize = 100

// Store is the persisted queue store. It owns every durable record kind:
// scheduled posts, credential records, run markers and platform sessions.
// Access discipline is last-write-wins per key; the trigger mechanism is
// assumed to never run two instances of the same job concurrently.
type Store struct {
	queue  rueidis.Client
	state  rueidis.Client
	logger *zap.Logger
}

// New creates a store over the queue and state Redis databases.
func New(queue, state rueidis.Client, logger *zap.Logger) *Store {
	return &Store{
		queue:  queue,
		state:  state,
		logger: logger.Named("store"),
	}
}

// UpsertPost writes a scheduled post under its deterministic key,
// overwriting any pending entry for the same (platform, target) pair.
func (s *Store) UpsertPost(ctx context.Context, post *ScheduledPost) error {
	if post.ID == "" {
		post.ID = PostID(post.Platform, post.Target)
	}

	value, err := sonic.Marshal(post)
	if err != nil {
		return fmt.Errorf("failed to marshal post %s: %w", post.ID, err)
	}

	err = s.queue.Do(ctx, s.queue.B().Set().Key(post.ID).Value(string(value)).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to upsert post %s: %w", post.ID, err)
	}

	return nil
}

// GetPost retrieves one scheduled post by key.
func (s *Store) GetPost(ctx context.Context, id string) (*ScheduledPost, error) {
	value, err := s.queue.Do(ctx, s.queue.B().Get().Key(id).Build()).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}

		return nil, fmt.Errorf("failed to get post %s: %w", id, err)
	}

	var post ScheduledPost
	if err := sonic.Unmarshal([]byte(value), &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post %s: %w", id, err)
	}

	return &post, nil
}

// DuePosts scans the queue for every entry whose scheduled time has arrived.
// The boundary is inclusive: an entry with notBefore == now is due.
func (s *Store) DuePosts(ctx context.Context, now time.Time) ([]*ScheduledPost, error) {
	var (
		due    []*ScheduledPost
		cursor uint64
	)

	for {
		entry, err := s.queue.Do(ctx,
			s.queue.B().Scan().Cursor(cursor).Match(PostKeyPrefix+"*").Count(scanBatchSize).Build(),
		).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan posts: %w", err)
		}

		for _, key := range entry.Elements {
			post, err := s.GetPost(ctx, key)
			if err != nil {
				// Deleted between scan and read, or corrupt; skip either way
				if !errors.Is(err, ErrRecordNotFound) {
					s.logger.Warn("Skipping unreadable post", zap.String("key", key), zap.Error(err))
				}

				continue
			}

			if post.Due(now) {
				due = append(due, post)
			}
		}

		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}

	return due, nil
}

// DeletePost removes a delivered post from the queue.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	err := s.queue.Do(ctx, s.queue.B().Del().Key(id).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to delete post %s: %w", id, err)
	}

	return nil
}

// GetCredential retrieves the credential record for a platform.
func (s *Store) GetCredential(ctx context.Context, platform Platform) (*CredentialRecord, error) {
	key := CredentialKeyPrefix + string(platform)

	value, err := s.state.Do(ctx, s.state.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, key)
		}

		return nil, fmt.Errorf("failed to get credential for %s: %w", platform, err)
	}

	var record CredentialRecord
	if err := sonic.Unmarshal([]byte(value), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential for %s: %w", platform, err)
	}

	return &record, nil
}

// PutCredential overwrites the credential record for a platform.
func (s *Store) PutCredential(ctx context.Context, platform Platform, record *CredentialRecord) error {
	value, err := sonic.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal credential for %s: %w", platform, err)
	}

	key := CredentialKeyPrefix + string(platform)

	err = s.state.Do(ctx, s.state.B().Set().Key(key).Value(string(value)).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to put credential for %s: %w", platform, err)
	}

	return nil
}

// GetMarker retrieves the last-run marker for a logical job.
func (s *Store) GetMarker(ctx context.Context, job string) (*RunMarker, error) {
	key := MarkerKeyPrefix + job

	value, err := s.state.Do(ctx, s.state.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, key)
		}

		return nil, fmt.Errorf("failed to get marker for %s: %w", job, err)
	}

	var marker RunMarker
	if err := sonic.Unmarshal([]byte(value), &marker); err != nil {
		return nil, fmt.Errorf("failed to unmarshal marker for %s: %w", job, err)
	}

	return &marker, nil
}

// PutMarker records the completion time of a logical job.
func (s *Store) PutMarker(ctx context.Context, job string, lastRun time.Time) error {
	value, err := sonic.Marshal(&RunMarker{Job: job, LastRun: lastRun.Unix()})
	if err != nil {
		return fmt.Errorf("failed to marshal marker for %s: %w", job, err)
	}

	key := MarkerKeyPrefix + job

	err = s.state.Do(ctx, s.state.B().Set().Key(key).Value(string(value)).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to put marker for %s: %w", job, err)
	}

	return nil
}

// GetSession retrieves an opaque platform session blob.
func (s *Store) GetSession(ctx context.Context, platform Platform) (string, error) {
	key := SessionKeyPrefix + string(platform)

	value, err := s.state.Do(ctx, s.state.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return "", fmt.Errorf("%w: %s", ErrRecordNotFound, key)
		}

		return "", fmt.Errorf("failed to get session for %s: %w", platform, err)
	}

	return value, nil
}

// PutSession overwrites an opaque platform session blob.
func (s *Store) PutSession(ctx context.Context, platform Platform, blob string) error {
	key := SessionKeyPrefix + string(platform)

	err := s.state.Do(ctx, s.state.B().Set().Key(key).Value(blob).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to put session for %s: %w", platform, err)
	}

	return nil
}
