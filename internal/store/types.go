package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// Platform identifies a social media delivery target.
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformInstagram Platform = "instagram"
	PlatformTelegram  Platform = "telegram"
)

// Key prefixes namespace the record kinds within the store.
const (
	PostKeyPrefix       = "post:"
	CredentialKeyPrefix = "credential:"
	MarkerKeyPrefix     = "marker:"
	SessionKeyPrefix    = "session:"
)

// ScheduledPost is a unit of future work written by the scheduler and
// consumed by the poster. The deterministic ID guarantees at most one
// pending post per (platform, target) pair; re-scheduling overwrites.
type ScheduledPost struct {
	ID        string          `json:"id"`
	Platform  Platform        `json:"platform"`
	Target    string          `json:"target"`
	Payload   json.RawMessage `json:"payload"`
	NotBefore int64           `json:"notBefore"`
}

// PostID builds the deterministic store key for a (platform, target) pair.
func PostID(platform Platform, target string) string {
	return fmt.Sprintf("%s%s:%s", PostKeyPrefix, platform, target)
}

// Due reports whether the post's scheduled time has arrived.
func (p *ScheduledPost) Due(now time.Time) bool {
	return now.Unix() >= p.NotBefore
}

// CredentialRecord holds a refreshable token set for an external platform.
// Updated by the publisher after every refresh, never deleted.
type CredentialRecord struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresInSeconds"`
	SavedAt      int64  `json:"savedAt"`
}

// Fresh reports whether the access token is still usable at now.
func (c *CredentialRecord) Fresh(now time.Time) bool {
	return now.Unix()-c.SavedAt < c.ExpiresIn
}

// RunMarker records when a logical job last completed, used to enforce
// minimum spacing between runs.
type RunMarker struct {
	Job     string `json:"job"`
	LastRun int64  `json:"lastRun"`
}
