// Package session manages persisted user sessions: creation with a per-user
// cap, refresh-token rotation and revocation. Refresh tokens are stored only
// as slow one-way hashes; the plaintext is shown once at issue time.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrUnavailable = errors.New("session store unavailable")
)

// DeviceInfo describes the client installation that opened a session. It is
// persisted verbatim and never interpreted.
type DeviceInfo struct {
	Platform    string `json:"platform,omitempty"`
	AppVersion  string `json:"app_version,omitempty"`
	OSVersion   string `json:"os_version,omitempty"`
	DeviceModel string `json:"device_model,omitempty"`
}

// NetworkMetadata carries coarse client-location fields reported at login.
// Values are stored as received; no geolocation validation happens here.
type NetworkMetadata struct {
	Country  string `json:"country,omitempty"`
	Region   string `json:"region,omitempty"`
	City     string `json:"city,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Session is one persisted login. A row is mutated only by its own rotation
// or deleted wholesale.
type Session struct {
	ID               string
	UserID           string
	RoleName         string
	Provider         string
	RefreshHash      string
	RefreshExpiresAt time.Time
	Device           DeviceInfo
	Network          NetworkMetadata
	IPAddress        string
	CreatedAt        time.Time
}

// Repo is the relational store behind the [Manager].
type Repo interface {
	// Insert persists a new session row.
	Insert(ctx context.Context, s *Session) error

	// TrimForUser deletes the user's sessions beyond the keep newest, in a
	// single statement so concurrent logins cannot race a read-then-delete.
	TrimForUser(ctx context.Context, userID string, keep int) error

	// GetByID loads a session or returns [ErrNotFound].
	GetByID(ctx context.Context, id string) (*Session, error)

	// UpdateRefresh replaces the refresh hash and expiry of an existing row.
	UpdateRefresh(ctx context.Context, id, refreshHash string, expiresAt time.Time) error

	// Delete removes a session. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteAllForUser removes every session of a user.
	DeleteAllForUser(ctx context.Context, userID string) error
}
