package session

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/candidsky/authcore/jwt"
	"github.com/candidsky/authcore/opaque"
	"github.com/candidsky/authcore/password"
)

// ErrRefreshInvalid is returned for every rotation failure: unknown session,
// expired or mismatched refresh token, or a blocked IP change. Callers get no
// finer detail.
var ErrRefreshInvalid = errors.New("invalid refresh token")

// IPMismatchPolicy decides what a rotation does when the presenting IP
// differs from the one stored on the session row.
type IPMismatchPolicy string

const (
	// IPMismatchLogOnly records the mismatch as a security signal and lets
	// the rotation proceed.
	IPMismatchLogOnly IPMismatchPolicy = "log"
	// IPMismatchBlock rejects the rotation outright.
	IPMismatchBlock IPMismatchPolicy = "block"
)

// TokenPair is the credential set handed to a client after login or refresh.
// The refresh token plaintext exists only here; the store keeps a hash.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

// Manager issues, rotates and revokes sessions against a [Repo].
type Manager struct {
	repo       Repo
	tokens     *opaque.Authority
	hasher     *password.Hasher
	access     *jwt.Manager
	maxPerUser int
	ipPolicy   IPMismatchPolicy

	now func() time.Time
}

// NewManager wires a Manager. maxPerUser caps concurrent sessions per user;
// values below 1 default to 3.
func NewManager(repo Repo, tokens *opaque.Authority, hasher *password.Hasher, access *jwt.Manager, maxPerUser int, policy IPMismatchPolicy) *Manager {
	if maxPerUser < 1 {
		maxPerUser = 3
	}
	if policy == "" {
		policy = IPMismatchLogOnly
	}
	return &Manager{
		repo:       repo,
		tokens:     tokens,
		hasher:     hasher,
		access:     access,
		maxPerUser: maxPerUser,
		ipPolicy:   policy,
		now:        time.Now,
	}
}

// Create opens a new session for a user and returns the token pair plus the
// stored row. Older sessions beyond the per-user cap are evicted after the
// insert.
func (m *Manager) Create(ctx context.Context, userID, roleName, provider string, device DeviceInfo, network NetworkMetadata, ip string) (*TokenPair, *Session, error) {
	refresh, err := m.tokens.Generate(opaque.TypeRefresh)
	if err != nil {
		return nil, nil, err
	}
	hash, err := m.hasher.Hash(refresh)
	if err != nil {
		return nil, nil, err
	}

	s := &Session{
		ID:               uuid.NewString(),
		UserID:           userID,
		RoleName:         roleName,
		Provider:         provider,
		RefreshHash:      hash,
		RefreshExpiresAt: m.now().Add(m.tokens.TTL(opaque.TypeRefresh)).UTC(),
		Device:           device,
		Network:          network,
		IPAddress:        ip,
		CreatedAt:        m.now().UTC(),
	}

	if err := m.repo.Insert(ctx, s); err != nil {
		return nil, nil, err
	}
	if err := m.repo.TrimForUser(ctx, userID, m.maxPerUser); err != nil {
		return nil, nil, err
	}

	accessToken, err := m.access.Sign(userID, s.ID, roleName)
	if err != nil {
		return nil, nil, err
	}

	pair := &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refresh,
		AccessTTL:    m.access.AccessTTL(),
		RefreshTTL:   m.tokens.TTL(opaque.TypeRefresh),
	}
	return pair, s, nil
}

// Rotate exchanges a valid refresh token for a fresh pair. The session row is
// updated in place, so the session id survives across refreshes. Every
// failure collapses to [ErrRefreshInvalid].
func (m *Manager) Rotate(ctx context.Context, sessionID, presented, ip string) (*TokenPair, error) {
	if _, err := m.tokens.Verify(presented, opaque.TypeRefresh); err != nil {
		return nil, ErrRefreshInvalid
	}

	s, err := m.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	if m.now().After(s.RefreshExpiresAt) {
		return nil, ErrRefreshInvalid
	}
	ok, err := m.hasher.Verify(presented, s.RefreshHash)
	if err != nil || !ok {
		return nil, ErrRefreshInvalid
	}

	if ip != "" && s.IPAddress != "" && ip != s.IPAddress {
		log.Printf("authcore: session %s rotation ip changed from %s to %s", s.ID, s.IPAddress, ip)
		if m.ipPolicy == IPMismatchBlock {
			return nil, ErrRefreshInvalid
		}
	}

	refresh, err := m.tokens.Generate(opaque.TypeRefresh)
	if err != nil {
		return nil, err
	}
	hash, err := m.hasher.Hash(refresh)
	if err != nil {
		return nil, err
	}
	expiresAt := m.now().Add(m.tokens.TTL(opaque.TypeRefresh)).UTC()
	if err := m.repo.UpdateRefresh(ctx, s.ID, hash, expiresAt); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	accessToken, err := m.access.Sign(s.UserID, s.ID, s.RoleName)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refresh,
		AccessTTL:    m.access.AccessTTL(),
		RefreshTTL:   m.tokens.TTL(opaque.TypeRefresh),
	}, nil
}

// Revoke deletes a session. Revoking an already-deleted session succeeds.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	return m.repo.Delete(ctx, sessionID)
}

// RevokeAllForUser deletes every session of a user, typically after a
// password reset.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) error {
	return m.repo.DeleteAllForUser(ctx, userID)
}
