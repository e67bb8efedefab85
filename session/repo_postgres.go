package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresRepo stores sessions in a Postgres table:
//
//	CREATE TABLE sessions (
//	    id                 TEXT PRIMARY KEY,
//	    user_id            TEXT NOT NULL,
//	    role_name          TEXT NOT NULL,
//	    provider           TEXT NOT NULL,
//	    refresh_hash       TEXT NOT NULL,
//	    refresh_expires_at TIMESTAMPTZ NOT NULL,
//	    device             JSONB NOT NULL DEFAULT '{}',
//	    network            JSONB NOT NULL DEFAULT '{}',
//	    ip_address         TEXT NOT NULL DEFAULT '',
//	    created_at         TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX sessions_user_created ON sessions (user_id, created_at DESC);
type PostgresRepo struct {
	db *sql.DB
}

// NewPostgresRepo wraps an open database handle.
func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Insert(ctx context.Context, s *Session) error {
	device, err := json.Marshal(s.Device)
	if err != nil {
		return err
	}
	network, err := json.Marshal(s.Network)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sessions
			(id, user_id, role_name, provider, refresh_hash, refresh_expires_at,
			 device, network, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.UserID, s.RoleName, s.Provider, s.RefreshHash, s.RefreshExpiresAt,
		device, network, s.IPAddress, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *PostgresRepo) TrimForUser(ctx context.Context, userID string, keep int) error {
	// One statement, so two concurrent logins cannot both observe the same
	// pre-trim row set.
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE user_id = $1
		  AND id NOT IN (
			SELECT id FROM sessions
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		  )`,
		userID, keep,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (*Session, error) {
	var (
		s       Session
		device  []byte
		network []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, role_name, provider, refresh_hash, refresh_expires_at,
		       device, network, ip_address, created_at
		FROM sessions
		WHERE id = $1`,
		id,
	).Scan(
		&s.ID, &s.UserID, &s.RoleName, &s.Provider, &s.RefreshHash, &s.RefreshExpiresAt,
		&device, &network, &s.IPAddress, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := json.Unmarshal(device, &s.Device); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(network, &s.Network); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepo) UpdateRefresh(ctx context.Context, id, refreshHash string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET refresh_hash = $2, refresh_expires_at = $3
		WHERE id = $1`,
		id, refreshHash, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *PostgresRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
