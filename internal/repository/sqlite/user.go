package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/clipmark/clipmark/internal/apperror"
	"github.com/clipmark/clipmark/internal/model"
	"github.com/clipmark/clipmark/internal/repository"
)

// compile-time interface checks
var (
	_ repository.UserRepository      = (*DB)(nil)
	_ repository.ClipTokenRepository = (*DB)(nil)
)

// Upsert inserts or updates a user based on their GitHub ID.
//
// First successful login creates the row; later logins keep the existing
// internal ID (the identity binding is immutable) and refresh the profile
// fields in case they changed on GitHub.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	var existingID string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM users WHERE github_id = ?`, user.GitHubID,
	).Scan(&existingID)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
	}

	if existingID != "" {
		user.ID = existingID
		user.UpdatedAt = time.Now()
		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET login = ?, email = ?, avatar_url = ?, updated_at = ?
			 WHERE id = ?`,
			user.Login, user.Email, user.AvatarURL, user.UpdatedAt, user.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
		}
		return nil
	}

	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, github_id, login, email, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.GitHubID, user.Login, user.Email, user.AvatarURL,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user (githubID=%d): %w", user.GitHubID, err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, github_id, login, email, avatar_url, created_at, updated_at
		 FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.GitHubID, &u.Login, &u.Email, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return &u, nil
}

// SaveClipToken stores the bcrypt hash of a user's bookmarklet token.
// Inserting for a user who already has one replaces the hash; re-inserting
// an identical hash is a no-op. Either way the caller sees success.
func (db *DB) SaveClipToken(ctx context.Context, userID, tokenHash string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO clip_tokens (user_id, token_hash, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET token_hash = excluded.token_hash,
		                                     created_at = excluded.created_at`,
		userID, tokenHash, time.Now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("sqlite: saving clip token for user %s: %w", userID, err)
	}
	return nil
}

// GetClipTokenHash returns the stored token hash for a user.
func (db *DB) GetClipTokenHash(ctx context.Context, userID string) (string, error) {
	var hash string
	err := db.conn.QueryRowContext(ctx,
		`SELECT token_hash FROM clip_tokens WHERE user_id = ?`, userID,
	).Scan(&hash)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", apperror.NotFound("clip token", userID)
		}
		return "", fmt.Errorf("sqlite: getting clip token for user %s: %w", userID, err)
	}
	return hash, nil
}
