package model

import "time"

// User represents a registered account.
//
// We use GitHub OAuth as the identity provider, so the primary external
// identifier is the GitHub user ID (an integer). We still generate our own
// internal string ID (xid) to avoid tying primary keys to a third party's
// numbering scheme. The identity binding is immutable: a user row is created
// on first successful login and its github_id never changes afterwards.
//
// WHY Email string (not *string)?
// GitHub OAuth returns the primary public email, which can be empty if the
// user has hidden it. We use an empty string as the zero value rather than a
// nullable pointer — simpler to work with and safe to display.
type User struct {
	ID        string    `json:"id"        db:"id"`
	GitHubID  int64     `json:"githubId"  db:"github_id"` // GitHub's numeric user ID — stable, never changes
	Login     string    `json:"login"     db:"login"`
	Email     string    `json:"email"     db:"email"`
	AvatarURL string    `json:"avatarUrl" db:"avatar_url"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// ClipToken holds the bcrypt hash of a user's bookmarklet token. The
// plaintext is shown once, when the token is issued; after that only the
// hash survives. One token per user — re-issuing replaces the hash.
type ClipToken struct {
	UserID    string    `json:"userId"    db:"user_id"`
	TokenHash string    `json:"-"         db:"token_hash"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
