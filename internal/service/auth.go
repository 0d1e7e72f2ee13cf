// Package service — authentication business logic.
//
// AuthService sits between the HTTP handlers and the repository/auth
// utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT) ↘ ClipTokenService (bcrypt)
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clipmark/clipmark/internal/apperror"
	"github.com/clipmark/clipmark/internal/auth"
	"github.com/clipmark/clipmark/internal/model"
	"github.com/clipmark/clipmark/internal/repository"
)

// AuthService handles authentication: the GitHub OAuth callback, session
// JWTs, and bookmarklet clip tokens.
type AuthService struct {
	users  repository.UserRepository
	clips  repository.ClipTokenRepository
	tokens *auth.TokenService
	secret *auth.ClipTokenService
	logger *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	clips repository.ClipTokenRepository,
	tokens *auth.TokenService,
	secret *auth.ClipTokenService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:  users,
		clips:  clips,
		tokens: tokens,
		secret: secret,
		logger: logger,
	}
}

// AuthResult bundles the user record and the issued JWT so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback: upsert the user
// on (github_id), then issue a session JWT. First login inserts; later
// logins refresh email/avatar in case they changed on GitHub.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user := &model.User{
		GitHubID:  ghUser.ID,
		Login:     ghUser.Login,
		Email:     ghUser.Email,
		AvatarURL: ghUser.AvatarURL,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
	)

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	return &AuthResult{User: user, Token: token}, nil
}

// GetUserByID returns the user for the given internal ID. Used by /api/me
// after the middleware extracts the userID from the JWT.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// ValidateToken validates a session JWT and returns the userID it encodes.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

// IssueClipToken mints a new bookmarklet credential for userID and returns
// the plaintext secret. Only the bcrypt hash is stored; issuing again
// replaces the previous token, so each user has at most one live clip
// credential.
func (s *AuthService) IssueClipToken(ctx context.Context, userID string) (string, error) {
	secret, err := s.secret.GenerateSecret()
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	hash, err := s.secret.Hash(secret)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}

	if err := s.clips.SaveClipToken(ctx, userID, hash); err != nil {
		return "", fmt.Errorf("service/auth: saving clip token for user %s: %w", userID, err)
	}

	s.logger.Info("clip token issued", slog.String("userID", userID))
	return secret, nil
}

// ValidateClipToken checks a bookmarklet credential against the stored
// hash. Implements auth.ClipAuthenticator for the middleware. bcrypt's
// constant-time compare means a wrong secret and an unknown user both
// resolve to the same Unauthorized error.
func (s *AuthService) ValidateClipToken(ctx context.Context, userID, secret string) (string, error) {
	if userID == "" || secret == "" {
		return "", apperror.Unauthorized("clip credentials required")
	}

	hash, err := s.clips.GetClipTokenHash(ctx, userID)
	if err != nil {
		return "", apperror.Unauthorized("invalid clip credentials")
	}
	if !s.secret.Verify(hash, secret) {
		return "", apperror.Unauthorized("invalid clip credentials")
	}
	return userID, nil
}
