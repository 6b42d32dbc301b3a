package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/Veraticus/bankflow/internal/common"
	"github.com/Veraticus/bankflow/internal/service"
)

// tokenLoadTimeout bounds a credential lookup made from the transport.
const tokenLoadTimeout = 5 * time.Second

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// Tokens that are not JWTs, or carry no exp claim, report a zero time.
func TokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// credentialSource is an oauth2.TokenSource backed by the durable credential store.
type credentialSource struct {
	store service.CredentialStore
	clock service.Clock
}

// Token loads the stored access token. An absent or expired token fails
// with ErrUnauthorized so it is never sent.
func (s *credentialSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), tokenLoadTimeout)
	defer cancel()

	creds, err := s.store.LoadCredentials(ctx)
	if errors.Is(err, common.ErrNotLoggedIn) {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	expiry := creds.Expiry
	if expiry.IsZero() {
		expiry = TokenExpiry(creds.AccessToken)
	}
	if !expiry.IsZero() && !s.clock.Now().Before(expiry) {
		return nil, fmt.Errorf("%w: access token expired at %s", ErrUnauthorized, expiry.Format(time.RFC3339))
	}

	return &oauth2.Token{
		AccessToken: creds.AccessToken,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}, nil
}
