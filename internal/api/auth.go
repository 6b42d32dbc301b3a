package api

import (
	"context"
	"net/http"

	"github.com/Veraticus/bankflow/internal/model"
)

const authPath = "/auth"

// AuthResponse is returned by login and registration.
type AuthResponse struct {
	Message      string            `json:"message"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
	User         model.UserProfile `json:"user"`
}

// Credentials returns the token pair of the response.
func (r AuthResponse) Credentials() model.Credentials {
	return model.Credentials{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

type emailPassword struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges an email and password for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	return c.authenticate(ctx, "/login", email, password)
}

// Register creates an account and logs it in.
func (c *Client) Register(ctx context.Context, email, password string) (*AuthResponse, error) {
	return c.authenticate(ctx, "/register", email, password)
}

func (c *Client) authenticate(ctx context.Context, endpoint, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     authPath + endpoint,
		resource: resourceAuth,
		body:     emailPassword{Email: email, Password: password},
		out:      &out,
		public:   true,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify checks the stored access token and returns the profile it belongs to.
func (c *Client) Verify(ctx context.Context) (*model.UserProfile, error) {
	var out struct {
		User model.UserProfile `json:"user"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: authPath + "/verify", resource: resourceAuth, out: &out}); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Logout revokes the refresh token.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, request{
		method:   http.MethodPost,
		path:     authPath + "/logout",
		resource: resourceAuth,
		body:     map[string]string{"refreshToken": refreshToken},
		public:   true,
	})
}
