package sandbox

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Veraticus/bankflow/internal/model"
)

const ctxUserID = "userID"

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Message      string            `json:"message"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
	User         model.UserProfile `json:"user"`
}

func (s *Server) issueToken(userID string) (string, error) {
	now := s.cfg.Clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *Server) parseToken(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.cfg.Clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// requireAuth rejects requests without a valid bearer token.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			abort(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		userID, err := s.parseToken(raw)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		s.state.mu.Lock()
		_, exists := s.state.users[userID]
		s.state.mu.Unlock()
		if !exists {
			abort(c, http.StatusUnauthorized, "User not found")
			return
		}

		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func (s *Server) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		abort(c, http.StatusBadRequest, "Email and password are required")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.PasswordCost)
	if err != nil {
		abort(c, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	s.state.mu.Lock()
	if _, taken := s.state.byEmail[email]; taken {
		s.state.mu.Unlock()
		abort(c, http.StatusConflict, "Email already registered")
		return
	}
	u := &user{
		profile: model.UserProfile{
			ID:           newID(),
			Email:        email,
			CreatedAt:    s.cfg.Clock.Now().UTC().Format(time.RFC3339),
			AuthProvider: "local",
		},
		hash:     hash,
		accounts: append([]string(nil), s.cfg.Accounts...),
		lastSync: make(map[string]time.Time),
		calls:    make(map[string]dayCount),
		seen:     make(map[string]bool),
	}
	s.state.users[u.profile.ID] = u
	s.state.byEmail[email] = u.profile.ID
	s.state.mu.Unlock()

	s.respondWithSession(c, http.StatusCreated, "Registered", u.profile)
}

func (s *Server) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Email and password are required")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	s.state.mu.Lock()
	var u *user
	if id, ok := s.state.byEmail[email]; ok {
		u = s.state.users[id]
	}
	s.state.mu.Unlock()

	if u == nil || bcrypt.CompareHashAndPassword(u.hash, []byte(req.Password)) != nil {
		abort(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	s.respondWithSession(c, http.StatusOK, "Logged in", u.profile)
}

func (s *Server) respondWithSession(c *gin.Context, status int, message string, profile model.UserProfile) {
	access, err := s.issueToken(profile.ID)
	if err != nil {
		abort(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	refresh := uuid.NewString()

	s.state.mu.Lock()
	s.state.refresh[refresh] = profile.ID
	s.state.mu.Unlock()

	c.JSON(status, authResponse{
		Message:      message,
		AccessToken:  access,
		RefreshToken: refresh,
		User:         profile,
	})
}

func (s *Server) verify(c *gin.Context) {
	u := s.currentUser(c)
	s.state.mu.Lock()
	profile := u.profile
	s.state.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"user": profile})
}

func (s *Server) logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		abort(c, http.StatusBadRequest, "Refresh token is required")
		return
	}

	s.state.mu.Lock()
	delete(s.state.refresh, req.RefreshToken)
	s.state.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// currentUser returns the authenticated user. Only valid behind requireAuth.
func (s *Server) currentUser(c *gin.Context) *user {
	id := c.GetString(ctxUserID)
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	return s.state.users[id]
}
