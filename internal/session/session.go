package session

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/timebankhq/timebank-go/shared/contracts"
)

// Session is the explicit identity context injected into consumers at
// construction time. It is created at sign-in and torn down at logout;
// nothing in this package mutates it.
type Session struct {
	token  string
	userID contracts.ID
}

// New builds a session from an explicit user id and bearer token.
func New(userID contracts.ID, token string) *Session {
	return &Session{token: token, userID: userID}
}

// NewFromToken derives the user id from the token's claims. The signature is
// not verified here: the backend is the authority, the client only needs the
// identity for rendering decisions (message ownership).
func NewFromToken(token string) (*Session, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}

	var userID contracts.ID
	if v, ok := claims["user_id"]; ok {
		userID = contracts.ID(fmt.Sprintf("%v", v))
	} else if sub, err := claims.GetSubject(); err == nil && sub != "" {
		userID = contracts.ID(sub)
	}
	if userID == "" {
		return nil, fmt.Errorf("session token carries no user identity")
	}

	return &Session{token: token, userID: userID}, nil
}

// Token returns the bearer token, empty for anonymous sessions.
func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	return s.token
}

// UserID returns the current user's id in its normalized form.
func (s *Session) UserID() contracts.ID {
	if s == nil {
		return ""
	}
	return s.userID
}
