// Package identity holds the signed-in user for the lifetime of one popup.
//
// A single Context is created when the backend starts and handed to every
// component that needs to know who is signed in. Nothing reads the user from
// package-level state.
package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PabloGalante/codexa/internal/domain"
	"github.com/PabloGalante/codexa/internal/observability"
)

type Context struct {
	verifier domain.TokenVerifier

	mu   sync.RWMutex
	user *domain.User
}

func New(verifier domain.TokenVerifier) *Context {
	return &Context{verifier: verifier}
}

// SignIn verifies idToken and makes its owner the current user.
func (c *Context) SignIn(ctx context.Context, idToken string) (*domain.User, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, domain.ErrInvalidToken
	}

	user, err := c.verifier.VerifyToken(ctx, idToken)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("sign in rejected", "error", err)
		return nil, fmt.Errorf("identity: verifying token: %w", err)
	}

	c.mu.Lock()
	c.user = user
	c.mu.Unlock()

	observability.LoggerFromContext(ctx).Info("signed in", "user_id", user.ID)
	u := *user
	return &u, nil
}

func (c *Context) SignOut() {
	c.mu.Lock()
	c.user = nil
	c.mu.Unlock()
}

// CurrentUser returns a copy of the signed-in user.
func (c *Context) CurrentUser() (domain.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.user == nil {
		return domain.User{}, false
	}
	return *c.user, true
}

// UserID returns the signed-in user's id, or "" when anonymous.
func (c *Context) UserID() domain.UserID {
	u, _ := c.CurrentUser()
	return u.ID
}
