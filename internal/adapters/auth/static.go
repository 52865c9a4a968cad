package auth

import (
	"context"
	"strings"

	"github.com/PabloGalante/codexa/internal/domain"
)

// StaticVerifier is the local-mode verifier. It trusts tokens of the form
// "uid" or "uid:email" without any signature check.
type StaticVerifier struct{}

func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{}
}

func (StaticVerifier) VerifyToken(_ context.Context, idToken string) (*domain.User, error) {
	uid, email, _ := strings.Cut(strings.TrimSpace(idToken), ":")
	if uid == "" {
		return nil, domain.ErrInvalidToken
	}
	return &domain.User{ID: domain.UserID(uid), Email: email}, nil
}
