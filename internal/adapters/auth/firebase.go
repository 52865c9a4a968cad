package auth

import (
	"context"
	"fmt"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/PabloGalante/codexa/internal/domain"
)

// FirebaseVerifier checks ID tokens issued by Firebase Authentication.
type FirebaseVerifier struct {
	client *firebaseauth.Client
}

func NewFirebaseVerifier(client *firebaseauth.Client) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

// VerifyToken implements domain.TokenVerifier.
func (v *FirebaseVerifier) VerifyToken(ctx context.Context, idToken string) (*domain.User, error) {
	tok, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("firebase verify id token: %w: %w", domain.ErrInvalidToken, err)
	}

	user := &domain.User{ID: domain.UserID(tok.UID)}
	if email, ok := tok.Claims["email"].(string); ok {
		user.Email = email
	}
	if name, ok := tok.Claims["name"].(string); ok {
		user.DisplayName = name
	}
	return user, nil
}
