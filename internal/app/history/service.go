// Package history serves the signed-in user's saved conversations (the
// profile page): listing with search, opening and deleting.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PabloGalante/codexa/internal/app/identity"
	"github.com/PabloGalante/codexa/internal/app/persistence"
	"github.com/PabloGalante/codexa/internal/domain"
	"github.com/PabloGalante/codexa/internal/observability"
)

const excerptLength = 100

// UntitledConversation is shown for conversations saved without a title.
const UntitledConversation = "Untitled Conversation"

// Summary is one row of the history list.
type Summary struct {
	ID           domain.ConversationID `json:"id"`
	Title        string                `json:"title"`
	Excerpt      string                `json:"excerpt"`
	MessageCount int                   `json:"message_count"`
	UpdatedAt    time.Time             `json:"updated_at"`
	Age          string                `json:"age"`
}

// Service holds the logic of reading the conversation history
type Service struct {
	gateway  *persistence.Gateway
	identity *identity.Context
	now      func() time.Time
}

// NewService creates a history service on top of the persistence gateway
func NewService(gateway *persistence.Gateway, identity *identity.Context) *Service {
	return &Service{
		gateway:  gateway,
		identity: identity,
		now:      time.Now,
	}
}

// List returns the user's conversations, most recently updated first. A
// non-empty query keeps only conversations whose title or original code
// contains it, ignoring case.
func (s *Service) List(ctx context.Context, query string) ([]Summary, error) {
	userID := s.identity.UserID()
	convs, err := s.gateway.GetUserConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("history: listing conversations: %w", err)
	}

	q := strings.ToLower(strings.TrimSpace(query))
	now := s.now()

	out := make([]Summary, 0, len(convs))
	for _, c := range convs {
		if q != "" &&
			!strings.Contains(strings.ToLower(c.Title), q) &&
			!strings.Contains(strings.ToLower(c.OriginalCode), q) {
			continue
		}
		title := c.Title
		if title == "" {
			title = UntitledConversation
		}
		out = append(out, Summary{
			ID:           c.ID,
			Title:        title,
			Excerpt:      Excerpt(c.OriginalCode),
			MessageCount: len(c.Messages),
			UpdatedAt:    c.UpdatedAt,
			Age:          FormatAge(c.UpdatedAt, now),
		})
	}

	observability.LoggerFromContext(ctx).Info("listed conversations",
		"user_id", userID, "count", len(out), "filtered", q != "")
	return out, nil
}

// Get returns a conversation owned by the signed-in user. Conversations of
// other users are reported as not found.
func (s *Service) Get(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error) {
	userID := s.identity.UserID()
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}

	conv, err := s.gateway.GetConversationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, domain.ErrConversationNotFound
	}
	return conv, nil
}

// Delete removes a conversation owned by the signed-in user.
func (s *Service) Delete(ctx context.Context, id domain.ConversationID) (bool, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	return s.gateway.DeleteConversation(ctx, id)
}

// Excerpt shortens code to 100 characters followed by "...".
func Excerpt(code string) string {
	if utf8.RuneCountInString(code) <= excerptLength {
		return code
	}
	return string([]rune(code)[:excerptLength]) + "..."
}

// FormatAge labels t relative to now: the time of day for the last 24 hours,
// "Yesterday", "N days ago" within a week, then a short date (with the year
// when it differs from now's).
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "Unknown date"
	}

	days := int(now.Sub(t) / (24 * time.Hour))
	switch {
	case days <= 0:
		return t.Format("3:04 PM")
	case days == 1:
		return "Yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	case t.Year() != now.Year():
		return t.Format("Jan 2, 2006")
	default:
		return t.Format("Jan 2")
	}
}
