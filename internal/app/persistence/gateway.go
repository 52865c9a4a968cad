// Package persistence applies the conversation storage rules on top of a
// domain.ConversationStore: admission through the code classifier and size
// bounds on stored text.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/PabloGalante/codexa/internal/app/classify"
	"github.com/PabloGalante/codexa/internal/domain"
	"github.com/PabloGalante/codexa/internal/observability"
)

const (
	// MaxStoredText bounds the original code and every model reply.
	MaxStoredText = 10000
	// MaxStoredQuestion bounds follow-up user messages.
	MaxStoredQuestion = 5000
)

type Gateway struct {
	store domain.ConversationStore
	now   func() time.Time
}

func NewGateway(store domain.ConversationStore) *Gateway {
	return &Gateway{
		store: store,
		now:   time.Now,
	}
}

// CreateConversation stores a new two-message conversation and returns its id.
// It returns "" without writing when userID is empty or originalCode does not
// look like code.
func (g *Gateway) CreateConversation(
	ctx context.Context,
	userID domain.UserID,
	originalCode string,
	title string,
	initialResponse string,
) (domain.ConversationID, error) {
	log := observability.LoggerFromContext(ctx).With("user_id", userID)

	if userID == "" {
		log.Debug("not creating conversation: no user")
		return "", nil
	}
	if !classify.IsLikelyCode(originalCode) {
		log.Info("not creating conversation: input doesn't appear to be code")
		return "", nil
	}

	code := truncate(originalCode, MaxStoredText)
	now := g.now()
	user := domain.NewTextMessage(domain.RoleUser, code)
	user.CreatedAt = now
	model := domain.NewTextMessage(domain.RoleModel, truncate(initialResponse, MaxStoredText))
	model.CreatedAt = now

	conv := &domain.Conversation{
		UserID:       userID,
		Title:        title,
		OriginalCode: code,
		Messages:     []domain.Message{user, model},
	}

	id, err := g.store.CreateConversation(ctx, conv)
	if err != nil {
		return "", &domain.PersistenceError{Op: "create", Err: err}
	}

	log.Info("conversation created", "conversation_id", id)
	return id, nil
}

// UpdateConversation appends one (user, model) pair. It reports false when
// id is empty or the conversation does not exist.
func (g *Gateway) UpdateConversation(
	ctx context.Context,
	id domain.ConversationID,
	userText string,
	modelText string,
) (bool, error) {
	log := observability.LoggerFromContext(ctx).With("conversation_id", id)

	if id == "" {
		log.Debug("no conversation id, skipping update")
		return false, nil
	}

	now := g.now()
	user := domain.NewTextMessage(domain.RoleUser, truncate(userText, MaxStoredQuestion))
	user.CreatedAt = now
	model := domain.NewTextMessage(domain.RoleModel, truncate(modelText, MaxStoredText))
	model.CreatedAt = now

	if err := g.store.AppendExchange(ctx, id, user, model); err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			log.Info("conversation doesn't exist, can't update")
			return false, nil
		}
		return false, &domain.PersistenceError{Op: "update", Err: err}
	}

	log.Info("conversation updated")
	return true, nil
}

// GetUserConversations lists the user's conversations, newest update first.
func (g *Gateway) GetUserConversations(ctx context.Context, userID domain.UserID) ([]*domain.Conversation, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	convs, err := g.store.ListConversationsByUser(ctx, userID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list", Err: err}
	}
	return convs, nil
}

// GetConversationByID returns domain.ErrConversationNotFound for unknown ids.
func (g *Gateway) GetConversationByID(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error) {
	if id == "" {
		return nil, domain.ErrConversationNotFound
	}
	conv, err := g.store.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			return nil, err
		}
		return nil, &domain.PersistenceError{Op: "get", Err: err}
	}
	return conv, nil
}

// DeleteConversation reports whether a conversation was removed.
func (g *Gateway) DeleteConversation(ctx context.Context, id domain.ConversationID) (bool, error) {
	if id == "" {
		return false, nil
	}
	if err := g.store.DeleteConversation(ctx, id); err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			return false, nil
		}
		return false, &domain.PersistenceError{Op: "delete", Err: err}
	}
	observability.LoggerFromContext(ctx).Info("conversation deleted", "conversation_id", id)
	return true, nil
}

// truncate cuts s to at most limit characters.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

