// Package rediscache puts a read-through Redis cache in front of another
// domain.ConversationStore. Only single-conversation reads are cached; every
// write to a conversation drops its entry.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/PabloGalante/codexa/internal/domain"
	"github.com/PabloGalante/codexa/internal/observability"
)

type cachedMessage struct {
	Role      domain.Role `json:"role"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"created_at"`
}

type cachedConversation struct {
	ID           domain.ConversationID `json:"id"`
	UserID       domain.UserID         `json:"user_id"`
	Title        string                `json:"title"`
	OriginalCode string                `json:"original_code"`
	Messages     []cachedMessage       `json:"messages"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

type Store struct {
	next   domain.ConversationStore
	client *redis.Client
	ttl    time.Duration
}

// NewClient connects to addr and checks the connection.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func New(client *redis.Client, next domain.ConversationStore, ttl time.Duration) *Store {
	return &Store{next: next, client: client, ttl: ttl}
}

func key(id domain.ConversationID) string {
	return fmt.Sprintf("conversation:%s", id)
}

func (s *Store) CreateConversation(ctx context.Context, conv *domain.Conversation) (domain.ConversationID, error) {
	return s.next.CreateConversation(ctx, conv)
}

func (s *Store) AppendExchange(ctx context.Context, id domain.ConversationID, user, model domain.Message) error {
	if err := s.next.AppendExchange(ctx, id, user, model); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Store) ListConversationsByUser(ctx context.Context, userID domain.UserID) ([]*domain.Conversation, error) {
	return s.next.ListConversationsByUser(ctx, userID)
}

func (s *Store) GetConversation(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error) {
	log := observability.LoggerFromContext(ctx).With("conversation_id", id)

	data, err := s.client.Get(ctx, key(id)).Bytes()
	switch {
	case err == nil:
		var cached cachedConversation
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached.toDomain(), nil
		}
		log.Warn("dropping undecodable cache entry")
		s.invalidate(ctx, id)
	case !errors.Is(err, redis.Nil):
		log.Warn("redis get failed, reading through", "error", err)
	}

	conv, err := s.next.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(fromDomain(conv)); err == nil {
		if err := s.client.Set(ctx, key(id), data, s.ttl).Err(); err != nil {
			log.Warn("redis set failed", "error", err)
		}
	}
	return conv, nil
}

func (s *Store) DeleteConversation(ctx context.Context, id domain.ConversationID) error {
	if err := s.next.DeleteConversation(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Store) invalidate(ctx context.Context, id domain.ConversationID) {
	if err := s.client.Del(ctx, key(id)).Err(); err != nil {
		observability.LoggerFromContext(ctx).Warn("redis del failed",
			"conversation_id", id, "error", err)
	}
}

func fromDomain(c *domain.Conversation) cachedConversation {
	out := cachedConversation{
		ID:           c.ID,
		UserID:       c.UserID,
		Title:        c.Title,
		OriginalCode: c.OriginalCode,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Messages:     make([]cachedMessage, 0, len(c.Messages)),
	}
	for _, m := range c.Messages {
		out.Messages = append(out.Messages, cachedMessage{Role: m.Role, Text: m.Text(), CreatedAt: m.CreatedAt})
	}
	return out
}

func (c cachedConversation) toDomain() *domain.Conversation {
	conv := &domain.Conversation{
		ID:           c.ID,
		UserID:       c.UserID,
		Title:        c.Title,
		OriginalCode: c.OriginalCode,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	for _, m := range c.Messages {
		msg := domain.NewTextMessage(m.Role, m.Text)
		msg.CreatedAt = m.CreatedAt
		conv.Messages = append(conv.Messages, msg)
	}
	return conv
}
