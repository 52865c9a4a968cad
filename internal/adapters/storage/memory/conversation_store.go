package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/codexa/internal/domain"
)

// ConversationStore is an in-memory domain.ConversationStore.
// It is NOT persistent and is only suitable for development / local mode.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[domain.ConversationID]*domain.Conversation
	now           func() time.Time
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[domain.ConversationID]*domain.Conversation),
		now:           time.Now,
	}
}

func (s *ConversationStore) CreateConversation(_ context.Context, conv *domain.Conversation) (domain.ConversationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := conv.Clone()
	stored.ID = domain.ConversationID(uuid.NewString())
	now := s.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.conversations[stored.ID] = stored
	return stored.ID, nil
}

func (s *ConversationStore) AppendExchange(_ context.Context, id domain.ConversationID, user, model domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return domain.ErrConversationNotFound
	}

	conv.Messages = append(conv.Messages, domain.CloneMessages([]domain.Message{user, model})...)
	conv.UpdatedAt = s.now()
	return nil
}

func (s *ConversationStore) ListConversationsByUser(_ context.Context, userID domain.UserID) ([]*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Conversation
	for _, conv := range s.conversations {
		if conv.UserID == userID {
			result = append(result, conv.Clone())
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (s *ConversationStore) GetConversation(_ context.Context, id domain.ConversationID) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return conv.Clone(), nil
}

func (s *ConversationStore) DeleteConversation(_ context.Context, id domain.ConversationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return domain.ErrConversationNotFound
	}
	delete(s.conversations, id)
	return nil
}
