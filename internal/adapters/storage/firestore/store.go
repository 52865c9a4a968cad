package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/codexa/internal/domain"
	"github.com/PabloGalante/codexa/internal/observability"
)

const collection = "conversations"

// Stored role of model messages, kept compatible with documents written by
// the browser extension.
const assistantRole = "assistant"

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore conversation store on an existing client.
func NewStore(client *firestore.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("firestore client is required for Firestore store")
	}
	return &Store{client: client}, nil
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) conversationsCol() *firestore.CollectionRef {
	return s.client.Collection(collection)
}

func (s *Store) conversationDoc(id domain.ConversationID) *firestore.DocumentRef {
	return s.conversationsCol().Doc(string(id))
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type conversationDoc struct {
	UserID       string       `firestore:"userId"`
	Title        string       `firestore:"title"`
	OriginalCode string       `firestore:"originalCode"`
	Messages     []messageDoc `firestore:"messages"`
	CreatedAt    time.Time    `firestore:"createdAt"`
	UpdatedAt    time.Time    `firestore:"updatedAt"`
}

type messageDoc struct {
	Role      string `firestore:"role"`
	Content   string `firestore:"content"`
	Timestamp string `firestore:"timestamp"`
}

func toMessageDoc(m domain.Message) messageDoc {
	role := string(m.Role)
	if m.Role == domain.RoleModel {
		role = assistantRole
	}
	ts := m.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return messageDoc{
		Role:      role,
		Content:   m.Text(),
		Timestamp: ts.UTC().Format(timestampLayout),
	}
}

func (d messageDoc) toDomain() domain.Message {
	role := domain.Role(d.Role)
	if d.Role == assistantRole {
		role = domain.RoleModel
	}
	msg := domain.NewTextMessage(role, d.Content)
	if ts, err := time.Parse(time.RFC3339Nano, d.Timestamp); err == nil {
		msg.CreatedAt = ts
	}
	return msg
}

func (d conversationDoc) toDomain(id string) *domain.Conversation {
	conv := &domain.Conversation{
		ID:           domain.ConversationID(id),
		UserID:       domain.UserID(d.UserID),
		Title:        d.Title,
		OriginalCode: d.OriginalCode,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	for _, m := range d.Messages {
		conv.Messages = append(conv.Messages, m.toDomain())
	}
	return conv
}

func decode(snap *firestore.DocumentSnapshot) (*domain.Conversation, error) {
	var doc conversationDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode conversationDoc: %w", err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// ─────────────────────────────────────────
// ConversationStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateConversation(ctx context.Context, conv *domain.Conversation) (domain.ConversationID, error) {
	msgs := make([]messageDoc, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		msgs = append(msgs, toMessageDoc(m))
	}

	ref, _, err := s.conversationsCol().Add(ctx, map[string]interface{}{
		"userId":       string(conv.UserID),
		"title":        conv.Title,
		"originalCode": conv.OriginalCode,
		"messages":     msgs,
		"createdAt":    firestore.ServerTimestamp,
		"updatedAt":    firestore.ServerTimestamp,
	})
	if err != nil {
		return "", fmt.Errorf("firestore CreateConversation: %w", err)
	}
	return domain.ConversationID(ref.ID), nil
}

// AppendExchange reads and rewrites the message array in a transaction.
// arrayUnion would drop a pair identical to an earlier one.
func (s *Store) AppendExchange(ctx context.Context, id domain.ConversationID, user, model domain.Message) error {
	ref := s.conversationDoc(id)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var doc conversationDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode conversationDoc: %w", err)
		}

		msgs := append(doc.Messages, toMessageDoc(user), toMessageDoc(model))
		return tx.Update(ref, []firestore.Update{
			{Path: "messages", Value: msgs},
			{Path: "updatedAt", Value: firestore.ServerTimestamp},
		})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.ErrConversationNotFound
		}
		return fmt.Errorf("firestore AppendExchange: %w", err)
	}
	return nil
}

func (s *Store) ListConversationsByUser(ctx context.Context, userID domain.UserID) ([]*domain.Conversation, error) {
	byUser := s.conversationsCol().Where("userId", "==", string(userID))

	out, err := listWithFallback(ctx,
		func(ctx context.Context) ([]*domain.Conversation, error) {
			return collect(ctx, byUser.OrderBy("updatedAt", firestore.Desc))
		},
		func(ctx context.Context) ([]*domain.Conversation, error) {
			return collect(ctx, byUser)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("firestore ListConversationsByUser: %w", err)
	}
	return out, nil
}

type listFunc func(ctx context.Context) ([]*domain.Conversation, error)

// listWithFallback runs the ordered query. When the composite (userId,
// updatedAt) index is missing it runs the unordered one and sorts
// client-side, most recently updated first.
func listWithFallback(ctx context.Context, ordered, unordered listFunc) ([]*domain.Conversation, error) {
	out, err := ordered(ctx)
	if status.Code(err) != codes.FailedPrecondition {
		return out, err
	}

	observability.LoggerFromContext(ctx).Warn("conversations index unavailable, sorting client-side",
		"error", err)

	out, err = unordered(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func collect(ctx context.Context, q firestore.Query) ([]*domain.Conversation, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Conversation
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, err
		}

		conv, err := decode(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, nil
}

func (s *Store) GetConversation(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error) {
	snap, err := s.conversationDoc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrConversationNotFound
		}
		return nil, fmt.Errorf("firestore GetConversation: %w", err)
	}
	return decode(snap)
}

func (s *Store) DeleteConversation(ctx context.Context, id domain.ConversationID) error {
	ref := s.conversationDoc(id)
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.ErrConversationNotFound
		}
		return fmt.Errorf("firestore DeleteConversation: %w", err)
	}
	return nil
}
