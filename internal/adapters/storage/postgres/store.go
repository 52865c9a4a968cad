// Package postgres is a domain.ConversationStore on PostgreSQL through gorm.
// Messages live in a jsonb column, mirroring the document layout of the
// firestore store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/PabloGalante/codexa/internal/domain"
)

type messageRow struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type ConversationModel struct {
	ID           string                          `gorm:"primaryKey;size:36;column:id"`
	UserID       string                          `gorm:"index:idx_conversations_user_updated,priority:1;size:128;not null;column:user_id"`
	Title        string                          `gorm:"type:text;not null;column:title"`
	OriginalCode string                          `gorm:"type:text;not null;column:original_code"`
	Messages     datatypes.JSONSlice[messageRow] `gorm:"type:jsonb;not null;column:messages"`
	CreatedAt    time.Time                       `gorm:"autoCreateTime;not null;column:created_at"`
	UpdatedAt    time.Time                       `gorm:"index:idx_conversations_user_updated,priority:2,sort:desc;autoUpdateTime;column:updated_at"`
}

func (ConversationModel) TableName() string {
	return "conversations"
}

func (m *ConversationModel) toDomain() *domain.Conversation {
	conv := &domain.Conversation{
		ID:           domain.ConversationID(m.ID),
		UserID:       domain.UserID(m.UserID),
		Title:        m.Title,
		OriginalCode: m.OriginalCode,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	for _, r := range m.Messages {
		msg := domain.NewTextMessage(domain.Role(r.Role), r.Content)
		msg.CreatedAt = r.Timestamp
		conv.Messages = append(conv.Messages, msg)
	}
	return conv
}

func toRow(m domain.Message) messageRow {
	return messageRow{Role: string(m.Role), Content: m.Text(), Timestamp: m.CreatedAt}
}

type Store struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the conversations table.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	return NewStore(db)
}

func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&ConversationModel{}); err != nil {
		return nil, fmt.Errorf("migrating conversations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) CreateConversation(ctx context.Context, conv *domain.Conversation) (domain.ConversationID, error) {
	rows := make([]messageRow, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		rows = append(rows, toRow(m))
	}

	model := &ConversationModel{
		ID:           uuid.NewString(),
		UserID:       string(conv.UserID),
		Title:        conv.Title,
		OriginalCode: conv.OriginalCode,
		Messages:     datatypes.NewJSONSlice(rows),
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	return domain.ConversationID(model.ID), nil
}

func (s *Store) AppendExchange(ctx context.Context, id domain.ConversationID, user, model domain.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m ConversationModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", string(id)).
			First(&m).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrConversationNotFound
			}
			return fmt.Errorf("failed to load conversation: %w", err)
		}

		m.Messages = append(m.Messages, toRow(user), toRow(model))
		if err := tx.Model(&m).Updates(map[string]interface{}{
			"messages":   m.Messages,
			"updated_at": time.Now(),
		}).Error; err != nil {
			return fmt.Errorf("failed to append exchange: %w", err)
		}
		return nil
	})
}

func (s *Store) ListConversationsByUser(ctx context.Context, userID domain.UserID) ([]*domain.Conversation, error) {
	var models []*ConversationModel
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", string(userID)).
		Order("updated_at desc").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	out := make([]*domain.Conversation, len(models))
	for i, m := range models {
		out[i] = m.toDomain()
	}
	return out, nil
}

func (s *Store) GetConversation(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error) {
	var m ConversationModel
	if err := s.db.WithContext(ctx).Where("id = ?", string(id)).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Store) DeleteConversation(ctx context.Context, id domain.ConversationID) error {
	res := s.db.WithContext(ctx).Where("id = ?", string(id)).Delete(&ConversationModel{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
