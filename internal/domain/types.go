package domain

import "time"

type ConversationID string
type UserID string

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Timestamp = time.Time

// User is the authenticated owner of persisted conversations.
type User struct {
	ID          UserID
	Email       string
	DisplayName string
}
