package domain

import "context"

// LLMClient defines how the core application talks to the generative-language
// endpoint. Contents are sent in order, one request per call, no streaming.
//
// Implementations return *UpstreamError when the endpoint answers with an
// error payload or a malformed body, and *NetworkError when the request never
// completed.
type LLMClient interface {
	GenerateContent(ctx context.Context, contents []Message) (string, error)
}

// ConversationStore is the document store behind the persistence gateway.
// Stores assign ids and timestamps.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *Conversation) (ConversationID, error)
	// AppendExchange appends exactly one (user, model) pair and refreshes
	// UpdatedAt. Returns ErrConversationNotFound for unknown ids.
	AppendExchange(ctx context.Context, id ConversationID, user, model Message) error
	// ListConversationsByUser returns the user's conversations, most recently
	// updated first.
	ListConversationsByUser(ctx context.Context, userID UserID) ([]*Conversation, error)
	GetConversation(ctx context.Context, id ConversationID) (*Conversation, error)
	DeleteConversation(ctx context.Context, id ConversationID) error
}

// SelectionReader reads the current text selection of the host page.
type SelectionReader interface {
	ReadSelection(ctx context.Context) (string, error)
}

// TokenVerifier turns an ID token issued by the auth provider into a User.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, idToken string) (*User, error)
}
