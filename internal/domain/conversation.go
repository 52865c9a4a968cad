package domain

// Part is a single piece of message content. Only text parts exist.
type Part struct {
	Text string `json:"text"`
}

// Message is one turn of a conversation transcript.
//
// Index 0 of a transcript is always the original snippet (user), index 1 the
// first explanation (model); later indices are (user, model) follow-up pairs.
type Message struct {
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt Timestamp `json:"-"`
}

// NewTextMessage builds a single-part message.
func NewTextMessage(role Role, text string) Message {
	return Message{
		Role:  role,
		Parts: []Part{{Text: text}},
	}
}

// Text returns the text of the first part, or "" for an empty message.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return ""
	}
	return m.Parts[0].Text
}

// Conversation is a code snippet plus its explanation thread.
type Conversation struct {
	// ID is empty until the conversation has been persisted.
	ID ConversationID
	// UserID is empty for anonymous sessions.
	UserID       UserID
	Title        string
	OriginalCode string
	Messages     []Message
	CreatedAt    Timestamp
	UpdatedAt    Timestamp
}

// Clone returns a deep copy so callers can hand out conversations without
// sharing the message slice.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = CloneMessages(c.Messages)
	return &out
}

// CloneMessages copies a transcript including the parts of each message.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		out[i].Parts = append([]Part(nil), m.Parts...)
	}
	return out
}
