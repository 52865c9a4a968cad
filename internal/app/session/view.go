package session

import (
	"github.com/PabloGalante/codexa/internal/app/conversation"
	"github.com/PabloGalante/codexa/internal/app/render"
	"github.com/PabloGalante/codexa/internal/domain"
)

// View is a snapshot of the session for the popup.
type View struct {
	Mode            Mode              `json:"mode"`
	FollowUpView    bool              `json:"follow_up_view"`
	Analyzing       bool              `json:"analyzing"`
	LoadingResponse bool              `json:"loading_response"`
	FollowUpDraft   string            `json:"follow_up_draft"`
	Error           string            `json:"error,omitempty"`
	Notice          string            `json:"notice,omitempty"`
	User            *UserView         `json:"user,omitempty"`
	Conversation    *ConversationView `json:"conversation,omitempty"`
}

type UserView struct {
	ID          domain.UserID `json:"id"`
	Email       string        `json:"email,omitempty"`
	DisplayName string        `json:"display_name,omitempty"`
}

type ConversationView struct {
	ID           domain.ConversationID `json:"id,omitempty"`
	Title        string                `json:"title"`
	OriginalCode string                `json:"original_code"`
	Explanation  []render.Segment      `json:"explanation"`
	FollowUps    []DisplayMessage      `json:"follow_ups"`
}

// DisplayMessage is one follow-up bubble. User text has the follow-up
// instruction stripped.
type DisplayMessage struct {
	Role     domain.Role      `json:"role"`
	Text     string           `json:"text"`
	Segments []render.Segment `json:"segments"`
}

func (s *Session) View() View {
	s.mu.Lock()
	v := View{
		Mode:            s.mode,
		FollowUpView:    s.followUpView,
		Analyzing:       s.analyzing,
		LoadingResponse: s.loadingResponse,
		FollowUpDraft:   s.draft,
		Error:           s.errMsg,
		Notice:          s.notice,
	}
	conv := s.conv.Clone()
	s.mu.Unlock()

	if u, ok := s.identity.CurrentUser(); ok {
		v.User = &UserView{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName}
	}
	if conv != nil {
		v.Conversation = conversationView(conv)
	}
	return v
}

func conversationView(conv *domain.Conversation) *ConversationView {
	cv := &ConversationView{
		ID:           conv.ID,
		Title:        conv.Title,
		OriginalCode: conv.OriginalCode,
		FollowUps:    []DisplayMessage{},
	}
	if len(conv.Messages) > 1 {
		cv.Explanation = render.Block(conv.Messages[1].Text())
	}
	for _, m := range conv.Messages[min(2, len(conv.Messages)):] {
		text := m.Text()
		if m.Role == domain.RoleUser {
			text = conversation.StripFollowUpInstruction(text)
		}
		cv.FollowUps = append(cv.FollowUps, DisplayMessage{
			Role:     m.Role,
			Text:     text,
			Segments: render.Block(text),
		})
	}
	return cv
}
