// Package session is the state machine behind the popup.
//
//	initial --analyze--> analyzing --explanation resolved--> creating
//	initial --open saved conversation--> loaded
//	any --reset / sign-out--> initial
//
// Remote failures never move the machine: they are recorded in the view and
// the mode stays where it was. Errors returned by the methods are about the
// request itself (wrong state, not signed in, unknown conversation).
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/PabloGalante/codexa/internal/app/acquire"
	"github.com/PabloGalante/codexa/internal/app/conversation"
	"github.com/PabloGalante/codexa/internal/app/identity"
	"github.com/PabloGalante/codexa/internal/app/persistence"
	"github.com/PabloGalante/codexa/internal/domain"
	"github.com/PabloGalante/codexa/internal/observability"
)

type Mode string

const (
	ModeInitial   Mode = "initial"
	ModeAnalyzing Mode = "analyzing"
	ModeCreating  Mode = "creating"
	ModeLoaded    Mode = "loaded"
)

var (
	ErrInvalidTransition = errors.New("session: invalid transition")
	ErrAnalysisInFlight  = errors.New("session: analysis already in flight")
	ErrFollowUpInFlight  = errors.New("session: follow-up already in flight")
	ErrNoConversation    = errors.New("session: no conversation")
	// ErrSessionReset is returned when the session was reset while a request
	// was in flight; its result was dropped.
	ErrSessionReset = errors.New("session: reset while request was in flight")
)

type Session struct {
	identity *identity.Context
	acquirer *acquire.Acquirer
	pipeline *conversation.Service
	gateway  *persistence.Gateway

	mu              sync.Mutex
	mode            Mode
	conv            *domain.Conversation
	followUpView    bool
	analyzing       bool
	loadingResponse bool
	draft           string
	errMsg          string
	notice          string
	// generation is bumped on every reset; results carrying an older
	// generation are discarded.
	generation uint64
}

func New(
	identity *identity.Context,
	acquirer *acquire.Acquirer,
	pipeline *conversation.Service,
	gateway *persistence.Gateway,
) *Session {
	return &Session{
		identity: identity,
		acquirer: acquirer,
		pipeline: pipeline,
		gateway:  gateway,
		mode:     ModeInitial,
	}
}

// Analyze acquires a snippet and runs the explanation pipeline.
//
// It is allowed from initial, and from analyzing when a previous attempt
// failed (retry).
func (s *Session) Analyze(ctx context.Context, src acquire.Source) error {
	s.mu.Lock()
	if s.analyzing {
		s.mu.Unlock()
		return ErrAnalysisInFlight
	}
	if s.mode != ModeInitial && s.mode != ModeAnalyzing {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	s.mode = ModeAnalyzing
	s.analyzing = true
	s.errMsg = ""
	s.notice = ""
	gen := s.generation
	s.mu.Unlock()

	log := observability.LoggerFromContext(ctx).With("source", src.Kind)

	snippet, err := s.acquirer.Acquire(ctx, src)
	if err != nil {
		log.Info("acquisition failed", "error", err)
		return s.finishAnalysis(gen, nil, err)
	}

	outcome, err := s.pipeline.RequestExplanation(ctx, conversation.ExplainInput{
		Snippet:      snippet,
		OnBackground: s.backgroundResultFor(gen),
	})
	return s.finishAnalysis(gen, outcome, err)
}

func (s *Session) finishAnalysis(gen uint64, outcome *conversation.ExplanationOutcome, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return ErrSessionReset
	}
	s.analyzing = false

	if err != nil {
		s.errMsg = domain.UserMessage(err)
		return nil
	}

	s.mode = ModeCreating
	switch outcome.Kind {
	case conversation.OutcomeExplained:
		s.conv = outcome.Conversation
	default:
		s.conv = nil
		s.notice = outcome.Text
	}
	return nil
}

// backgroundResultFor applies the generated title and saved id to the
// conversation, unless the session moved on since. Follow-ups answered before
// the id arrived are saved then.
func (s *Session) backgroundResultFor(gen uint64) func(context.Context, conversation.BackgroundResult) {
	return func(ctx context.Context, r conversation.BackgroundResult) {
		s.mu.Lock()
		if gen != s.generation || s.conv == nil || s.conv.ID != "" {
			s.mu.Unlock()
			return
		}
		s.conv.Title = r.Title
		s.conv.ID = r.ConversationID
		var pending []domain.Message
		if len(s.conv.Messages) > 2 {
			pending = domain.CloneMessages(s.conv.Messages[2:])
		}
		s.mu.Unlock()

		s.pipeline.SaveExchanges(ctx, r.ConversationID, pending)
	}
}

// AskFollowUp runs the follow-up pipeline on the current conversation. Only
// one follow-up may be in flight.
func (s *Session) AskFollowUp(ctx context.Context, question string) error {
	if strings.TrimSpace(question) == "" {
		return nil
	}

	s.mu.Lock()
	if s.conv == nil || (s.mode != ModeCreating && s.mode != ModeLoaded) {
		s.mu.Unlock()
		return ErrNoConversation
	}
	if s.loadingResponse {
		s.mu.Unlock()
		return ErrFollowUpInFlight
	}
	in := conversation.FollowUpInput{
		ConversationID: s.conv.ID,
		Messages:       domain.CloneMessages(s.conv.Messages),
		Question:       question,
	}
	s.loadingResponse = true
	s.followUpView = true
	s.errMsg = ""
	gen := s.generation
	s.mu.Unlock()

	msgs, err := s.pipeline.AskFollowUp(ctx, in)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.conv == nil {
		return ErrSessionReset
	}
	s.loadingResponse = false
	s.conv.Messages = msgs
	if err != nil {
		s.errMsg = domain.UserMessage(err)
		return nil
	}
	s.draft = ""
	// The id landed while this follow-up was in flight.
	if in.ConversationID == "" && s.conv.ID != "" {
		s.pipeline.SaveExchanges(ctx, s.conv.ID, msgs[len(msgs)-2:])
	}
	return nil
}

// LoadConversation opens a saved conversation of the signed-in user. It never
// calls the explanation pipeline.
func (s *Session) LoadConversation(ctx context.Context, id domain.ConversationID) error {
	userID := s.identity.UserID()
	if userID == "" {
		return domain.ErrUnauthenticated
	}

	conv, err := s.gateway.GetConversationByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			return err
		}
		observability.LoggerFromContext(ctx).Error("loading conversation failed",
			"conversation_id", id, "error", err)
		s.mu.Lock()
		s.errMsg = domain.UserMessage(err)
		s.mu.Unlock()
		return nil
	}
	if conv.UserID != userID {
		return domain.ErrConversationNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	s.mode = ModeLoaded
	s.conv = conv
	return nil
}

// Reset returns to initial and clears everything. In-flight requests finish
// but their results are dropped.
func (s *Session) Reset() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
}

func (s *Session) resetLocked() {
	s.generation++
	s.mode = ModeInitial
	s.conv = nil
	s.followUpView = false
	s.analyzing = false
	s.loadingResponse = false
	s.draft = ""
	s.errMsg = ""
	s.notice = ""
}

func (s *Session) SignIn(ctx context.Context, idToken string) (*domain.User, error) {
	return s.identity.SignIn(ctx, idToken)
}

// SignOut forgets the user and resets the session.
func (s *Session) SignOut() {
	s.identity.SignOut()
	s.Reset()
}

// ToggleFollowUpView flips between the first explanation and the follow-up
// thread and returns the new value.
func (s *Session) ToggleFollowUpView() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followUpView = !s.followUpView
	return s.followUpView
}

func (s *Session) SetFollowUpView(enabled bool) {
	s.mu.Lock()
	s.followUpView = enabled
	s.mu.Unlock()
}

func (s *Session) SetFollowUpDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}
