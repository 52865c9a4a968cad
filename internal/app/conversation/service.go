package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/PabloGalante/codexa/internal/app/background"
	"github.com/PabloGalante/codexa/internal/app/classify"
	"github.com/PabloGalante/codexa/internal/app/identity"
	"github.com/PabloGalante/codexa/internal/app/persistence"
	"github.com/PabloGalante/codexa/internal/domain"
	"github.com/PabloGalante/codexa/internal/observability"
)

type Service struct {
	llm      domain.LLMClient
	gateway  *persistence.Gateway
	identity *identity.Context
	tasks    *background.Runner
	now      func() time.Time
}

func NewService(
	llm domain.LLMClient,
	gateway *persistence.Gateway,
	identity *identity.Context,
	tasks *background.Runner,
) *Service {
	return &Service{
		llm:      llm,
		gateway:  gateway,
		identity: identity,
		tasks:    tasks,
		now:      time.Now,
	}
}

type OutcomeKind string

const (
	OutcomeExplained OutcomeKind = "explained"
	OutcomeNotCode   OutcomeKind = "not_code"
)

// Detection tells who decided the input was not code.
type Detection string

const (
	DetectedLocally    Detection = "local"
	DetectedByEndpoint Detection = "endpoint"
)

type ExplanationOutcome struct {
	Kind OutcomeKind
	// Detection is only set for OutcomeNotCode.
	Detection Detection
	// Text is the explanation, or the message to show for not-code input.
	Text string
	// Conversation is the new in-memory conversation for OutcomeExplained:
	// [snippet (user), explanation (model)] with the placeholder title.
	Conversation *domain.Conversation
}

// BackgroundResult is what the detached title/persist task produced.
// ConversationID is empty when nothing was saved.
type BackgroundResult struct {
	Title          string
	ConversationID domain.ConversationID
}

type ExplainInput struct {
	Snippet string
	// OnBackground, if set, is called from the background task once the
	// title is known and the conversation has (or has not) been saved.
	OnBackground func(context.Context, BackgroundResult)
}

// RequestExplanation runs the explanation pipeline for one snippet.
func (s *Service) RequestExplanation(ctx context.Context, in ExplainInput) (*ExplanationOutcome, error) {
	log := observability.LoggerFromContext(ctx).With("snippet_len", len(in.Snippet))

	if !classify.IsLikelyCode(in.Snippet) {
		log.Info("input rejected by classifier")
		return &ExplanationOutcome{
			Kind:      OutcomeNotCode,
			Detection: DetectedLocally,
			Text:      NotCodeMessage,
		}, nil
	}

	log.Info("requesting explanation")

	reply, err := s.llm.GenerateContent(ctx, []domain.Message{
		domain.NewTextMessage(domain.RoleUser, ExplainPrompt(in.Snippet)),
	})
	if err != nil {
		log.Error("explanation request failed", "error", err)
		return nil, err
	}

	// The prompt allows a blank answer for non-code input.
	if strings.TrimSpace(reply) == "" {
		log.Info("endpoint returned a blank explanation")
		return &ExplanationOutcome{
			Kind:      OutcomeNotCode,
			Detection: DetectedByEndpoint,
			Text:      NotCodeMessage,
		}, nil
	}
	if isNotCodeReply(reply) {
		log.Info("endpoint reported input is not code")
		return &ExplanationOutcome{
			Kind:      OutcomeNotCode,
			Detection: DetectedByEndpoint,
			Text:      reply,
		}, nil
	}

	now := s.now()
	user := domain.NewTextMessage(domain.RoleUser, in.Snippet)
	user.CreatedAt = now
	model := domain.NewTextMessage(domain.RoleModel, reply)
	model.CreatedAt = now

	userID := s.identity.UserID()
	conv := &domain.Conversation{
		UserID:       userID,
		Title:        PlaceholderTitle,
		OriginalCode: in.Snippet,
		Messages:     []domain.Message{user, model},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.tasks.Go(ctx, "title-and-save", func(ctx context.Context) error {
		title := s.GenerateTitle(ctx, in.Snippet)

		id, err := s.gateway.CreateConversation(ctx, userID, in.Snippet, title, reply)
		if in.OnBackground != nil {
			in.OnBackground(ctx, BackgroundResult{Title: title, ConversationID: id})
		}
		return err
	})

	log.Info("explanation completed")

	return &ExplanationOutcome{
		Kind:         OutcomeExplained,
		Text:         reply,
		Conversation: conv,
	}, nil
}

// GenerateTitle asks for a short title. Any failure yields PlaceholderTitle.
func (s *Service) GenerateTitle(ctx context.Context, snippet string) string {
	log := observability.LoggerFromContext(ctx)

	reply, err := s.llm.GenerateContent(ctx, []domain.Message{
		domain.NewTextMessage(domain.RoleUser, TitlePrompt(snippet)),
	})
	if err != nil {
		log.Error("title generation failed", "error", err)
		return PlaceholderTitle
	}

	title := cleanTitle(reply)
	if title == "" {
		log.Warn("title generation returned no usable text")
		return PlaceholderTitle
	}
	return title
}

type FollowUpInput struct {
	// ConversationID is empty for conversations that were never saved.
	ConversationID domain.ConversationID
	Messages       []domain.Message
	Question       string
}

// AskFollowUp resubmits the whole transcript plus the new question and
// returns the extended transcript.
//
// On failure the returned transcript still ends with the unanswered question.
// A blank question is a no-op.
func (s *Service) AskFollowUp(ctx context.Context, in FollowUpInput) ([]domain.Message, error) {
	msgs := domain.CloneMessages(in.Messages)

	question := in.Question
	if strings.TrimSpace(question) == "" {
		return msgs, nil
	}

	log := observability.LoggerFromContext(ctx).With(
		"conversation_id", in.ConversationID,
		"message_count", len(msgs),
	)
	log.Info("sending follow-up")

	user := domain.NewTextMessage(domain.RoleUser, WithFollowUpInstruction(question))
	user.CreatedAt = s.now()
	msgs = append(msgs, user)

	reply, err := s.llm.GenerateContent(ctx, msgs)
	if err != nil {
		log.Error("follow-up request failed", "error", err)
		return msgs, err
	}

	model := domain.NewTextMessage(domain.RoleModel, reply)
	model.CreatedAt = s.now()
	msgs = append(msgs, model)

	if in.ConversationID != "" {
		id := in.ConversationID
		s.tasks.Go(ctx, "save-follow-up", func(ctx context.Context) error {
			_, err := s.gateway.UpdateConversation(ctx, id, question, reply)
			return err
		})
	}

	log.Info("follow-up completed")
	return msgs, nil
}

// SaveExchanges persists the completed (user, model) pairs of msgs on an
// already saved conversation, in order. It covers follow-ups answered before
// the conversation had an id. Unpaired user messages are skipped.
func (s *Service) SaveExchanges(ctx context.Context, id domain.ConversationID, msgs []domain.Message) {
	if id == "" {
		return
	}

	var pairs [][2]string
	for i := 0; i+1 < len(msgs); i++ {
		if msgs[i].Role == domain.RoleUser && msgs[i+1].Role == domain.RoleModel {
			pairs = append(pairs, [2]string{StripFollowUpInstruction(msgs[i].Text()), msgs[i+1].Text()})
			i++
		}
	}
	if len(pairs) == 0 {
		return
	}

	s.tasks.Go(ctx, "save-exchanges", func(ctx context.Context) error {
		for _, p := range pairs {
			if _, err := s.gateway.UpdateConversation(ctx, id, p[0], p[1]); err != nil {
				return err
			}
		}
		return nil
	})
}
