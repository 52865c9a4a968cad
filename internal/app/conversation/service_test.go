package conversation_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/PabloGalante/codexa/internal/adapters/auth"
	"github.com/PabloGalante/codexa/internal/adapters/llm"
	"github.com/PabloGalante/codexa/internal/adapters/storage/memory"
	"github.com/PabloGalante/codexa/internal/app/background"
	"github.com/PabloGalante/codexa/internal/app/conversation"
	"github.com/PabloGalante/codexa/internal/app/identity"
	"github.com/PabloGalante/codexa/internal/app/persistence"
	"github.com/PabloGalante/codexa/internal/domain"
)

const snippet = "for (let i = 0; i < 10; i++) {\n  console.log(i);\n}"

type fixture struct {
	llm      *llm.MockLLM
	store    *memory.ConversationStore
	identity *identity.Context
	runner   *background.Runner
	svc      *conversation.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		llm:      llm.NewMockLLM(),
		store:    memory.NewConversationStore(),
		identity: identity.New(auth.NewStaticVerifier()),
		runner:   background.NewRunner(8),
	}
	f.svc = conversation.NewService(f.llm, persistence.NewGateway(f.store), f.identity, f.runner)
	return f
}

func TestRequestExplanationPersistsForSignedInUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.identity.SignIn(ctx, "u1"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	f.llm.Enqueue("**Loop**\n- Prints 0 to 9.", "\"Counting Loop\"")

	var (
		mu     sync.Mutex
		result conversation.BackgroundResult
	)
	out, err := f.svc.RequestExplanation(ctx, conversation.ExplainInput{
		Snippet: snippet,
		OnBackground: func(_ context.Context, r conversation.BackgroundResult) {
			mu.Lock()
			result = r
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("RequestExplanation failed: %v", err)
	}
	if out.Kind != conversation.OutcomeExplained {
		t.Fatalf("expected explained outcome, got %q", out.Kind)
	}
	if out.Conversation.Title != conversation.PlaceholderTitle {
		t.Fatalf("expected placeholder title before background work, got %q", out.Conversation.Title)
	}
	if got := len(out.Conversation.Messages); got != 2 {
		t.Fatalf("expected 2 messages, got %d", got)
	}

	f.runner.Wait()

	mu.Lock()
	defer mu.Unlock()
	if result.Title != "Counting Loop" {
		t.Fatalf("expected generated title, got %q", result.Title)
	}
	if result.ConversationID == "" {
		t.Fatalf("expected conversation to be saved")
	}

	saved, err := f.store.GetConversation(ctx, result.ConversationID)
	if err != nil {
		t.Fatalf("saved conversation not found: %v", err)
	}
	if saved.Title != "Counting Loop" || saved.OriginalCode != snippet {
		t.Fatalf("unexpected saved conversation: %+v", saved)
	}
}

func TestRequestExplanationAnonymousDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var result conversation.BackgroundResult
	_, err := f.svc.RequestExplanation(ctx, conversation.ExplainInput{
		Snippet:      snippet,
		OnBackground: func(_ context.Context, r conversation.BackgroundResult) { result = r },
	})
	if err != nil {
		t.Fatalf("RequestExplanation failed: %v", err)
	}
	f.runner.Wait()

	if result.ConversationID != "" {
		t.Fatalf("anonymous session must not be saved, got id %q", result.ConversationID)
	}
	if result.Title == "" {
		t.Fatalf("expected a title even without saving")
	}
}

func TestRequestExplanationNotCode(t *testing.T) {
	ctx := context.Background()

	t.Run("local", func(t *testing.T) {
		f := newFixture(t)
		out, err := f.svc.RequestExplanation(ctx, conversation.ExplainInput{Snippet: "just some words here"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Kind != conversation.OutcomeNotCode || out.Detection != conversation.DetectedLocally {
			t.Fatalf("expected local not-code outcome, got %+v", out)
		}
		if f.llm.Calls() != 0 {
			t.Fatalf("expected no endpoint call, got %d", f.llm.Calls())
		}
	})

	t.Run("endpoint", func(t *testing.T) {
		f := newFixture(t)
		reply := "This Doesn't Appear To Be Code, it is a recipe."
		f.llm.Enqueue(reply)

		out, err := f.svc.RequestExplanation(ctx, conversation.ExplainInput{Snippet: snippet})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Kind != conversation.OutcomeNotCode || out.Detection != conversation.DetectedByEndpoint {
			t.Fatalf("expected endpoint not-code outcome, got %+v", out)
		}
		if out.Text != reply {
			t.Fatalf("expected reply verbatim, got %q", out.Text)
		}
		f.runner.Wait()
		if f.llm.Calls() != 1 {
			t.Fatalf("not-code outcome must not start title generation, got %d calls", f.llm.Calls())
		}
	})
}

func TestRequestExplanationUpstreamError(t *testing.T) {
	f := newFixture(t)
	f.llm.FailWith(&domain.UpstreamError{Message: "API key not valid", StatusCode: 400})

	_, err := f.svc.RequestExplanation(context.Background(), conversation.ExplainInput{Snippet: snippet})
	var upstream *domain.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
}

func TestGenerateTitleFallsBack(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	f.llm.FailWith(errors.New("offline"))
	if got := f.svc.GenerateTitle(ctx, snippet); got != conversation.PlaceholderTitle {
		t.Fatalf("expected placeholder on failure, got %q", got)
	}

	f = newFixture(t)
	f.llm.Enqueue("**An extremely long title that goes on and on and on past fifty characters**")
	got := f.svc.GenerateTitle(ctx, snippet)
	if len([]rune(got)) > 50 {
		t.Fatalf("title longer than 50 characters: %q", got)
	}

	if prompt := f.llm.Requests()[0][0].Text(); !strings.HasSuffix(prompt, snippet) {
		t.Fatalf("expected title prompt to end with the snippet, got %q", prompt)
	}
}

func TestAskFollowUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.identity.SignIn(ctx, "u1"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	id, err := persistence.NewGateway(f.store).CreateConversation(ctx, "u1", snippet, "Loop", "Prints numbers.")
	if err != nil {
		t.Fatalf("seeding conversation: %v", err)
	}

	transcript := []domain.Message{
		domain.NewTextMessage(domain.RoleUser, snippet),
		domain.NewTextMessage(domain.RoleModel, "Prints numbers."),
	}

	msgs, err := f.svc.AskFollowUp(ctx, conversation.FollowUpInput{
		ConversationID: id,
		Messages:       transcript,
		Question:       "what does line 2 do?",
	})
	if err != nil {
		t.Fatalf("AskFollowUp failed: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[2].Role != domain.RoleUser {
		t.Fatalf("expected user role at index 2, got %q", msgs[2].Role)
	}
	if got := conversation.StripFollowUpInstruction(msgs[2].Text()); got != "what does line 2 do?" {
		t.Fatalf("unexpected displayed question %q", got)
	}
	if msgs[3].Role != domain.RoleModel {
		t.Fatalf("expected model role at index 3, got %q", msgs[3].Role)
	}

	sent := f.llm.Requests()[0]
	if len(sent) != 3 {
		t.Fatalf("expected full transcript resubmission of 3 messages, got %d", len(sent))
	}
	for i, m := range sent {
		want := domain.RoleUser
		if i%2 == 1 {
			want = domain.RoleModel
		}
		if m.Role != want {
			t.Fatalf("message %d: expected role %q, got %q", i, want, m.Role)
		}
	}

	f.runner.Wait()
	saved, err := f.store.GetConversation(ctx, id)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if len(saved.Messages) != 4 {
		t.Fatalf("expected persisted pair, got %d messages", len(saved.Messages))
	}
	if saved.Messages[2].Text() != "what does line 2 do?" {
		t.Fatalf("expected stored question without instruction, got %q", saved.Messages[2].Text())
	}
}

func TestAskFollowUpFailureKeepsQuestion(t *testing.T) {
	f := newFixture(t)
	f.llm.FailWith(&domain.NetworkError{Err: errors.New("connection reset")})

	transcript := []domain.Message{
		domain.NewTextMessage(domain.RoleUser, snippet),
		domain.NewTextMessage(domain.RoleModel, "Prints numbers."),
	}
	msgs, err := f.svc.AskFollowUp(context.Background(), conversation.FollowUpInput{
		Messages: transcript,
		Question: "why?",
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(msgs) != 3 || msgs[2].Role != domain.RoleUser {
		t.Fatalf("expected trailing unanswered question, got %d messages", len(msgs))
	}
	if len(transcript) != 2 {
		t.Fatalf("input transcript must not be modified")
	}
}

func TestAskFollowUpBlankQuestion(t *testing.T) {
	f := newFixture(t)
	transcript := []domain.Message{domain.NewTextMessage(domain.RoleUser, snippet)}

	msgs, err := f.svc.AskFollowUp(context.Background(), conversation.FollowUpInput{
		Messages: transcript,
		Question: "   ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 || f.llm.Calls() != 0 {
		t.Fatalf("blank question must be a no-op")
	}
}

func TestStripFollowUpInstruction(t *testing.T) {
	q := "is this O(n)?"
	if got := conversation.StripFollowUpInstruction(conversation.WithFollowUpInstruction(q)); got != q {
		t.Fatalf("got %q, want %q", got, q)
	}
	if got := conversation.StripFollowUpInstruction(q); got != q {
		t.Fatalf("plain text changed: %q", got)
	}
}

func TestAskFollowUpKeepsQuestionAsTyped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := persistence.NewGateway(f.store).CreateConversation(ctx, "u1", snippet, "Loop", "Prints numbers.")
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}

	const question = "  why i++?\n"
	msgs, err := f.svc.AskFollowUp(ctx, conversation.FollowUpInput{
		ConversationID: id,
		Messages: []domain.Message{
			domain.NewTextMessage(domain.RoleUser, snippet),
			domain.NewTextMessage(domain.RoleModel, "Prints numbers."),
		},
		Question: question,
	})
	if err != nil {
		t.Fatalf("AskFollowUp failed: %v", err)
	}
	if got := conversation.StripFollowUpInstruction(msgs[2].Text()); got != question {
		t.Fatalf("displayed question %q, want %q", got, question)
	}

	f.runner.Wait()
	saved, err := f.store.GetConversation(ctx, id)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got := saved.Messages[2].Text(); got != question {
		t.Fatalf("stored question %q, want %q", got, question)
	}
}

func TestSaveExchanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := persistence.NewGateway(f.store).CreateConversation(ctx, "u1", snippet, "Loop", "Prints numbers.")
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}

	f.svc.SaveExchanges(ctx, id, []domain.Message{
		domain.NewTextMessage(domain.RoleUser, conversation.WithFollowUpInstruction("unanswered")),
		domain.NewTextMessage(domain.RoleUser, conversation.WithFollowUpInstruction("first")),
		domain.NewTextMessage(domain.RoleModel, "answer one"),
		domain.NewTextMessage(domain.RoleUser, conversation.WithFollowUpInstruction("second")),
		domain.NewTextMessage(domain.RoleModel, "answer two"),
	})
	f.svc.SaveExchanges(ctx, "", []domain.Message{
		domain.NewTextMessage(domain.RoleUser, "ignored"),
		domain.NewTextMessage(domain.RoleModel, "ignored"),
	})
	f.runner.Wait()

	saved, err := f.store.GetConversation(ctx, id)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	var got []string
	for _, m := range saved.Messages[2:] {
		got = append(got, m.Text())
	}
	want := []string{"first", "answer one", "second", "answer two"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("stored exchanges %q, want %q", got, want)
	}
}
