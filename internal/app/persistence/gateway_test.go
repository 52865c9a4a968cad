package persistence_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/PabloGalante/codexa/internal/adapters/storage/memory"
	"github.com/PabloGalante/codexa/internal/app/persistence"
	"github.com/PabloGalante/codexa/internal/domain"
)

const snippet = "function add(a, b) {\n  return a + b;\n}"

type brokenStore struct {
	domain.ConversationStore
}

func (brokenStore) CreateConversation(context.Context, *domain.Conversation) (domain.ConversationID, error) {
	return "", errors.New("quota exceeded")
}

func TestCreateAndGetConversation(t *testing.T) {
	ctx := context.Background()
	gw := persistence.NewGateway(memory.NewConversationStore())

	id, err := gw.CreateConversation(ctx, "u1", snippet, "Add function", "Adds two numbers.")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if id == "" {
		t.Fatalf("expected conversation id")
	}

	conv, err := gw.GetConversationByID(ctx, id)
	if err != nil {
		t.Fatalf("GetConversationByID failed: %v", err)
	}
	if conv.UserID != "u1" || conv.Title != "Add function" || conv.OriginalCode != snippet {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(conv.Messages))
	}
	if conv.Messages[0].Role != domain.RoleUser || conv.Messages[0].Text() != snippet {
		t.Fatalf("unexpected first message: %+v", conv.Messages[0])
	}
	if conv.Messages[1].Role != domain.RoleModel || conv.Messages[1].Text() != "Adds two numbers." {
		t.Fatalf("unexpected second message: %+v", conv.Messages[1])
	}

	ok, err := gw.UpdateConversation(ctx, id, "why?", "because.")
	if err != nil || !ok {
		t.Fatalf("UpdateConversation = %v, %v", ok, err)
	}
	conv, _ = gw.GetConversationByID(ctx, id)
	if len(conv.Messages) != 4 {
		t.Fatalf("expected 4 messages after update, got %d", len(conv.Messages))
	}
}

func TestCreateConversationRejections(t *testing.T) {
	ctx := context.Background()
	store := memory.NewConversationStore()
	gw := persistence.NewGateway(store)

	tests := []struct {
		name   string
		userID domain.UserID
		code   string
	}{
		{name: "anonymous", userID: "", code: snippet},
		{name: "not code", userID: "u1", code: "hello there, how are you today"},
		{name: "too short", userID: "u1", code: "x=1;"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, err := gw.CreateConversation(ctx, tc.userID, tc.code, "t", "r")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != "" {
				t.Fatalf("expected no conversation, got %q", id)
			}
		})
	}

	convs, _ := store.ListConversationsByUser(ctx, "u1")
	if len(convs) != 0 {
		t.Fatalf("expected no writes, got %d conversations", len(convs))
	}
}

func TestCreateConversationTruncates(t *testing.T) {
	ctx := context.Background()
	gw := persistence.NewGateway(memory.NewConversationStore())

	long := "const s = \"" + strings.Repeat("é", persistence.MaxStoredText) + "\";"
	id, err := gw.CreateConversation(ctx, "u1", long, "t", strings.Repeat("r", persistence.MaxStoredText+10))
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	conv, _ := gw.GetConversationByID(ctx, id)
	if n := utf8.RuneCountInString(conv.OriginalCode); n != persistence.MaxStoredText {
		t.Fatalf("expected original code truncated to %d runes, got %d", persistence.MaxStoredText, n)
	}
	if !utf8.ValidString(conv.OriginalCode) {
		t.Fatalf("truncation split a rune")
	}
	if n := len(conv.Messages[1].Text()); n != persistence.MaxStoredText {
		t.Fatalf("expected reply truncated to %d, got %d", persistence.MaxStoredText, n)
	}

	ok, err := gw.UpdateConversation(ctx, id, strings.Repeat("q", persistence.MaxStoredQuestion+1), "a")
	if err != nil || !ok {
		t.Fatalf("UpdateConversation = %v, %v", ok, err)
	}
	conv, _ = gw.GetConversationByID(ctx, id)
	if n := len(conv.Messages[2].Text()); n != persistence.MaxStoredQuestion {
		t.Fatalf("expected question truncated to %d, got %d", persistence.MaxStoredQuestion, n)
	}
}

func TestUpdateAndDeleteMissing(t *testing.T) {
	ctx := context.Background()
	gw := persistence.NewGateway(memory.NewConversationStore())

	for _, id := range []domain.ConversationID{"", "missing"} {
		ok, err := gw.UpdateConversation(ctx, id, "q", "a")
		if err != nil || ok {
			t.Fatalf("UpdateConversation(%q) = %v, %v; want false, nil", id, ok, err)
		}
		ok, err = gw.DeleteConversation(ctx, id)
		if err != nil || ok {
			t.Fatalf("DeleteConversation(%q) = %v, %v; want false, nil", id, ok, err)
		}
	}

	if _, err := gw.GetConversationByID(ctx, "missing"); !errors.Is(err, domain.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if _, err := gw.GetUserConversations(ctx, ""); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestStoreFailureIsPersistenceError(t *testing.T) {
	gw := persistence.NewGateway(brokenStore{})

	_, err := gw.CreateConversation(context.Background(), "u1", snippet, "t", "r")
	var perr *domain.PersistenceError
	if !errors.As(err, &perr) || perr.Op != "create" {
		t.Fatalf("expected create PersistenceError, got %v", err)
	}
}
