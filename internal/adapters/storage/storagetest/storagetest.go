// Package storagetest holds the behaviour every domain.ConversationStore must
// have. Store packages run it from their own tests.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/PabloGalante/codexa/internal/domain"
)

// Run exercises store. Every call gets a fresh user id so stores backed by a
// shared database do not see each other's rows.
func Run(t *testing.T, store domain.ConversationStore) {
	t.Helper()

	t.Run("create and get", func(t *testing.T) { testCreateAndGet(t, store) })
	t.Run("append exchange", func(t *testing.T) { testAppendExchange(t, store) })
	t.Run("list by user", func(t *testing.T) { testListByUser(t, store) })
	t.Run("delete", func(t *testing.T) { testDelete(t, store) })
	t.Run("not found", func(t *testing.T) { testNotFound(t, store) })
}

func uniqueUser(t *testing.T) domain.UserID {
	return domain.UserID(t.Name() + "-" + time.Now().Format("150405.000000000"))
}

func texts(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ":" + m.Text()
	}
	return out
}

func seed(t *testing.T, store domain.ConversationStore, user domain.UserID, title string) domain.ConversationID {
	t.Helper()
	id, err := store.CreateConversation(context.Background(), &domain.Conversation{
		UserID:       user,
		Title:        title,
		OriginalCode: "const a = 1;",
		Messages: []domain.Message{
			domain.NewTextMessage(domain.RoleUser, "const a = 1;"),
			domain.NewTextMessage(domain.RoleModel, "Declares a."),
		},
	})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if id == "" {
		t.Fatalf("store returned an empty id")
	}
	return id
}

func testCreateAndGet(t *testing.T, store domain.ConversationStore) {
	user := uniqueUser(t)
	id := seed(t, store, user, "Declaration")

	got, err := store.GetConversation(context.Background(), id)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.ID != id || got.UserID != user || got.Title != "Declaration" || got.OriginalCode != "const a = 1;" {
		t.Fatalf("unexpected conversation: %+v", got)
	}
	if diff := cmp.Diff([]string{"user:const a = 1;", "model:Declares a."}, texts(got.Messages)); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatalf("store must assign UpdatedAt")
	}
}

func testAppendExchange(t *testing.T, store domain.ConversationStore) {
	ctx := context.Background()
	id := seed(t, store, uniqueUser(t), "Append")

	q := domain.NewTextMessage(domain.RoleUser, "why?")
	a := domain.NewTextMessage(domain.RoleModel, "because.")
	for range 2 {
		if err := store.AppendExchange(ctx, id, q, a); err != nil {
			t.Fatalf("AppendExchange failed: %v", err)
		}
	}

	got, err := store.GetConversation(ctx, id)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	want := []string{
		"user:const a = 1;", "model:Declares a.",
		"user:why?", "model:because.",
		"user:why?", "model:because.",
	}
	if diff := cmp.Diff(want, texts(got.Messages)); diff != "" {
		t.Fatalf("identical exchanges must both be kept (-want +got):\n%s", diff)
	}
}

func testListByUser(t *testing.T, store domain.ConversationStore) {
	ctx := context.Background()
	user := uniqueUser(t)

	older := seed(t, store, user, "older")
	time.Sleep(10 * time.Millisecond)
	seed(t, store, user, "newer")
	seed(t, store, user+"-other", "foreign")

	time.Sleep(10 * time.Millisecond)
	err := store.AppendExchange(ctx, older,
		domain.NewTextMessage(domain.RoleUser, "q"),
		domain.NewTextMessage(domain.RoleModel, "a"))
	if err != nil {
		t.Fatalf("AppendExchange failed: %v", err)
	}

	convs, err := store.ListConversationsByUser(ctx, user)
	if err != nil {
		t.Fatalf("ListConversationsByUser failed: %v", err)
	}
	var titles []string
	for _, c := range convs {
		titles = append(titles, c.Title)
	}
	if diff := cmp.Diff([]string{"older", "newer"}, titles); diff != "" {
		t.Fatalf("expected most recently updated first (-want +got):\n%s", diff)
	}
}

func testDelete(t *testing.T, store domain.ConversationStore) {
	ctx := context.Background()
	id := seed(t, store, uniqueUser(t), "Delete me")

	if err := store.DeleteConversation(ctx, id); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}
	if _, err := store.GetConversation(ctx, id); !errors.Is(err, domain.ErrConversationNotFound) {
		t.Fatalf("expected deleted conversation to be gone, got %v", err)
	}
}

func testNotFound(t *testing.T, store domain.ConversationStore) {
	ctx := context.Background()
	const missing = domain.ConversationID("00000000-0000-0000-0000-000000000000")

	if _, err := store.GetConversation(ctx, missing); !errors.Is(err, domain.ErrConversationNotFound) {
		t.Fatalf("get: expected ErrConversationNotFound, got %v", err)
	}
	err := store.AppendExchange(ctx, missing,
		domain.NewTextMessage(domain.RoleUser, "q"),
		domain.NewTextMessage(domain.RoleModel, "a"))
	if !errors.Is(err, domain.ErrConversationNotFound) {
		t.Fatalf("append: expected ErrConversationNotFound, got %v", err)
	}
	if err := store.DeleteConversation(ctx, missing); !errors.Is(err, domain.ErrConversationNotFound) {
		t.Fatalf("delete: expected ErrConversationNotFound, got %v", err)
	}
}
