package history_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/PabloGalante/codexa/internal/adapters/auth"
	"github.com/PabloGalante/codexa/internal/adapters/storage/memory"
	"github.com/PabloGalante/codexa/internal/app/history"
	"github.com/PabloGalante/codexa/internal/app/identity"
	"github.com/PabloGalante/codexa/internal/app/persistence"
	"github.com/PabloGalante/codexa/internal/domain"
)

func newService(t *testing.T) (*history.Service, *persistence.Gateway, *identity.Context) {
	t.Helper()
	gw := persistence.NewGateway(memory.NewConversationStore())
	id := identity.New(auth.NewStaticVerifier())
	return history.NewService(gw, id), gw, id
}

func TestListSearchAndOwnership(t *testing.T) {
	ctx := context.Background()
	svc, gw, id := newService(t)

	if _, err := svc.List(ctx, ""); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	mustCreate := func(user domain.UserID, code, title string) domain.ConversationID {
		t.Helper()
		cid, err := gw.CreateConversation(ctx, user, code, title, "explanation")
		if err != nil || cid == "" {
			t.Fatalf("seeding %q: %q, %v", title, cid, err)
		}
		return cid
	}
	mustCreate("u1", "SELECT * FROM users;", "SQL Query")
	mustCreate("u1", "const sum = (a, b) => a + b;", "Arrow Sum")
	mustCreate("u2", "const secret = 1;", "Other User")

	if _, err := id.SignIn(ctx, "u1"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	all, err := svc.List(ctx, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 own conversations, got %d", len(all))
	}

	got, err := svc.List(ctx, "  ARROW ")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var titles []string
	for _, s := range got {
		titles = append(titles, s.Title)
	}
	if diff := cmp.Diff([]string{"Arrow Sum"}, titles); diff != "" {
		t.Fatalf("search by title mismatch (-want +got):\n%s", diff)
	}

	got, _ = svc.List(ctx, "from users")
	if len(got) != 1 || got[0].Title != "SQL Query" || got[0].MessageCount != 2 {
		t.Fatalf("search by code mismatch: %+v", got)
	}
}

func TestGetAndDeleteOwnership(t *testing.T) {
	ctx := context.Background()
	svc, gw, id := newService(t)

	foreign, _ := gw.CreateConversation(ctx, "u2", "let x = compute();", "Foreign", "r")
	own, _ := gw.CreateConversation(ctx, "u1", "let y = compute();", "Own", "r")

	if _, err := id.SignIn(ctx, "u1"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	if _, err := svc.Get(ctx, foreign); !errors.Is(err, domain.ErrConversationNotFound) {
		t.Fatalf("expected foreign conversation hidden, got %v", err)
	}
	if ok, err := svc.Delete(ctx, foreign); ok || !errors.Is(err, domain.ErrConversationNotFound) {
		t.Fatalf("expected foreign delete refused, got %v, %v", ok, err)
	}

	conv, err := svc.Get(ctx, own)
	if err != nil || conv.Title != "Own" {
		t.Fatalf("Get own = %+v, %v", conv, err)
	}
	if ok, err := svc.Delete(ctx, own); !ok || err != nil {
		t.Fatalf("Delete own = %v, %v", ok, err)
	}
	if _, err := svc.Get(ctx, own); !errors.Is(err, domain.ErrConversationNotFound) {
		t.Fatalf("expected deleted conversation gone, got %v", err)
	}
}

func TestExcerpt(t *testing.T) {
	short := "x := 1"
	if got := history.Excerpt(short); got != short {
		t.Fatalf("short code changed: %q", got)
	}

	long := strings.Repeat("a", 150)
	want := strings.Repeat("a", 100) + "..."
	if got := history.Excerpt(long); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{name: "zero", t: time.Time{}, want: "Unknown date"},
		{name: "today", t: time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC), want: "9:05 AM"},
		{name: "within a day", t: now.Add(-20 * time.Hour), want: "7:00 PM"},
		{name: "yesterday", t: now.Add(-30 * time.Hour), want: "Yesterday"},
		{name: "days ago", t: now.Add(-4 * 24 * time.Hour), want: "4 days ago"},
		{name: "same year", t: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), want: "Jan 2"},
		{name: "previous year", t: time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC), want: "Dec 25, 2024"},
		{name: "future", t: now.Add(time.Hour), want: "4:00 PM"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := history.FormatAge(tc.t, now); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
