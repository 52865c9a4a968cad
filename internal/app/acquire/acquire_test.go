package acquire_test

import (
	"context"
	"errors"
	"testing"

	"github.com/PabloGalante/codexa/internal/adapters/host"
	"github.com/PabloGalante/codexa/internal/app/acquire"
	"github.com/PabloGalante/codexa/internal/domain"
)

type failingReader struct{}

func (failingReader) ReadSelection(context.Context) (string, error) {
	return "", errors.New("no scripting access")
}

func TestAcquire(t *testing.T) {
	ctx := context.Background()
	bridge := host.NewBridge()
	a := acquire.New(bridge)

	if _, err := a.Acquire(ctx, acquire.FromSelection()); !errors.Is(err, domain.ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection for empty selection, got %v", err)
	}

	bridge.ReportSelection("const x = 1;")
	got, err := a.Acquire(ctx, acquire.FromSelection())
	if err != nil {
		t.Fatalf("Acquire selection: %v", err)
	}
	if got != "const x = 1;" {
		t.Fatalf("unexpected selection %q", got)
	}

	got, err = a.Acquire(ctx, acquire.FromText("  def f(): pass  "))
	if err != nil {
		t.Fatalf("Acquire manual: %v", err)
	}
	if got != "  def f(): pass  " {
		t.Fatalf("manual text must be returned raw, got %q", got)
	}

	if _, err := a.Acquire(ctx, acquire.FromText(" \n\t ")); !errors.Is(err, domain.ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection for blank manual text, got %v", err)
	}
}

func TestAcquireReaderFailure(t *testing.T) {
	a := acquire.New(failingReader{})
	_, err := a.Acquire(context.Background(), acquire.FromSelection())
	if err == nil || errors.Is(err, domain.ErrNoSelection) {
		t.Fatalf("expected wrapped reader error, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	if acquire.ParseKind(" Selection ") != acquire.KindSelection {
		t.Fatalf("expected selection kind")
	}
	if acquire.ParseKind("typed") != acquire.KindManual {
		t.Fatalf("expected manual kind for unknown input")
	}
}
