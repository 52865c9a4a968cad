// Package acquire obtains the snippet a session starts from: either the host
// page's current selection or text the user typed.
package acquire

import (
	"context"
	"fmt"
	"strings"

	"github.com/PabloGalante/codexa/internal/domain"
)

type Kind string

const (
	KindSelection Kind = "selection"
	KindManual    Kind = "manual"
)

// Source says where the snippet comes from.
type Source struct {
	Kind Kind
	Text string // only for KindManual
}

func FromSelection() Source {
	return Source{Kind: KindSelection}
}

func FromText(text string) Source {
	return Source{Kind: KindManual, Text: text}
}

// ParseKind maps a request field to a Kind; anything else is manual entry.
func ParseKind(s string) Kind {
	if strings.EqualFold(strings.TrimSpace(s), string(KindSelection)) {
		return KindSelection
	}
	return KindManual
}

type Acquirer struct {
	selection domain.SelectionReader
}

func New(selection domain.SelectionReader) *Acquirer {
	return &Acquirer{selection: selection}
}

// Acquire returns the raw snippet. An absent or blank result is
// domain.ErrNoSelection.
func (a *Acquirer) Acquire(ctx context.Context, src Source) (string, error) {
	var text string
	switch src.Kind {
	case KindSelection:
		if a.selection == nil {
			return "", domain.ErrNoSelection
		}
		sel, err := a.selection.ReadSelection(ctx)
		if err != nil {
			return "", fmt.Errorf("acquire: reading selection: %w", err)
		}
		text = sel
	default:
		text = src.Text
	}

	if strings.TrimSpace(text) == "" {
		return "", domain.ErrNoSelection
	}
	return text, nil
}
