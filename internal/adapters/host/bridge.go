// Package host bridges the extension's scripting capability to the backend.
//
// The popup runs `window.getSelection()?.toString()` in the active tab and
// reports the result here; the session reads it back when the user chooses
// to analyze the selection.
package host

import (
	"context"
	"sync"
)

type Bridge struct {
	mu        sync.RWMutex
	selection string
}

func NewBridge() *Bridge {
	return &Bridge{}
}

// ReportSelection records the latest selection of the active tab. An empty
// string clears it.
func (b *Bridge) ReportSelection(text string) {
	b.mu.Lock()
	b.selection = text
	b.mu.Unlock()
}

// ReadSelection implements domain.SelectionReader.
func (b *Bridge) ReadSelection(_ context.Context) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.selection, nil
}

// Clear forgets the reported selection.
func (b *Bridge) Clear() {
	b.ReportSelection("")
}
