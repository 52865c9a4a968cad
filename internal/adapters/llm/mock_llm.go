package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PabloGalante/codexa/internal/domain"
)

// MockLLM is the local-mode client. It answers from a queue of scripted
// replies and falls back to canned text when the queue is empty.
type MockLLM struct {
	mu       sync.Mutex
	replies  []string
	err      error
	calls    int
	requests [][]domain.Message
}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

// Enqueue adds replies returned in order by the next calls.
func (m *MockLLM) Enqueue(replies ...string) {
	m.mu.Lock()
	m.replies = append(m.replies, replies...)
	m.mu.Unlock()
}

// FailWith makes every following call fail with err (nil restores replies).
func (m *MockLLM) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Calls returns how many requests were made.
func (m *MockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns copies of every request's contents, oldest first.
func (m *MockLLM) Requests() [][]domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]domain.Message, len(m.requests))
	for i, r := range m.requests {
		out[i] = domain.CloneMessages(r)
	}
	return out
}

func (m *MockLLM) GenerateContent(ctx context.Context, contents []domain.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &domain.NetworkError{Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.requests = append(m.requests, domain.CloneMessages(contents))

	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) > 0 {
		reply := m.replies[0]
		m.replies = m.replies[1:]
		return reply, nil
	}
	return cannedReply(contents), nil
}

func cannedReply(contents []domain.Message) string {
	if len(contents) == 0 {
		return ""
	}
	last := contents[len(contents)-1].Text()

	switch {
	case strings.Contains(last, "short title"):
		return "Mock Code Snippet"
	case len(contents) > 2:
		return fmt.Sprintf("**Answer**\n- This is a mock answer to follow-up #%d.", len(contents)/2)
	default:
		return "**Overview**\n- This is a mock explanation.\n- It mentions `code` inline."
	}
}
