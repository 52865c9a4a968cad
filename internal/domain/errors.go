package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNoSelection          = errors.New("no text selected")
	ErrUnauthenticated      = errors.New("not signed in")
	ErrInvalidToken         = errors.New("invalid id token")
)

// UpstreamError is an error payload or malformed reply from the
// generative-language endpoint.
type UpstreamError struct {
	Message    string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Message)
	}
	return "upstream error: " + e.Message
}

// NetworkError is a request that never produced a reply.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "network failure: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps any failure of the document store. It is logged by
// the pipelines and never shown to the end user.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// UserMessage returns the text the popup shows for a pipeline failure.
func UserMessage(err error) string {
	var upstream *UpstreamError
	var network *NetworkError
	switch {
	case errors.As(err, &upstream):
		return upstream.Message
	case errors.As(err, &network):
		return "Network error: " + network.Err.Error()
	case errors.Is(err, ErrNoSelection):
		return "No text selected. Select a code snippet on the page or paste it manually."
	case errors.Is(err, ErrUnauthenticated):
		return "Please sign in first."
	default:
		return "Something went wrong. Please try again."
	}
}
