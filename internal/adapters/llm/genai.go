package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/PabloGalante/codexa/internal/domain"
	"github.com/PabloGalante/codexa/internal/observability"
)

// GenAIClient is a domain.LLMClient on top of the Google Gen AI SDK. It talks
// to the Gemini API when an API key is configured and to Vertex AI otherwise.
type GenAIClient struct {
	client    *genai.Client
	modelName string
	timeout   time.Duration
}

type GenAIConfig struct {
	APIKey    string
	ProjectID string
	Location  string
	Model     string
	// Timeout bounds every call; 0 leaves it to the caller's context.
	Timeout time.Duration
}

// NewGenAIClient creates a GenAIClient.
func NewGenAIClient(ctx context.Context, cfg GenAIConfig) (*GenAIClient, error) {
	cc := &genai.ClientConfig{}
	switch {
	case cfg.APIKey != "":
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	case cfg.ProjectID != "" && cfg.Location != "":
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.ProjectID
		cc.Location = cfg.Location
	default:
		return nil, errors.New("llm: genai client needs an api key or a gcp project and location")
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GenAIClient{
		client:    client,
		modelName: cfg.Model,
		timeout:   cfg.Timeout,
	}, nil
}

// GenerateContent implements domain.LLMClient.
func (g *GenAIClient) GenerateContent(ctx context.Context, contents []domain.Message) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	history := make([]*genai.Content, 0, len(contents))
	for _, m := range contents {
		role := genai.Role(genai.RoleUser)
		if m.Role == domain.RoleModel {
			role = genai.RoleModel
		}
		history = append(history, genai.NewContentFromText(m.Text(), role))
	}

	res, err := g.client.Models.GenerateContent(ctx, g.modelName, history, nil)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("genai generate content failed",
			"model", g.modelName, "error", err)
		return "", mapGenAIError(err)
	}

	if len(res.Candidates) == 0 {
		msg := "response has no candidates"
		if res.PromptFeedback != nil && res.PromptFeedback.BlockReason != "" {
			msg = fmt.Sprintf("prompt blocked (%s)", res.PromptFeedback.BlockReason)
		}
		return "", &domain.UpstreamError{Message: msg}
	}
	if c := res.Candidates[0]; c.Content == nil || len(c.Content.Parts) == 0 {
		return "", &domain.UpstreamError{
			Message: fmt.Sprintf("response has no content (finish reason %s)", c.FinishReason),
		}
	}

	return res.Text(), nil
}

func mapGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &domain.UpstreamError{Message: apiErr.Message, StatusCode: apiErr.Code}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &domain.UpstreamError{Message: apiErrPtr.Message, StatusCode: apiErrPtr.Code}
	}
	return &domain.NetworkError{Err: err}
}
