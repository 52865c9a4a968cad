package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PabloGalante/codexa/internal/domain"
	"github.com/PabloGalante/codexa/internal/observability"
)

// RESTClient calls the generateContent method of the Generative Language
// API directly over HTTP with an API key.
type RESTClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
}

// RESTConfig configures a RESTClient. Timeout 0 means no client timeout;
// the request context still applies.
type RESTConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func NewRESTClient(cfg RESTConfig) (*RESTClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: rest client requires an api key")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm: rest client requires a model")
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("llm: invalid base url %q: %w", cfg.BaseURL, err)
	}

	return &RESTClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		endpoint:   base + "/v1beta/models/" + url.PathEscape(cfg.Model) + ":generateContent",
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}, nil
}

type wirePart struct {
	Text string `json:"text"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type generateRequest struct {
	Contents []wireContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content      *wireContent `json:"content"`
		FinishReason string       `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GenerateContent implements domain.LLMClient.
func (c *RESTClient) GenerateContent(ctx context.Context, contents []domain.Message) (string, error) {
	log := observability.LoggerFromContext(ctx).With("model", c.model, "turns", len(contents))

	body, err := json.Marshal(toWire(contents))
	if err != nil {
		return "", fmt.Errorf("llm: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?key="+url.QueryEscape(c.apiKey), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		err = redact(err, c.apiKey)
		log.Error("generate content request failed", "error", err)
		return "", &domain.NetworkError{Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "", &domain.NetworkError{Err: err}
	}
	log.Debug("generate content response", "status", res.StatusCode, "elapsed", time.Since(start))

	return parseResponse(res.StatusCode, raw)
}

func toWire(contents []domain.Message) generateRequest {
	req := generateRequest{Contents: make([]wireContent, 0, len(contents))}
	for _, m := range contents {
		wc := wireContent{Role: string(m.Role)}
		for _, p := range m.Parts {
			wc.Parts = append(wc.Parts, wirePart{Text: p.Text})
		}
		req.Contents = append(req.Contents, wc)
	}
	return req
}

func parseResponse(status int, raw []byte) (string, error) {
	var res generateResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		if status/100 != 2 {
			return "", &domain.UpstreamError{Message: http.StatusText(status), StatusCode: status}
		}
		return "", &domain.UpstreamError{Message: "malformed response: " + err.Error(), StatusCode: status}
	}

	if res.Error != nil {
		code := res.Error.Code
		if code == 0 {
			code = status
		}
		return "", &domain.UpstreamError{Message: res.Error.Message, StatusCode: code}
	}
	if status/100 != 2 {
		return "", &domain.UpstreamError{Message: http.StatusText(status), StatusCode: status}
	}

	if len(res.Candidates) == 0 {
		return "", &domain.UpstreamError{Message: "response has no candidates", StatusCode: status}
	}
	cand := res.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", &domain.UpstreamError{
			Message:    fmt.Sprintf("response has no content (finish reason %s)", cand.FinishReason),
			StatusCode: status,
		}
	}

	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

// redact keeps the api key out of logs and user-facing errors; url.Error
// includes the full request URL.
func redact(err error, key string) error {
	msg := err.Error()
	if key == "" {
		return err
	}
	msg = strings.ReplaceAll(msg, url.QueryEscape(key), "REDACTED")
	msg = strings.ReplaceAll(msg, key, "REDACTED")
	if msg == err.Error() {
		return err
	}
	return &redactedError{msg: msg, err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
