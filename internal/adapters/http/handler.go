package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/PabloGalante/codexa/internal/adapters/host"
	"github.com/PabloGalante/codexa/internal/app/acquire"
	"github.com/PabloGalante/codexa/internal/app/history"
	"github.com/PabloGalante/codexa/internal/app/identity"
	"github.com/PabloGalante/codexa/internal/app/render"
	"github.com/PabloGalante/codexa/internal/app/session"
	"github.com/PabloGalante/codexa/internal/domain"
	"github.com/PabloGalante/codexa/internal/observability"
)

const maxBodyBytes = 1 << 20

type Server struct {
	session  *session.Session
	history  *history.Service
	identity *identity.Context
	bridge   *host.Bridge
}

type Deps struct {
	Session  *session.Session
	History  *history.Service
	Identity *identity.Context
	Bridge   *host.Bridge
	// AllowedOrigins are the popup origins (chrome-extension://<id>); "*"
	// allows any.
	AllowedOrigins []string
}

func NewServer(d Deps) http.Handler {
	s := &Server{
		session:  d.Session,
		history:  d.History,
		identity: d.Identity,
		bridge:   d.Bridge,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(withRequestContext)
	r.Use(middleware.Maybe(withLogging, func(r *http.Request) bool {
		return r.URL.Path != "/healthz"
	}))
	r.Use(middleware.Recoverer)
	r.Use(withCORS(d.AllowedOrigins))

	r.Get("/healthz", s.handleHealthz)

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Post("/selection", s.handleReportSelection)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/followups", s.handleFollowUp)
		r.Put("/followup-view", s.handleSetFollowUpView)
		r.Post("/followup-view/toggle", s.handleToggleFollowUpView)
		r.Put("/followup-draft", s.handleSetFollowUpDraft)
		r.Post("/reset", s.handleReset)
		r.Post("/conversations/{id}", s.handleLoadConversation)
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signin", s.handleSignIn)
		r.Post("/signout", s.handleSignOut)
	})

	r.Route("/conversations", func(r chi.Router) {
		r.Use(requireUser(s.identity))
		r.Get("/", s.handleListConversations)
		r.Get("/{id}", s.handleGetConversation)
		r.Delete("/{id}", s.handleDeleteConversation)
	})

	r.Post("/render", s.handleRender)

	return r
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type selectionRequest struct {
	Text string `json:"text"`
}

type analyzeRequest struct {
	Source string `json:"source"`
	Text   string `json:"text,omitempty"`
}

type followUpRequest struct {
	Question string `json:"question"`
}

type followUpViewRequest struct {
	Enabled *bool `json:"enabled"`
}

type draftRequest struct {
	Text string `json:"text"`
}

type signInRequest struct {
	IDToken string `json:"id_token"`
}

type renderRequest struct {
	Text string `json:"text"`
}

type renderResponse struct {
	Segments []render.Segment `json:"segments"`
}

type listConversationsResponse struct {
	Conversations []history.Summary `json:"conversations"`
}

type conversationResponse struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	OriginalCode string            `json:"original_code"`
	Messages     []messageResponse `json:"messages"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type messageResponse struct {
	Role      string     `json:"role"`
	Text      string     `json:"text"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// ─────────────────────────────────────────────
// Session handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.View())
}

func (s *Server) handleReportSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.bridge.ReportSelection(req.Text)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	src := acquire.FromText(req.Text)
	if acquire.ParseKind(req.Source) == acquire.KindSelection {
		src = acquire.FromSelection()
	}

	if err := s.session.Analyze(r.Context(), src); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.View())
}

func (s *Server) handleFollowUp(w http.ResponseWriter, r *http.Request) {
	var req followUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.session.AskFollowUp(r.Context(), req.Question); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.View())
}

func (s *Server) handleSetFollowUpView(w http.ResponseWriter, r *http.Request) {
	var req followUpViewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		badRequest(w, "enabled is required")
		return
	}
	s.session.SetFollowUpView(*req.Enabled)
	writeJSON(w, http.StatusOK, s.session.View())
}

func (s *Server) handleToggleFollowUpView(w http.ResponseWriter, _ *http.Request) {
	s.session.ToggleFollowUpView()
	writeJSON(w, http.StatusOK, s.session.View())
}

func (s *Server) handleSetFollowUpDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.session.SetFollowUpDraft(req.Text)
	writeJSON(w, http.StatusOK, s.session.View())
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.bridge.Clear()
	s.session.Reset()
	writeJSON(w, http.StatusOK, s.session.View())
}

func (s *Server) handleLoadConversation(w http.ResponseWriter, r *http.Request) {
	id := domain.ConversationID(chi.URLParam(r, "id"))
	if err := s.session.LoadConversation(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.View())
}

// ─────────────────────────────────────────────
// Auth handlers
// ─────────────────────────────────────────────

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		badRequest(w, "id_token is required")
		return
	}
	if _, err := s.session.SignIn(r.Context(), req.IDToken); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.View())
}

func (s *Server) handleSignOut(w http.ResponseWriter, _ *http.Request) {
	s.bridge.Clear()
	s.session.SignOut()
	writeJSON(w, http.StatusOK, s.session.View())
}

// ─────────────────────────────────────────────
// History handlers
// ─────────────────────────────────────────────

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.history.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listConversationsResponse{Conversations: summaries})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.history.Get(r.Context(), domain.ConversationID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationResponse(conv))
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	ok, err := s.history.Delete(r.Context(), domain.ConversationID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, domain.ErrConversationNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, renderResponse{Segments: render.Block(req.Text)})
}

// ─────────────────────────────────────────────
// Conversion Helpers
// ─────────────────────────────────────────────

func toConversationResponse(c *domain.Conversation) conversationResponse {
	resp := conversationResponse{
		ID:           string(c.ID),
		Title:        c.Title,
		OriginalCode: c.OriginalCode,
		Messages:     make([]messageResponse, 0, len(c.Messages)),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	for _, m := range c.Messages {
		mr := messageResponse{Role: string(m.Role), Text: m.Text()}
		if !m.CreatedAt.IsZero() {
			at := m.CreatedAt
			mr.CreatedAt = &at
		}
		resp.Messages = append(resp.Messages, mr)
	}
	return resp
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

// writeError maps request-level errors to status codes. Pipeline failures
// never get here; they are part of the session view.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	switch {
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrAnalysisInFlight),
		errors.Is(err, session.ErrFollowUpInFlight),
		errors.Is(err, session.ErrNoConversation),
		errors.Is(err, session.ErrSessionReset):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrConversationNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrInvalidToken):
		status, msg = http.StatusUnauthorized, domain.UserMessage(err)
		if errors.Is(err, domain.ErrInvalidToken) {
			msg = domain.ErrInvalidToken.Error()
		}
	default:
		observability.LoggerFromContext(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}

	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}
