// Package handler exposes the JSON API consumed by the training frontend:
// authentication, module browsing, progress tracking, timed test sessions,
// and the admin surface.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/delphitvs/trainhub/internal/i18n"
	"github.com/delphitvs/trainhub/internal/model"
	"github.com/delphitvs/trainhub/internal/session"
	"github.com/delphitvs/trainhub/internal/store"
	"github.com/delphitvs/trainhub/internal/translate"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store      *store.Store
	sessions   *session.Manager
	translator *translate.Translator
	config     model.ServerConfig
}

// New creates a new Handler. The translator may be nil when no translation
// backend is configured; the translate endpoint then returns 503.
func New(s *store.Store, m *session.Manager, tr *translate.Translator, cfg model.ServerConfig) *Handler {
	return &Handler{store: s, sessions: m, translator: tr, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/login", h.handleLogin)
	r.Post("/api/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/api/me", h.handleMe)
		r.Get("/api/modules", h.handleListModules)
		r.Get("/api/modules/{moduleID}", h.handleGetModule)
		r.Post("/api/modules/{moduleID}/steps/{stepID}/complete", h.handleCompleteStep)
		r.Get("/api/progress", h.handleProgress)
		r.Get("/api/attempts", h.handleOwnAttempts)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.UserRoleTrainee))
			r.Post("/api/tests/{testID}/start", h.handleStartTest)
			r.Get("/api/tests/{testID}/session", h.handleSessionState)
			r.Post("/api/tests/{testID}/answer", h.handleAnswer)
			r.Post("/api/tests/{testID}/time", h.handleTimeOnQuestion)
			r.Post("/api/tests/{testID}/pause", h.handlePause)
			r.Post("/api/tests/{testID}/resume", h.handleResume)
			r.Post("/api/tests/{testID}/submit", h.handleSubmit)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))
			r.Get("/api/admin/users", h.handleAdminListUsers)
			r.Post("/api/admin/users", h.handleAdminCreateUser)
			r.Put("/api/admin/users/{userID}", h.handleAdminUpdateUser)
			r.Post("/api/admin/users/{userID}/toggle", h.handleAdminToggleUser)
			r.Get("/api/admin/attempts", h.handleAdminListAttempts)
			r.Post("/api/admin/attempts/abandon", h.handleAdminAbandonStale)
			r.Delete("/api/admin/attempts/{attemptID}", h.handleAdminResetAttempt)
			r.Post("/api/admin/content/import", h.handleAdminImportContent)
			r.Get("/api/admin/audit", h.handleAdminAudit)
			r.Post("/api/admin/translate", h.handleAdminTranslate)
			r.Get("/api/admin/export", h.handleAdminExport)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError sends a localized error message resolved from a message ID.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, map[string]string{"error": appI18n.T(r.Context(), msgID)})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, user)
}

// moduleSummary is the catalog listing entry: module metadata plus the
// requester's completion state.
type moduleSummary struct {
	Module         model.Module `json:"module"`
	CompletedSteps int          `json:"completed_steps"`
	TotalSteps     int          `json:"total_steps"`
	Completed      bool         `json:"completed"`
}

func (h *Handler) handleListModules(w http.ResponseWriter, r *http.Request) {
	modules, err := h.store.ListModules()
	if err != nil {
		slog.Error("list modules", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	user := model.UserFromContext(r.Context())
	progress, err := h.store.ListProgressByUser(user.ID)
	if err != nil {
		slog.Error("list progress", "user_id", user.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	byModule := make(map[string]model.UserProgress, len(progress))
	for _, p := range progress {
		byModule[p.ModuleID] = p
	}

	summaries := make([]moduleSummary, 0, len(modules))
	for _, m := range modules {
		p := byModule[m.ID]
		summaries = append(summaries, moduleSummary{
			Module:         m,
			CompletedSteps: len(p.CompletedSteps),
			TotalSteps:     len(m.Steps),
			Completed:      p.CompletedAt != nil,
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) handleGetModule(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.GetModule(chi.URLParam(r, "moduleID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if m == nil {
		h.writeError(w, r, http.StatusNotFound, "ModuleNotFound")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) handleCompleteStep(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")
	stepID := chi.URLParam(r, "stepID")

	m, err := h.store.GetModule(moduleID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if m == nil {
		h.writeError(w, r, http.StatusNotFound, "ModuleNotFound")
		return
	}
	known := false
	for _, s := range m.Steps {
		if s.ID == stepID {
			known = true
			break
		}
	}
	if !known {
		http.Error(w, "unknown step", http.StatusNotFound)
		return
	}

	user := model.UserFromContext(r.Context())
	p, err := h.store.CompleteStep(user.ID, *m, stepID)
	if err != nil {
		slog.Error("complete step", "user_id", user.ID, "module_id", moduleID, "step_id", stepID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	progress, err := h.store.ListProgressByUser(user.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if progress == nil {
		progress = []model.UserProgress{}
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *Handler) handleOwnAttempts(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	attempts, err := h.store.ListAttemptsByUser(user.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *Handler) handleStartTest(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")
	user := model.UserFromContext(r.Context())

	sess, err := h.sessions.Start(testID, user.ID)
	if err != nil {
		if errors.Is(err, session.ErrTestNotFound) {
			h.writeError(w, r, http.StatusNotFound, "TestNotFound")
			return
		}
		slog.Error("start test", "test_id", testID, "user_id", user.ID, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Background ticker: countdown and periodic autosave for the lifetime
	// of the attempt, detached from the request context. Run is a no-op if
	// this session already has one.
	go sess.Run(context.Background())

	questions := sess.Questions()
	writeJSON(w, http.StatusOK, startResponse{
		State:     sess.State(),
		Questions: presentQuestions(questions),
		Message:   appI18n.Tp(r.Context(), "QuestionsAvailable", len(questions)),
	})
}

// startResponse pairs the session state with the sanitized question list.
type startResponse struct {
	State     session.State       `json:"state"`
	Questions []presentedQuestion `json:"questions"`
	Message   string              `json:"message"`
}

// presentedQuestion is a question as shown to the trainee: correct answers
// and reference text stripped.
type presentedQuestion struct {
	ID           string                 `json:"id"`
	Kind         model.QuestionKind     `json:"kind"`
	Text         model.LocalizedText    `json:"text"`
	Options      model.LocalizedOptions `json:"options,omitempty"`
	Hint         model.LocalizedText    `json:"hint,omitempty"`
	ImageURL     string                 `json:"image_url,omitempty"`
	OptionImages []string               `json:"option_images,omitempty"`
}

func presentQuestions(questions []model.Question) []presentedQuestion {
	out := make([]presentedQuestion, 0, len(questions))
	for _, q := range questions {
		out = append(out, presentedQuestion{
			ID:           q.ID,
			Kind:         q.Kind,
			Text:         q.Text,
			Options:      q.Options,
			Hint:         q.Hint,
			ImageURL:     q.ImageURL,
			OptionImages: q.OptionImages,
		})
	}
	return out
}

// activeSession resolves the caller's tracked session for the test, or
// writes a 404 and returns nil.
func (h *Handler) activeSession(w http.ResponseWriter, r *http.Request) *session.Session {
	testID := chi.URLParam(r, "testID")
	user := model.UserFromContext(r.Context())
	sess := h.sessions.Get(testID, user.ID)
	if sess == nil {
		h.writeError(w, r, http.StatusNotFound, "TestNotFound")
		return nil
	}
	return sess
}

func (h *Handler) handleSessionState(w http.ResponseWriter, r *http.Request) {
	sess := h.activeSession(w, r)
	if sess == nil {
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

type answerRequest struct {
	QuestionID string   `json:"question_id"`
	Kind       string   `json:"kind"`
	Value      string   `json:"value,omitempty"`
	Values     []string `json:"values,omitempty"`
}

func (req answerRequest) answer() model.Answer {
	switch req.Kind {
	case "single":
		return model.SingleChoice(req.Value)
	case "multi":
		return model.MultiChoice(req.Values)
	case "text":
		return model.FreeText(req.Value)
	}
	return nil
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	sess := h.activeSession(w, r)
	if sess == nil {
		return
	}

	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ans := req.answer()
	if ans == nil {
		http.Error(w, "unknown answer kind", http.StatusBadRequest)
		return
	}

	if err := sess.RecordAnswer(req.QuestionID, ans); err != nil {
		if errors.Is(err, session.ErrFinalized) {
			h.writeError(w, r, http.StatusConflict, "TestAlreadySubmitted")
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

type timeRequest struct {
	QuestionID string `json:"question_id"`
	Seconds    int    `json:"seconds"`
}

func (h *Handler) handleTimeOnQuestion(w http.ResponseWriter, r *http.Request) {
	sess := h.activeSession(w, r)
	if sess == nil {
		return
	}

	var req timeRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := sess.RecordTimeOnQuestion(req.QuestionID, req.Seconds); err != nil {
		if errors.Is(err, session.ErrFinalized) {
			h.writeError(w, r, http.StatusConflict, "TestAlreadySubmitted")
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	sess := h.activeSession(w, r)
	if sess == nil {
		return
	}
	sess.Pause()
	writeJSON(w, http.StatusOK, sess.State())
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	sess := h.activeSession(w, r)
	if sess == nil {
		return
	}
	sess.Resume()
	writeJSON(w, http.StatusOK, sess.State())
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess := h.activeSession(w, r)
	if sess == nil {
		return
	}

	attempt, err := sess.Submit(false)
	if err != nil {
		// The attempt is still authoritative; flag the stale storage.
		slog.Warn("submit persisted with errors", "attempt_id", attempt.ID, "error", err)
	}

	verdict := "TestFailed"
	if attempt.Passed {
		verdict = "TestPassed"
	}
	writeJSON(w, http.StatusOK, submitResponse{
		State: sess.State(),
		Message: appI18n.T(r.Context(), verdict) + " " +
			appI18n.Td(r.Context(), "ScorePercent", map[string]any{"Score": attempt.Score}),
	})
}

// submitResponse is the final session state with a localized result line.
type submitResponse struct {
	session.State
	Message string `json:"message"`
}
