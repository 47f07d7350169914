package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/delphitvs/trainhub/internal/model"
)

func (h *Handler) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		slog.Error("failed to list users", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

func (h *Handler) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "username and password required", http.StatusBadRequest)
		return
	}
	role := model.UserRole(req.Role)
	if role != model.UserRoleTrainee && role != model.UserRoleAdmin {
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	id, err := h.store.CreateUser(model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		slog.Error("failed to create user", "error", err)
		http.Error(w, "failed to create user: "+err.Error(), http.StatusInternalServerError)
		return
	}

	admin := model.UserFromContext(r.Context())
	h.store.Audit(admin.ID, model.AuditCreate, "user", strconv.FormatInt(id, 10), req.Username)

	user, err := h.store.GetUserByID(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type updateUserRequest struct {
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Password    string `json:"password,omitempty"`
}

func (h *Handler) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	role := model.UserRole(req.Role)
	if role != model.UserRoleTrainee && role != model.UserRoleAdmin {
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}

	if err := h.store.UpdateUser(id, req.DisplayName, role); err != nil {
		slog.Error("failed to update user", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if err := h.store.UpdateUserPassword(id, string(hash)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	admin := model.UserFromContext(r.Context())
	h.store.Audit(admin.ID, model.AuditUpdate, "user", strconv.FormatInt(id, 10), "")

	user, err := h.store.GetUserByID(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleAdminToggleUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}

	if err := h.store.ToggleUserActive(id); err != nil {
		slog.Error("failed to toggle user active", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	admin := model.UserFromContext(r.Context())
	h.store.Audit(admin.ID, model.AuditUpdate, "user", strconv.FormatInt(id, 10), "toggled active")

	user, err := h.store.GetUserByID(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleAdminListAttempts(w http.ResponseWriter, r *http.Request) {
	var attempts []model.Attempt
	var err error
	switch {
	case r.URL.Query().Get("test_id") != "":
		attempts, err = h.store.ListAttemptsByTest(r.URL.Query().Get("test_id"))
	case r.URL.Query().Get("user_id") != "":
		var uid int64
		uid, err = strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid user_id", http.StatusBadRequest)
			return
		}
		attempts, err = h.store.ListAttemptsByUser(uid)
	default:
		attempts, err = h.store.ListAttempts()
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

// handleAdminResetAttempt deletes an attempt so the trainee can retake the
// test. Any live session for the pair is evicted so the next start creates
// a fresh attempt.
func (h *Handler) handleAdminResetAttempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "attemptID")

	attempt, err := h.store.GetAttempt(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if attempt == nil {
		http.Error(w, "attempt not found", http.StatusNotFound)
		return
	}

	if err := h.store.DeleteAttempt(id); err != nil {
		slog.Error("failed to delete attempt", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.sessions.Evict(attempt.TestID, attempt.UserID)

	admin := model.UserFromContext(r.Context())
	h.store.Audit(admin.ID, model.AuditDelete, "attempt", id,
		fmt.Sprintf("test=%s user=%d", attempt.TestID, attempt.UserID))
	slog.Info("attempt reset by admin", "attempt_id", id, "admin_id", admin.ID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type abandonRequest struct {
	OlderThanHours int `json:"older_than_hours"`
}

// handleAdminAbandonStale marks in-progress attempts older than the cutoff
// as abandoned. Their answers are kept for review. Markers pointing at an
// abandoned attempt are ignored on resume, so the trainee's next start
// creates a fresh attempt.
func (h *Handler) handleAdminAbandonStale(w http.ResponseWriter, r *http.Request) {
	req := abandonRequest{OlderThanHours: 24}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	if req.OlderThanHours <= 0 {
		http.Error(w, "older_than_hours must be positive", http.StatusBadRequest)
		return
	}

	cutoff := time.Now().Add(-time.Duration(req.OlderThanHours) * time.Hour)
	n, err := h.store.MarkAbandoned(cutoff)
	if err != nil {
		slog.Error("failed to abandon stale attempts", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	admin := model.UserFromContext(r.Context())
	h.store.Audit(admin.ID, model.AuditUpdate, "attempt", "stale",
		fmt.Sprintf("abandoned %d attempts older than %dh", n, req.OlderThanHours))
	slog.Info("stale attempts abandoned", "count", n, "older_than_hours", req.OlderThanHours)

	writeJSON(w, http.StatusOK, map[string]int64{"abandoned": n})
}

// importSummary reports what a content import touched.
type importSummary struct {
	Modules   int    `json:"modules"`
	Questions int    `json:"questions"`
	Tests     int    `json:"tests"`
	Skipped   bool   `json:"skipped"`
	Message   string `json:"message,omitempty"`
}

func (h *Handler) handleAdminImportContent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "file too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("content_file")
	if err != nil {
		http.Error(w, "no file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])

	storedHash, err := h.store.GetImportHash(header.Filename)
	if err != nil {
		slog.Error("failed to check import status", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if storedHash == hash {
		writeJSON(w, http.StatusOK, importSummary{Skipped: true, Message: "unchanged"})
		return
	}

	var content model.ContentFile
	if err := json.Unmarshal(data, &content); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateContent(content); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	for i, m := range content.Modules {
		if err := h.store.UpsertModule(m, i); err != nil {
			slog.Error("failed to import module", "id", m.ID, "error", err)
			http.Error(w, "failed to import module: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}
	for _, q := range content.Questions {
		if err := h.store.UpsertQuestion(q); err != nil {
			slog.Error("failed to import question", "id", q.ID, "error", err)
			http.Error(w, "failed to import question: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}
	for _, t := range content.Tests {
		if err := h.store.UpsertTest(t); err != nil {
			slog.Error("failed to import test", "id", t.ID, "error", err)
			http.Error(w, "failed to import test: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if err := h.store.SetImportHash(header.Filename, hash); err != nil {
		slog.Error("failed to record import", "error", err)
	}

	admin := model.UserFromContext(r.Context())
	h.store.Audit(admin.ID, model.AuditImport, "content", header.Filename,
		fmt.Sprintf("%d modules, %d questions, %d tests",
			len(content.Modules), len(content.Questions), len(content.Tests)))
	slog.Info("imported content via admin", "filename", header.Filename,
		"modules", len(content.Modules), "questions", len(content.Questions), "tests", len(content.Tests))

	writeJSON(w, http.StatusOK, importSummary{
		Modules:   len(content.Modules),
		Questions: len(content.Questions),
		Tests:     len(content.Tests),
	})
}

// validateContent checks imported definitions before any row is written.
func validateContent(c model.ContentFile) error {
	for _, q := range c.Questions {
		if err := q.Validate(); err != nil {
			return err
		}
	}
	for _, t := range c.Tests {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	entries, err := h.store.ListAuditEntries(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type translateRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang,omitempty"`
}

// handleAdminTranslate machine-translates authored content. With a target
// language it returns one translation; without, all supported languages.
func (h *Handler) handleAdminTranslate(w http.ResponseWriter, r *http.Request) {
	if h.translator == nil {
		http.Error(w, "translation backend not configured", http.StatusServiceUnavailable)
		return
	}
	var req translateRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text required", http.StatusBadRequest)
		return
	}

	if req.Lang != "" {
		translated, err := h.translator.Translate(r.Context(), req.Text, req.Lang)
		if err != nil {
			slog.Error("translation failed", "lang", req.Lang, "error", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{req.Lang: translated})
		return
	}

	writeJSON(w, http.StatusOK, h.translator.TranslateAll(r.Context(), req.Text))
}

func (h *Handler) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	export, err := h.store.ExportAllResults()
	if err != nil {
		slog.Error("export failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, export)
}
