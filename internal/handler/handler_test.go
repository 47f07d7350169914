package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/delphitvs/trainhub/internal/i18n"
	"github.com/delphitvs/trainhub/internal/model"
	"github.com/delphitvs/trainhub/internal/session"
	"github.com/delphitvs/trainhub/internal/store"
)

type testEnv struct {
	router  chi.Router
	store   *store.Store
	manager *session.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}

	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	for _, u := range []model.User{
		{Username: "asha", DisplayName: "Asha", PasswordHash: string(hash), Role: model.UserRoleTrainee, Active: true},
		{Username: "boss", DisplayName: "Boss", PasswordHash: string(hash), Role: model.UserRoleAdmin, Active: true},
	} {
		if _, err := s.CreateUser(u); err != nil {
			t.Fatalf("CreateUser(%s): %v", u.Username, err)
		}
	}

	if err := s.UpsertModule(model.Module{
		ID:    "fire-safety",
		Title: model.LocalizedText{"en": "Fire Safety"},
		Steps: []model.Step{
			{ID: "s1", Kind: model.StepIntro, Title: model.LocalizedText{"en": "Welcome"}},
			{ID: "s2", Kind: model.StepContent, Title: model.LocalizedText{"en": "Extinguishers"}},
		},
	}, 0); err != nil {
		t.Fatalf("UpsertModule: %v", err)
	}
	if err := s.UpsertQuestion(model.Question{
		ID: "q1", ModuleID: "fire-safety", Kind: model.KindSingle,
		Text:         model.LocalizedText{"en": "Where is the extinguisher?"},
		Options:      model.LocalizedOptions{"en": {"hallway", "roof"}},
		CorrectIndex: 0,
	}); err != nil {
		t.Fatalf("UpsertQuestion: %v", err)
	}
	if err := s.UpsertTest(model.Test{
		ID: "fire-final", ModuleID: "fire-safety",
		Title:            model.LocalizedText{"en": "Final"},
		QuestionIDs:      []string{"q1"},
		TimeLimitMinutes: 10, PassScorePercent: 70,
	}); err != nil {
		t.Fatalf("UpsertTest: %v", err)
	}

	m := session.NewManager(s, s)
	h := New(s, m, nil, model.ServerConfig{DefaultLang: "en"})
	r := chi.NewRouter()
	r.Use(i18n.Middleware("en"))
	h.Routes(r)

	return &testEnv{router: r, store: s, manager: m}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T, username string) *http.Cookie {
	t.Helper()
	w := e.do(t, "POST", "/api/login", map[string]string{"username": username, "password": "secret"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", username, w.Code, w.Body.String())
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestLoginFlow(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "POST", "/api/login", map[string]string{"username": "asha", "password": "wrong"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: status %d", w.Code)
	}

	cookie := e.login(t, "asha")
	w = e.do(t, "GET", "/api/me", nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("me: status %d", w.Code)
	}
	var me model.User
	if err := json.Unmarshal(w.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.Username != "asha" || me.Role != model.UserRoleTrainee {
		t.Errorf("unexpected user: %+v", me)
	}
}

func TestRequiresAuth(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "GET", "/api/modules", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated modules: status %d", w.Code)
	}
}

func TestAdminRoutesForbiddenForTrainee(t *testing.T) {
	e := newTestEnv(t)
	trainee := e.login(t, "asha")
	admin := e.login(t, "boss")

	if w := e.do(t, "GET", "/api/admin/users", nil, trainee); w.Code != http.StatusForbidden {
		t.Errorf("trainee admin access: status %d", w.Code)
	}
	if w := e.do(t, "GET", "/api/admin/users", nil, admin); w.Code != http.StatusOK {
		t.Errorf("admin access: status %d", w.Code)
	}
	// Test taking is trainee-only.
	if w := e.do(t, "POST", "/api/tests/fire-final/start", nil, admin); w.Code != http.StatusForbidden {
		t.Errorf("admin starting test: status %d", w.Code)
	}
}

func TestTestFlow(t *testing.T) {
	e := newTestEnv(t)
	cookie := e.login(t, "asha")

	w := e.do(t, "POST", "/api/tests/fire-final/start", nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("start: status %d: %s", w.Code, w.Body.String())
	}
	var started struct {
		State     session.State `json:"state"`
		Questions []struct {
			ID           string `json:"id"`
			CorrectIndex *int   `json:"correct_index"`
		} `json:"questions"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode start: %v", err)
	}
	if started.State.RemainingSeconds != 600 {
		t.Errorf("remaining = %d, want 600", started.State.RemainingSeconds)
	}
	if len(started.Questions) != 1 || started.Questions[0].ID != "q1" {
		t.Fatalf("unexpected questions: %+v", started.Questions)
	}
	if started.Questions[0].CorrectIndex != nil {
		t.Error("correct answer leaked to trainee")
	}
	if started.Message != "1 question available." {
		t.Errorf("start message = %q", started.Message)
	}

	w = e.do(t, "POST", "/api/tests/fire-final/answer",
		map[string]any{"question_id": "q1", "kind": "single", "value": "0"}, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("answer: status %d: %s", w.Code, w.Body.String())
	}

	w = e.do(t, "POST", "/api/tests/fire-final/submit", nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("submit: status %d: %s", w.Code, w.Body.String())
	}
	var st struct {
		session.State
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode submit: %v", err)
	}
	if !st.Finalized || st.Attempt.Score != 100 || !st.Attempt.Passed {
		t.Errorf("unexpected final state: %+v", st)
	}
	if st.Message != "Congratulations, you passed! Your score: 100%" {
		t.Errorf("submit message = %q", st.Message)
	}

	// Answering after submit is rejected.
	w = e.do(t, "POST", "/api/tests/fire-final/answer",
		map[string]any{"question_id": "q1", "kind": "single", "value": "1"}, cookie)
	if w.Code != http.StatusConflict {
		t.Errorf("answer after submit: status %d", w.Code)
	}
}

func TestStepCompletion(t *testing.T) {
	e := newTestEnv(t)
	cookie := e.login(t, "asha")

	w := e.do(t, "POST", "/api/modules/fire-safety/steps/s1/complete", nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("complete step: status %d: %s", w.Code, w.Body.String())
	}
	var p model.UserProgress
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if len(p.CompletedSteps) != 1 || p.CompletedAt != nil {
		t.Errorf("after one step: %+v", p)
	}

	w = e.do(t, "POST", "/api/modules/fire-safety/steps/nope/complete", nil, cookie)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown step: status %d", w.Code)
	}
}

func TestAdminResetAttempt(t *testing.T) {
	e := newTestEnv(t)
	trainee := e.login(t, "asha")
	admin := e.login(t, "boss")

	w := e.do(t, "POST", "/api/tests/fire-final/start", nil, trainee)
	if w.Code != http.StatusOK {
		t.Fatalf("start: status %d", w.Code)
	}
	w = e.do(t, "POST", "/api/tests/fire-final/submit", nil, trainee)
	if w.Code != http.StatusOK {
		t.Fatalf("submit: status %d", w.Code)
	}
	var st session.State
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = e.do(t, "DELETE", "/api/admin/attempts/"+st.Attempt.ID, nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("reset: status %d: %s", w.Code, w.Body.String())
	}

	// The trainee gets a brand-new attempt after the reset.
	w = e.do(t, "POST", "/api/tests/fire-final/start", nil, trainee)
	if w.Code != http.StatusOK {
		t.Fatalf("restart: status %d", w.Code)
	}
	var restarted struct {
		State session.State `json:"state"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &restarted); err != nil {
		t.Fatalf("decode restart: %v", err)
	}
	if restarted.State.Attempt.ID == st.Attempt.ID {
		t.Error("expected a fresh attempt after admin reset")
	}
	if restarted.State.Finalized {
		t.Error("fresh attempt must not be finalized")
	}
}

func TestAdminAbandonStaleAttempts(t *testing.T) {
	e := newTestEnv(t)
	trainee := e.login(t, "asha")
	admin := e.login(t, "boss")

	// A two-day-old in-progress attempt with a live marker, as left behind
	// by a trainee who walked away mid-test.
	stale := model.Attempt{
		ID: "stale-1", TestID: "fire-final", UserID: 1,
		Status: model.AttemptInProgress, StartedAt: time.Now().Add(-48 * time.Hour),
		Answers: []model.AnswerEntry{},
	}
	if err := e.store.PutAttempt(stale); err != nil {
		t.Fatalf("PutAttempt: %v", err)
	}
	if err := e.store.SetMarker(stale.TestID, stale.UserID, stale.ID); err != nil {
		t.Fatalf("SetMarker: %v", err)
	}

	w := e.do(t, "POST", "/api/admin/attempts/abandon", nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("abandon: status %d: %s", w.Code, w.Body.String())
	}
	var res map[string]int64
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res["abandoned"] != 1 {
		t.Errorf("abandoned = %d, want 1", res["abandoned"])
	}

	att, err := e.store.GetAttempt(stale.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if att.Status != model.AttemptAbandoned {
		t.Errorf("status = %q, want abandoned", att.Status)
	}

	// The trainee's next start must not resume the abandoned attempt.
	w = e.do(t, "POST", "/api/tests/fire-final/start", nil, trainee)
	if w.Code != http.StatusOK {
		t.Fatalf("start after abandon: status %d", w.Code)
	}
	var started struct {
		State session.State `json:"state"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode start: %v", err)
	}
	if started.State.Attempt.ID == stale.ID {
		t.Error("abandoned attempt was resumed")
	}

	// A non-positive cutoff is rejected.
	w = e.do(t, "POST", "/api/admin/attempts/abandon", map[string]int{"older_than_hours": 0}, admin)
	if w.Code != http.StatusBadRequest {
		t.Errorf("zero cutoff: status %d", w.Code)
	}
}

func TestTranslateUnconfigured(t *testing.T) {
	e := newTestEnv(t)
	admin := e.login(t, "boss")

	w := e.do(t, "POST", "/api/admin/translate", map[string]string{"text": "Danger"}, admin)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("translate without backend: status %d", w.Code)
	}
}
