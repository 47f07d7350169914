package i18n

import (
	"context"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "TrainHub" {
		t.Errorf("T(AppTitle) = %q, want 'TrainHub'", got)
	}

	got = T(ctx, "TimeUp")
	if got != "Time is up. Your answers have been submitted." {
		t.Errorf("T(TimeUp) = %q", got)
	}
}

func TestTranslateTamil(t *testing.T) {
	ctx := initLang(t, "ta")

	got := T(ctx, "AppTitle")
	if got != "பயிற்சி மையம்" {
		t.Errorf("T(AppTitle) = %q", got)
	}
}

func TestTranslateHindi(t *testing.T) {
	ctx := initLang(t, "hi")

	got := T(ctx, "TestPassed")
	if got != "बधाई हो, आप उत्तीर्ण हुए!" {
		t.Errorf("T(TestPassed) = %q", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "QuestionsAvailable", 1)
	if got1 != "1 question available." {
		t.Errorf("Tp(QuestionsAvailable, 1) = %q", got1)
	}

	got5 := Tp(ctx, "QuestionsAvailable", 5)
	if got5 != "5 questions available." {
		t.Errorf("Tp(QuestionsAvailable, 5) = %q", got5)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ScorePercent", map[string]any{"Score": 85})
	if got != "Your score: 85%" {
		t.Errorf("Td(ScorePercent, Score=85) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestResolveLang(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/modules?lang=ta", nil)
	if got := ResolveLang(r, "en"); got != "ta" {
		t.Errorf("ResolveLang query = %q, want ta", got)
	}

	r = httptest.NewRequest("GET", "/api/modules", nil)
	r.Header.Set("Accept-Language", "hi")
	if got := ResolveLang(r, "en"); got != "hi" {
		t.Errorf("ResolveLang header = %q, want hi", got)
	}

	r = httptest.NewRequest("GET", "/api/modules", nil)
	if got := ResolveLang(r, "en"); got != "en" {
		t.Errorf("ResolveLang default = %q, want en", got)
	}
}
