package i18n

import "net/http"

// Middleware injects a request-scoped localizer into every request context.
// The language is taken from the ?lang= query parameter when present,
// otherwise from the Accept-Language header, otherwise the default.
func Middleware(defaultLang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := ResolveLang(r, defaultLang)
			ctx := WithLocalizer(r.Context(), NewLocalizer(lang))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ResolveLang picks the request language from query parameter or headers.
func ResolveLang(r *http.Request, defaultLang string) string {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return lang
	}
	if lang := r.Header.Get("Accept-Language"); lang != "" {
		return lang
	}
	return defaultLang
}
