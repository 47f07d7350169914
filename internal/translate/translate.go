// Package translate produces machine translations of authored training
// content via an OpenAI-compatible API, with caching so repeated requests
// for the same text cost nothing.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// Cache stores finished translations keyed by source text and target
// language. Implementations must be safe for concurrent use.
type Cache interface {
	Get(text, lang string) (string, bool)
	Set(text, lang, translated string)
}

// MapCache is an in-memory Cache. The zero value is not usable; create it
// with NewMapCache.
type MapCache struct {
	mu sync.Mutex
	m  map[string]string
}

// NewMapCache creates an empty in-memory cache.
func NewMapCache() *MapCache {
	return &MapCache{m: make(map[string]string)}
}

func cacheKey(text, lang string) string {
	return lang + "\x00" + text
}

func (c *MapCache) Get(text, lang string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.m[cacheKey(text, lang)]
	return s, ok
}

func (c *MapCache) Set(text, lang, translated string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[cacheKey(text, lang)] = translated
}

// Len returns the number of cached translations.
func (c *MapCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

var languageNames = map[string]string{
	"en": "English",
	"ta": "Tamil",
	"hi": "Hindi",
	"te": "Telugu",
}

// Translator wraps an OpenAI-compatible API client for content translation.
type Translator struct {
	api   *openai.Client
	model string
	cache Cache
}

// New creates a translator. A nil cache gets an in-memory one.
func New(baseURL, apiKey, modelName string, cache Cache) *Translator {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if cache == nil {
		cache = NewMapCache()
	}
	return &Translator{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
		cache: cache,
	}
}

// Translate returns the text translated into the target language. English
// targets and empty inputs are returned unchanged. Cache hits skip the API.
func (t *Translator) Translate(ctx context.Context, text, lang string) (string, error) {
	if text == "" || lang == "en" {
		return text, nil
	}
	if cached, ok := t.cache.Get(text, lang); ok {
		return cached, nil
	}

	langName, ok := languageNames[lang]
	if !ok {
		return "", fmt.Errorf("unsupported target language %q", lang)
	}

	resp, err := t.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt(langName)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("translation API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("translation returned no choices")
	}

	translated := strings.TrimSpace(resp.Choices[0].Message.Content)
	t.cache.Set(text, lang, translated)
	return translated, nil
}

// TranslateAll translates text into every supported non-English language.
// A failed language falls back to the source text so content authoring
// never blocks on the API; the failure is logged.
func (t *Translator) TranslateAll(ctx context.Context, text string) map[string]string {
	out := map[string]string{"en": text}
	for lang := range languageNames {
		if lang == "en" {
			continue
		}
		translated, err := t.Translate(ctx, text, lang)
		if err != nil {
			slog.Warn("translation failed, keeping source text", "lang", lang, "error", err)
			translated = text
		}
		out[lang] = translated
	}
	return out
}

func buildSystemPrompt(langName string) string {
	var sb strings.Builder
	sb.WriteString("You are a professional translator for workplace safety training material.\n")
	sb.WriteString("Translate the user's text into " + langName + ".\n")
	sb.WriteString("Keep technical safety terms accurate. Preserve any placeholders or markup unchanged.\n")
	sb.WriteString("Respond with the translation only, no explanations.\n")
	return sb.String()
}
