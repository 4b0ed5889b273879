// Package translate renders article titles into another language through a
// chat-completion API, caching results for the life of the process.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/F-swanlight/sniffer-geo/internal/config"
)

const DefaultTarget = "zh-CN"

// Provider sends a system instruction and one user message and returns
// the model's text.
type Provider interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// NewProvider creates a Provider from the translation config.
func NewProvider(cfg config.TranslationConfig, apiKey string) (Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("translation not configured")
	}

	client := &http.Client{Timeout: 30 * time.Second}

	switch cfg.Provider {
	case "claude", "":
		model := cfg.Model
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		url := cfg.BaseURL
		if url == "" {
			url = anthropicURL
		}
		return &anthropicProvider{apiKey: apiKey, model: model, url: url, client: client}, nil
	case "openai":
		model := cfg.Model
		if model == "" {
			model = openai.GPT4oMini
		}
		return newOpenAIProvider(apiKey, model, cfg.BaseURL, client), nil
	default:
		return nil, fmt.Errorf("unknown translation provider: %q (valid: claude, openai)", cfg.Provider)
	}
}

const systemPrompt = `You translate geoscience journal article titles into %s. Keep technical terms, place names and chemical formulas accurate. Respond with ONLY the translated title, nothing else.`

// Translator translates titles, remembering every result.
type Translator struct {
	provider Provider
	target   string

	mu    sync.Mutex
	cache map[string]string
}

func New(p Provider, target string) *Translator {
	if target == "" {
		target = DefaultTarget
	}
	return &Translator{provider: p, target: target, cache: map[string]string{}}
}

// Translate returns the translation of text. Blank text is returned as is.
func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return text, nil
	}

	t.mu.Lock()
	if v, ok := t.cache[text]; ok {
		t.mu.Unlock()
		return v, nil
	}
	t.mu.Unlock()

	out, err := t.provider.Complete(ctx, fmt.Sprintf(systemPrompt, t.target), text)
	if err != nil {
		return "", err
	}
	out = cleanResponse(out)
	if out == "" {
		return "", fmt.Errorf("empty translation")
	}

	t.mu.Lock()
	t.cache[text] = out
	t.mu.Unlock()
	return out, nil
}

// Titles translates each title. A title that fails keeps no entry, so the
// message shows only the original.
func (t *Translator) Titles(ctx context.Context, titles []string) map[string]string {
	out := make(map[string]string, len(titles))
	for _, title := range titles {
		if ctx.Err() != nil {
			break
		}
		if _, done := out[title]; done {
			continue
		}
		tr, err := t.Translate(ctx, title)
		if err != nil {
			slog.Warn("translation failed", "title", title, "err", err)
			continue
		}
		out[title] = tr
	}
	return out
}

func cleanResponse(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return strings.Trim(s, "\"“”「」")
}
