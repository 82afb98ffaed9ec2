// Package sanitize masks API keys and tokens in text that may be logged
// or surfaced to the operator.
package sanitize

import (
	"regexp"
	"strings"
	"sync"
)

var (
	githubTokenRe = regexp.MustCompile(`(ghp_|gho_|ghu_|ghs_|ghr_)[a-zA-Z0-9]{36}`)
	anthropicRe   = regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]{24,}`)
	openaiRe      = regexp.MustCompile(`sk-[a-zA-Z0-9]{48}`)
	queryTokenRe  = regexp.MustCompile(`(token=|api_key=|apikey=)[^&\s]+`)
	bearerRe      = regexp.MustCompile(`(Authorization:\s*Bearer\s+)\S+`)
	gitURLCredRe  = regexp.MustCompile(`https://[^@/\s]+@github\.com/`)
)

// Sanitizer masks registered secrets and well-known credential patterns.
type Sanitizer struct {
	mu     sync.RWMutex
	tokens []string
}

// New creates an empty Sanitizer.
func New() *Sanitizer {
	return &Sanitizer{}
}

// Register adds a secret to be masked in all sanitized output.
func (s *Sanitizer) Register(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, token)
}

// Sanitize masks registered secrets and common credential patterns in text.
func (s *Sanitizer) Sanitize(text string) string {
	if text == "" {
		return text
	}

	s.mu.RLock()
	tokens := s.tokens
	s.mu.RUnlock()

	for _, token := range tokens {
		if !strings.Contains(text, token) {
			continue
		}
		masked := "***TOKEN***"
		// Keep a short prefix so the operator can tell which credential leaked.
		if len(token) > 8 {
			masked = token[:4] + strings.Repeat("*", len(token)-4)
		}
		text = strings.ReplaceAll(text, token, masked)
	}

	text = githubTokenRe.ReplaceAllString(text, "${1}****")
	text = anthropicRe.ReplaceAllString(text, "sk-ant-****")
	text = openaiRe.ReplaceAllString(text, "sk-****")
	text = queryTokenRe.ReplaceAllString(text, "${1}****")
	text = bearerRe.ReplaceAllString(text, "${1}****")
	text = gitURLCredRe.ReplaceAllString(text, "https://***@github.com/")

	return text
}

// SanitizeAll applies Sanitize to every string in the slice.
func (s *Sanitizer) SanitizeAll(texts []string) []string {
	if len(texts) == 0 {
		return texts
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = s.Sanitize(t)
	}
	return out
}

var defaultSanitizer = New()

// Register adds a secret to the package-level sanitizer.
func Register(token string) {
	defaultSanitizer.Register(token)
}

// Sanitize masks secrets using the package-level sanitizer.
func Sanitize(text string) string {
	return defaultSanitizer.Sanitize(text)
}
