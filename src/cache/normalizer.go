package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Volatile substrings are replaced with stable placeholders so that prompts
// differing only in timestamps or identifiers collapse to the same key. The
// UUID pattern runs first: its hex groups would otherwise partially match
// the date pattern.
var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	uuidRe       = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	dateRe       = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	timeRe       = regexp.MustCompile(`\b\d{1,2}:\d{2}(:\d{2})?\b`)
	userRe       = regexp.MustCompile(`\buser:`)
	assistantRe  = regexp.MustCompile(`\bassistant:`)
)

// NormalizePrompt preprocesses a prompt deterministically: whitespace runs
// collapse to single spaces, the text is lower-cased, and volatile
// substrings (UUIDs, ISO dates, clock times) become placeholders. Role
// markers are canonicalized so "user: hi" and "USER: hi" compare equal.
// Total over all inputs; an empty prompt normalizes to an empty string.
func NormalizePrompt(prompt string) string {
	text := whitespaceRe.ReplaceAllString(prompt, " ")
	text = strings.TrimSpace(text)
	text = strings.ToLower(text)
	text = uuidRe.ReplaceAllString(text, "[UUID]")
	text = dateRe.ReplaceAllString(text, "[DATE]")
	text = timeRe.ReplaceAllString(text, "[TIME]")
	text = userRe.ReplaceAllString(text, "[USER]:")
	text = assistantRe.ReplaceAllString(text, "[ASSISTANT]:")
	return text
}

// Key derives the cache key for a normalized prompt. The hash covers model
// and namespace so the same prompt cached for different models never
// collides. Stable across processes for cache portability.
func Key(model, namespace, normalized string) string {
	sum := sha256.Sum256([]byte(model + ":" + namespace + ":" + normalized))
	return hex.EncodeToString(sum[:])
}

// Normalize combines NormalizePrompt and Key.
func Normalize(prompt, model, namespace string) (key string, normalized string) {
	normalized = NormalizePrompt(prompt)
	return Key(model, namespace, normalized), normalized
}
