// Package title derives short conversation titles from the opening message.
package title

import (
	"context"
	"fmt"
	"strings"

	"github.com/suPer8Hu/personallm/internal/ai"
)

// Fallback is used whenever generation fails; a conversation never ends up
// with an empty title.
const Fallback = "New Chat"

const maxSeedLen = 200

// Generate asks the provider for a short title seeded with the first user
// message. It never returns an error: any failure yields Fallback.
func Generate(ctx context.Context, p ai.Provider, text string) string {
	seed := strings.TrimSpace(text)
	if seed == "" {
		return Fallback
	}
	if len(seed) > maxSeedLen {
		seed = seed[:maxSeedLen]
	}

	prompt := fmt.Sprintf(
		"Generate a short title (max 6 words, no quotes, no punctuation) for a chat that starts with: %q",
		seed,
	)
	out, err := p.Chat(ctx, []ai.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return Fallback
	}
	return Clean(out)
}

// Clean normalizes raw model output into a usable title.
func Clean(raw string) string {
	t := strings.TrimSpace(raw)
	t = strings.Trim(t, `"'`)
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	if len(t) > 80 {
		t = strings.TrimSpace(t[:80])
	}
	if t == "" {
		return Fallback
	}
	return t
}
