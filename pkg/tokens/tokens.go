// Package tokens provides token estimation for budget enforcement.
// Counts are byte-heuristic estimates; exact tokenization belongs to the
// engine and is not reproduced here.
package tokens

import "github.com/kagsys/kag-server/pkg/engine"

const (
	// bytesPerToken is the average UTF-8 bytes per token for English-like
	// text. Estimates err on the generous side for budget enforcement.
	bytesPerToken = 4

	// messageOverhead is the per-message framing cost in tokens.
	messageOverhead = 3
)

// Estimate returns the approximate token count for text.
func Estimate(text string) int {
	return (len(text) + bytesPerToken - 1) / bytesPerToken
}

// EstimateMessages returns the approximate token count for a chat message
// list, including role and framing overhead.
func EstimateMessages(messages []engine.Message) int {
	total := 0
	for _, m := range messages {
		total += Estimate(m.Role) + Estimate(m.Content) + Estimate(m.Name)
		total += messageOverhead
	}
	return total
}

// Truncate cuts text down to approximately limit tokens, respecting UTF-8
// rune boundaries. Text within the limit is returned unchanged.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	maxBytes := limit * bytesPerToken
	if len(text) <= maxBytes {
		return text
	}

	// Back up to a rune boundary.
	cut := maxBytes
	for cut > 0 && text[cut]&0xC0 == 0x80 {
		cut--
	}
	return text[:cut]
}
