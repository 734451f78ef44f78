// Package timing computes the synthetic delays that pace a bot conversation.
package timing

import (
	"strings"
	"time"
)

// WordsPerMinute is the simulated typing speed of the bot.
const WordsPerMinute = 200

// Typing delay bounds.
const (
	MinTypingDelay = 1 * time.Second
	MaxTypingDelay = 4 * time.Second
)

// Fixed pacing constants. They are not user-configurable.
const (
	// EntryDelay elapses between entering a text node and raising the typing indicator.
	EntryDelay = 500 * time.Millisecond
	// MediaRevealDelay elapses before a media bubble appears.
	MediaRevealDelay = 500 * time.Millisecond
	// MediaAdvanceDelay elapses between a non-gating media bubble and the next node.
	MediaAdvanceDelay = 2 * time.Second
	// InputAdvanceDelay elapses between a form submission and the next node.
	InputAdvanceDelay = 500 * time.Millisecond
	// RedirectDelay keeps the thank-you message visible before navigating away.
	RedirectDelay = 2 * time.Second
)

// TypingDelay returns how long the bot "types" content:
// words / WordsPerMinute, clamped to [MinTypingDelay, MaxTypingDelay].
func TypingDelay(content string) time.Duration {
	words := len(strings.Fields(content))
	d := time.Duration(float64(words) / WordsPerMinute * float64(time.Minute))
	if d < MinTypingDelay {
		return MinTypingDelay
	}
	if d > MaxTypingDelay {
		return MaxTypingDelay
	}
	return d
}
