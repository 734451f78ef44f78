package runtime

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aretw0/flowchat/pkg/domain"
)

// DefaultMaxInputSize bounds one visitor message or answer, in bytes.
const DefaultMaxInputSize = 4096

// sanitizeInput rejects oversized or invalid UTF-8 text and strips control
// characters other than newline, tab and carriage return. Input is rejected
// rather than truncated so a stored answer is always what the visitor sent.
func sanitizeInput(input string, limit int) (string, error) {
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", domain.ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", domain.ErrInvalidUTF8
	}

	clean := true
	for _, r := range input {
		if unsafeControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return input, nil
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unsafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func unsafeControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}
