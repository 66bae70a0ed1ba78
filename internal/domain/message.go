package domain

import (
	"regexp"
	"strings"
	"unicode"
)

// Message is an inbound chat message event as delivered by the gateway
// collaborator. Content is the raw text before mention stripping.
type Message struct {
	ID              string
	ChannelID       string
	AuthorID        string
	AuthorName      string
	AuthorAvatarURL string
	AuthorIsBot     bool
	Content         string
}

var (
	mentionPattern     = regexp.MustCompile(`<@!?\d+>`)
	customEmojiPattern = regexp.MustCompile(`<a?:\w+:\d+>`)
)

// NormalizeContent strips user mentions and surrounding whitespace, yielding
// the effective text the engine translates and bills against.
func NormalizeContent(content string) string {
	stripped := mentionPattern.ReplaceAllString(content, "")
	return strings.TrimSpace(stripped)
}

// Untranslatable reports whether the normalized text carries nothing worth
// translating: empty, or composed only of whitespace, emoji and custom emoji
// tokens. Digits, '#' and '*' count as emoji (keycap bases), matching the
// upstream pictographic class.
func Untranslatable(text string) bool {
	if text == "" {
		return true
	}
	rest := customEmojiPattern.ReplaceAllString(text, "")
	for _, r := range rest {
		if !unicode.IsSpace(r) && !emojiRune(r) {
			return false
		}
	}
	return true
}

// emojiRune covers the pictographic blocks plus combining marks that only
// occur inside emoji sequences (ZWJ, variation selectors, keycaps, skin tones).
func emojiRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9', r == '#', r == '*':
		return true
	case r >= 0x1F000 && r <= 0x1FAFF: // pictographs, flags, supplemental
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x2B00 && r <= 0x2BFF: // arrows, stars
		return true
	case r >= 0x25A0 && r <= 0x25FF: // geometric shapes
		return true
	case r >= 0xFE00 && r <= 0xFE0F: // variation selectors
		return true
	case r == 0x200D || r == 0x20E3: // ZWJ, combining keycap
		return true
	case r == 0x00A9 || r == 0x00AE || r == 0x203C || r == 0x2049,
		r == 0x2122 || r == 0x2139 || r == 0x24C2,
		r == 0x3030 || r == 0x303D || r == 0x3297 || r == 0x3299:
		return true
	default:
		return false
	}
}
