package relay

import "strings"

// Render composes the mirror message body. Two distinct legs yield a
// two-line bilingual block, a single leg yields one labeled line, and
// no legs yields the empty string (nothing to dispatch). Identical legs
// collapse to the home line: short tokens like "OK" or URLs come back
// unchanged from both providers and need no second line.
func Render(home, comp, homeLabel, compLabel string) string {
	if home != "" && home == comp {
		comp = ""
	}
	var b strings.Builder
	if home != "" {
		b.WriteString(homeLabel)
		b.WriteByte(' ')
		b.WriteString(home)
	}
	if comp != "" {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(compLabel)
		b.WriteByte(' ')
		b.WriteString(comp)
	}
	return b.String()
}
