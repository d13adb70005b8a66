package vault

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// linkTokenPattern matches [[target]] and [[target|alias]] tokens.
var linkTokenPattern = regexp.MustCompile(`\[\[([^\[\]|]+)(?:\|([^\[\]]+))?\]\]`)

// titleUnsafe matches characters that are not allowed in note titles.
var titleUnsafe = regexp.MustCompile(`[\\/:*?"<>|#^\[\]]`)

// LinkToken is one parsed wiki-style link token.
type LinkToken struct {
	Target string
	Alias  string
}

// Map renders the token for guest code.
func (t LinkToken) Map() map[string]interface{} {
	m := map[string]interface{}{"target": t.Target}
	if t.Alias != "" {
		m["alias"] = t.Alias
	}
	return m
}

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

// FormatDate formats a unix-millisecond timestamp using a named layout.
// Supported layouts: "date" (2006-01-02), "time" (15:04:05), "datetime",
// and "rfc3339" (the default for unknown names).
func FormatDate(unixMillis int64, layout string) string {
	t := time.UnixMilli(unixMillis).UTC()
	switch layout {
	case "date":
		return t.Format("2006-01-02")
	case "time":
		return t.Format("15:04:05")
	case "datetime":
		return t.Format("2006-01-02 15:04:05")
	default:
		return t.Format(time.RFC3339)
	}
}

// SanitizeTitle strips characters that are unsafe in note titles and
// collapses surrounding whitespace.
func SanitizeTitle(title string) string {
	clean := titleUnsafe.ReplaceAllString(title, "")
	clean = strings.Join(strings.Fields(clean), " ")
	return strings.TrimSpace(clean)
}

// ParseLinkTokens extracts all [[target|alias]] tokens from text, in order.
func ParseLinkTokens(text string) []LinkToken {
	matches := linkTokenPattern.FindAllStringSubmatch(text, -1)
	tokens := make([]LinkToken, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, LinkToken{
			Target: strings.TrimSpace(m[1]),
			Alias:  strings.TrimSpace(m[2]),
		})
	}
	return tokens
}
