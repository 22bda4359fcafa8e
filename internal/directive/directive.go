package directive

import (
	"strings"
	"unicode/utf8"
)

// DefaultPrefix marks tags that carry overlay directives.
const DefaultPrefix = "[ShaderGlass]"

const (
	flagNoFullscreen = "NoFullscreen"
	flagPausedMode   = "PausedMode"
)

// Kind classifies a single tag.
type Kind int

const (
	Unrecognized Kind = iota
	Profile
	NoFullscreen
	PausedMode
)

func (k Kind) String() string {
	switch k {
	case Profile:
		return "profile"
	case NoFullscreen:
		return "no_fullscreen"
	case PausedMode:
		return "paused_mode"
	default:
		return "unrecognized"
	}
}

// Directive is the result of classifying one tag. Value holds the profile
// name when Kind is Profile and is empty otherwise.
type Directive struct {
	Kind  Kind
	Value string
}

// Selection is the overlay configuration derived from all tags of an entity.
type Selection struct {
	Profile      string   `json:"profile,omitempty"`
	NoFullscreen bool     `json:"no_fullscreen"`
	PausedMode   bool     `json:"paused_mode"`
	Dropped      []string `json:"dropped,omitempty"` // profile tags after the first one
}

// HasProfile reports whether a profile selector was found. Flags alone never
// select anything to launch.
func (s Selection) HasProfile() bool { return s.Profile != "" }

// Classify inspects a single tag. The prefix match is case-insensitive and
// leading/trailing whitespace of the remainder is ignored.
func Classify(prefix, tag string) Directive {
	content, ok := stripPrefix(prefix, tag)
	if !ok || content == "" {
		return Directive{Kind: Unrecognized}
	}
	switch {
	case strings.EqualFold(content, flagNoFullscreen):
		return Directive{Kind: NoFullscreen}
	case strings.EqualFold(content, flagPausedMode):
		return Directive{Kind: PausedMode}
	default:
		return Directive{Kind: Profile, Value: content}
	}
}

// Parse folds the tags of an entity into a Selection. Only the first profile
// selector in iteration order is kept; later ones are reported in Dropped.
func Parse(prefix string, tags []string) Selection {
	var sel Selection
	for _, tag := range tags {
		d := Classify(prefix, tag)
		switch d.Kind {
		case NoFullscreen:
			sel.NoFullscreen = true
		case PausedMode:
			sel.PausedMode = true
		case Profile:
			if sel.Profile == "" {
				sel.Profile = d.Value
			} else {
				sel.Dropped = append(sel.Dropped, d.Value)
			}
		}
	}
	return sel
}

// Format builds a directive tag name from prefix and content.
func Format(prefix, content string) string {
	return strings.TrimSpace(prefix) + " " + strings.TrimSpace(content)
}

// IsDirective reports whether tag starts with prefix.
func IsDirective(prefix, tag string) bool {
	_, ok := stripPrefix(prefix, tag)
	return ok
}

func stripPrefix(prefix, tag string) (string, bool) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	t := strings.TrimLeft(tag, " \t")
	head, rest, ok := cutRunes(t, utf8.RuneCountInString(prefix))
	if !ok || !strings.EqualFold(head, prefix) {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// cutRunes splits s after n runes. Case folding maps rune to rune, so the
// head of a matching tag has as many runes as the prefix, not as many bytes.
func cutRunes(s string, n int) (string, string, bool) {
	for i := range s {
		if n == 0 {
			return s[:i], s[i:], true
		}
		n--
	}
	if n == 0 {
		return s, "", true
	}
	return "", "", false
}
