package utils

import (
	"regexp"
	"strings"
)

const defaultEllipsis = "…"

var (
	// tripleNewlines matches runs of three or more line breaks.
	tripleNewlines = regexp.MustCompile(`\n{3,}`)
	// horizontalSpaces matches runs of spaces and tabs.
	horizontalSpaces = regexp.MustCompile(`[ \t]{2,}`)
	// boldMarkers matches paired markdown bold markers around text.
	boldMarkers = regexp.MustCompile(`\*\*([^*]+)\*\*|__([^_]+)__`)
	// emphasisMarkers matches paired markdown emphasis markers around text.
	emphasisMarkers = regexp.MustCompile(`\*([^*\n]+)\*|_([^_\n]+)_`)
	// codeMarkers matches paired backtick code markers around text.
	codeMarkers = regexp.MustCompile("`([^`\n]+)`")
	// placeholderToken matches %key% placeholders in content templates.
	placeholderToken = regexp.MustCompile(`%(\w+)%`)
	// hashtagPattern matches a single hashtag.
	hashtagPattern = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
	// hashtagRun matches a trailing block of hashtags with separating whitespace.
	hashtagRun = regexp.MustCompile(`(?:#[\p{L}\p{N}_]+[ \t]*)+$`)
)

// FormatOptions controls the deterministic post-processing applied to
// AI-generated post copy before publishing.
type FormatOptions struct {
	// MaxLength truncates the content to at most this many runes,
	// appending an ellipsis. Zero disables truncation.
	MaxLength int
	// FirstParagraphOnly keeps only the content before the first blank line.
	FirstParagraphOnly bool
	// SeparateHashtags ensures a trailing hashtag block is split from the
	// body text by a blank line.
	SeparateHashtags bool
	// WindowsLineBreaks emits \r\n line breaks instead of \n.
	WindowsLineBreaks bool
}

// FormatContent normalizes raw completion text into publishable copy:
// wrapping quotes and paired markdown markers are stripped, whitespace and
// line-break runs are collapsed, and the optional truncation, paragraph and
// hashtag rules from opts are applied. Normalization is idempotent for a
// given set of options.
func FormatContent(s string, opts FormatOptions) string {
	// Normalize line endings first so every later rule sees \n only
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSpace(s)

	s = stripWrappingQuotes(s)
	s = boldMarkers.ReplaceAllString(s, "$1$2")
	s = emphasisMarkers.ReplaceAllString(s, "$1$2")
	s = codeMarkers.ReplaceAllString(s, "$1")

	s = tripleNewlines.ReplaceAllString(s, "\n\n")
	s = horizontalSpaces.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if opts.FirstParagraphOnly {
		if idx := strings.Index(s, "\n\n"); idx >= 0 {
			s = strings.TrimSpace(s[:idx])
		}
	}

	if opts.SeparateHashtags {
		s = separateTrailingHashtags(s)
	}

	if opts.MaxLength > 0 {
		s = Truncate(s, opts.MaxLength)
	}

	if opts.WindowsLineBreaks {
		s = strings.ReplaceAll(s, "\n", "\r\n")
	}

	return s
}

// stripWrappingQuotes removes one pair of quote characters wrapping the
// entire content. Models often quote the whole post verbatim.
func stripWrappingQuotes(s string) string {
	pairs := [][2]string{
		{`"`, `"`},
		{"'", "'"},
		{"“", "”"},
		{"«", "»"},
	}

	for _, p := range pairs {
		if len(s) > len(p[0])+len(p[1]) && strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) {
			inner := strings.TrimSuffix(strings.TrimPrefix(s, p[0]), p[1])
			// Only unwrap when the pair does not close early, otherwise the
			// quotes belong to the content itself.
			if !strings.Contains(inner, p[1]) {
				return strings.TrimSpace(inner)
			}
		}
	}

	return s
}

// separateTrailingHashtags inserts a blank line before a hashtag block that
// sits in the final quarter of the content or after the last line break.
func separateTrailingHashtags(s string) string {
	loc := hashtagRun.FindStringIndex(s)
	if loc == nil || loc[0] == 0 {
		return s
	}

	lastBreak := strings.LastIndex(s, "\n")
	inTailRegion := loc[0] >= len(s)*3/4 || loc[0] > lastBreak

	if !inTailRegion {
		return s
	}

	body := strings.TrimRight(s[:loc[0]], " \t\n")
	if body == "" {
		return s
	}

	return body + "\n\n" + s[loc[0]:]
}

// Truncate shortens s to at most maxRunes runes, appending an ellipsis when
// content was dropped.
func Truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}

	cut := maxRunes - len([]rune(defaultEllipsis))
	if cut < 0 {
		cut = 0
	}

	return strings.TrimSpace(string(runes[:cut])) + defaultEllipsis
}

// ReplacePlaceholders substitutes %key% tokens in tpl with values from vals,
// falling back to the given placeholder for missing keys.
func ReplacePlaceholders(tpl string, vals map[string]string, fallback string) string {
	return placeholderToken.ReplaceAllStringFunc(tpl, func(token string) string {
		key := token[1 : len(token)-1]
		if v, ok := vals[key]; ok {
			return v
		}
		return fallback
	})
}

// FindHashtags returns every hashtag in s, in order of appearance.
func FindHashtags(s string) []string {
	return hashtagPattern.FindAllString(s, -1)
}
