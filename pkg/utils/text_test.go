package utils_test

import (
	"testing"

	"github.com/irancrypto/marketbot/pkg/utils"
	"github.com/stretchr/testify/assert"
)

func TestFormatContent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		opts  utils.FormatOptions
		want  string
	}{
		{
			name:  "plain text untouched",
			input: "Bitcoin volume is rising",
			want:  "Bitcoin volume is rising",
		},
		{
			name:  "wrapping quotes stripped",
			input: `"Bitcoin leads the market today"`,
			want:  "Bitcoin leads the market today",
		},
		{
			name:  "inner quotes preserved",
			input: `The phrase "to the moon" is back`,
			want:  `The phrase "to the moon" is back`,
		},
		{
			name:  "markdown bold stripped",
			input: "**Bitcoin** is up, *Ethereum* too, `XRP` flat",
			want:  "Bitcoin is up, Ethereum too, XRP flat",
		},
		{
			name:  "excess line breaks collapsed",
			input: "line one\n\n\n\nline two",
			want:  "line one\n\nline two",
		},
		{
			name:  "repeated spaces collapsed",
			input: "too    many\tspaces",
			want:  "too many spaces",
		},
		{
			name:  "first paragraph only",
			input: "headline text\n\nsecond paragraph",
			opts:  utils.FormatOptions{FirstParagraphOnly: true},
			want:  "headline text",
		},
		{
			name:  "truncated with ellipsis",
			input: "a very long sentence about the crypto market",
			opts:  utils.FormatOptions{MaxLength: 20},
			want:  "a very long sentenc…",
		},
		{
			name:  "trailing hashtags separated",
			input: "Market recap for today #Bitcoin #Crypto",
			opts:  utils.FormatOptions{SeparateHashtags: true},
			want:  "Market recap for today\n\n#Bitcoin #Crypto",
		},
		{
			name:  "already separated hashtags untouched",
			input: "Market recap for today\n\n#Bitcoin #Crypto",
			opts:  utils.FormatOptions{SeparateHashtags: true},
			want:  "Market recap for today\n\n#Bitcoin #Crypto",
		},
		{
			name:  "windows line breaks",
			input: "line one\nline two",
			opts:  utils.FormatOptions{WindowsLineBreaks: true},
			want:  "line one\r\nline two",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := utils.FormatContent(tt.input, tt.opts)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatContentIdempotent(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"plain text",
		"**bold** and *emphasis*\n\n\nwith   spaces",
		"recap of the day #Bitcoin #Ethereum",
		"line one\nline two\n\n\nline three",
	}
	opts := utils.FormatOptions{SeparateHashtags: true}

	for _, input := range inputs {
		once := utils.FormatContent(input, opts)
		twice := utils.FormatContent(once, opts)
		assert.Equal(t, once, twice, "formatting must be idempotent for %q", input)
	}
}

func TestReplacePlaceholders(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		tpl      string
		vals     map[string]string
		fallback string
		want     string
	}{
		{
			name:     "missing key uses fallback",
			tpl:      "1. %1%\n2. %3%",
			vals:     map[string]string{"1": "BTC"},
			fallback: "N/A",
			want:     "1. BTC\n2. N/A",
		},
		{
			name:     "all keys present",
			tpl:      "%name% at %price%",
			vals:     map[string]string{"name": "Bitcoin", "price": "$60k"},
			fallback: "?",
			want:     "Bitcoin at $60k",
		},
		{
			name:     "no placeholders",
			tpl:      "static text",
			vals:     map[string]string{"1": "x"},
			fallback: "?",
			want:     "static text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := utils.ReplacePlaceholders(tt.tpl, tt.vals, tt.fallback)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindHashtags(t *testing.T) {
	t.Parallel()

	tags := utils.FindHashtags("Check out #Bitcoin and #Ethereum! #Crypto")
	assert.Len(t, tags, 3)
	assert.Equal(t, []string{"#Bitcoin", "#Ethereum", "#Crypto"}, tags)

	assert.Empty(t, utils.FindHashtags("no tags here"))
}
