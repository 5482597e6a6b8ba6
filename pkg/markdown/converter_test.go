package markdown

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestRepair(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"balanced", "**bold** and `code`", "**bold** and `code`"},
		{"open fence", "```go\nx := 1", "```go\nx := 1\n```"},
		{"open bold", "**bold", "**bold**"},
		{"open single star", "*a", "*a*"},
		{"open underscore", "snake_case", "snake_case_"},
		{"fence and underscore", "```\nmy_var", "```\nmy_var\n```_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Repair(tt.in))
		})
	}
}

func TestRepairClosesFenceBeforeCap(t *testing.T) {
	in := "```" + strings.Repeat("a", 3990)
	out := Repair(in)
	assert.True(t, strings.HasSuffix(out, "\n```"))
	assert.Equal(t, 0, strings.Count(out, "```")%2)
}

func TestRepairCapsLength(t *testing.T) {
	out := Repair(strings.Repeat("é", 4100))
	assert.Equal(t, MaxMessageLength, utf8.RuneCountInString(out))
	assert.True(t, utf8.ValidString(out))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "", Truncate("abc", 0))
	assert.Equal(t, "日本", Truncate("日本語", 2))
}

func TestStrip(t *testing.T) {
	assert.Equal(t, "a b c d", Strip("*a* _b_ `c` ~d~"))
}

func TestToTelegramHTML(t *testing.T) {
	assert.Equal(t, "", ToTelegramHTML(""))
	assert.Equal(t, "<b>hi</b> and <i>there</i>", ToTelegramHTML("**hi** and *there*"))

	html := ToTelegramHTML("# Title\n\n- one\n- two\n\n```\nx := 1\n```")
	assert.Contains(t, html, "<b>Title</b>")
	assert.Contains(t, html, "• one")
	assert.Contains(t, html, "<pre>x := 1")
	assert.NotContains(t, html, "<ul>")
	assert.NotContains(t, html, "<h1>")
}
