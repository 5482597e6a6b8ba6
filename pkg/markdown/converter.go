package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

// MaxMessageLength is the outbound cap applied after markup repair, in characters.
const MaxMessageLength = 4000

var (
	paragraphRe   = regexp.MustCompile(`(?s)<p>(.*?)</p>`)
	codeBlockRe   = regexp.MustCompile(`(?s)<pre><code(?: class="[^"]*")?>(.*?)</code></pre>`)
	headingRe     = regexp.MustCompile(`(?s)<h[1-6][^>]*>(.*?)</h[1-6]>`)
	anyTagRe      = regexp.MustCompile(`</?([a-zA-Z0-9]+)(?:\s[^>]*)?/?>`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
	supportedTags = map[string]bool{"b": true, "i": true, "u": true, "s": true, "code": true, "pre": true, "a": true}
)

// Repair closes unbalanced legacy Markdown markers and caps the text.
// Each check runs on the output of the previous one: code fences first, then
// bold, underscore and single asterisk. The cap is applied last so a closing
// fence can itself be cut off for very long input.
func Repair(text string) string {
	if text == "" {
		return text
	}

	if strings.Count(text, "```")%2 != 0 {
		text += "\n```"
	}
	if strings.Count(text, "**")%2 != 0 {
		text += "**"
	}
	if strings.Count(text, "_")%2 != 0 {
		text += "_"
	}
	if strings.Count(text, "*")%2 != 0 {
		text += "*"
	}

	return Truncate(text, MaxMessageLength)
}

// Truncate cuts text to at most n runes.
func Truncate(text string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}

// Strip removes the markers Telegram's legacy Markdown parser reacts to.
func Strip(text string) string {
	return strings.NewReplacer("*", "", "_", "", "`", "", "~", "").Replace(text)
}

// ToTelegramHTML converts markdown to the HTML subset Telegram accepts
func ToTelegramHTML(markdown string) string {
	if markdown == "" {
		return ""
	}

	html := string(blackfriday.Run([]byte(markdown),
		blackfriday.WithExtensions(blackfriday.CommonExtensions|blackfriday.HardLineBreak)))

	return cleanHTMLForTelegram(html)
}

func cleanHTMLForTelegram(html string) string {
	html = paragraphRe.ReplaceAllString(html, "$1\n")
	html = headingRe.ReplaceAllString(html, "<b>$1</b>\n")
	html = codeBlockRe.ReplaceAllString(html, "<pre>$1</pre>")

	html = strings.NewReplacer(
		"<strong>", "<b>", "</strong>", "</b>",
		"<em>", "<i>", "</em>", "</i>",
		"<del>", "<s>", "</del>", "</s>",
		"<li>", "• ", "</li>", "",
		"<br />", "\n", "<br>", "\n",
		"<hr />", "\n",
	).Replace(html)

	// drop everything Telegram would reject
	html = anyTagRe.ReplaceAllStringFunc(html, func(tag string) string {
		m := anyTagRe.FindStringSubmatch(tag)
		if len(m) > 1 && supportedTags[strings.ToLower(m[1])] {
			return tag
		}
		return ""
	})

	html = blankLinesRe.ReplaceAllString(html, "\n\n")
	return strings.TrimSpace(html)
}
