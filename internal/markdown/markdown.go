// Package markdown renders untrusted markdown (experiment instructions, item
// content, option text) to sanitized HTML for the voting and results views.
package markdown

import (
	"bytes"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	once     sync.Once
	md       goldmark.Markdown
	sanitize *bluemonday.Policy
)

func setup() {
	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		// Newlines become <br>, matching how authors write option text.
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
	sanitize = bluemonday.UGCPolicy()
}

// Render converts markdown to sanitized HTML. Empty input renders empty.
func Render(text string) string {
	if text == "" {
		return ""
	}
	once.Do(setup)
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		// Conversion failure falls back to the sanitized raw text.
		return sanitize.Sanitize(text)
	}
	return sanitize.Sanitize(buf.String())
}
