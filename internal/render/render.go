// Package render holds the reply formatting shared by every front end.
package render

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const (
	CriticalBanner = "⚠️ Critical condition detected — emergency guidance was provided."
	BusyNotice     = "Still working on your previous message…"
	ExpiredNotice  = "Your conversation ended after a period of inactivity. Send a message to start a new one."
	Placeholder    = "Talk to your AI Medical Receptionist..."
	Title          = "🩺 MedSeek AI Receptionist"
)

// htmlTag matches an opening or closing tag of a common block or inline element.
var htmlTag = regexp.MustCompile(`(?i)</?(p|br|div|span|ul|ol|li|b|strong|i|em|a|h[1-6]|table|tr|td|th|code|pre)(\s[^>]*)?/?>`)

// LooksLikeHTML reports whether a reply carries HTML markup. Workflows often
// format answers for a browser.
func LooksLikeHTML(text string) bool {
	return htmlTag.MatchString(text)
}

// Markdown converts an HTML reply to Markdown and returns anything else
// unchanged.
func Markdown(text string) string {
	if !LooksLikeHTML(text) {
		return text
	}
	md, err := htmltomarkdown.ConvertString(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(md)
}

// ErrorBanner formats a transient error for display.
func ErrorBanner(lastError string) string {
	if strings.HasPrefix(lastError, "⚠️") {
		return lastError
	}
	return "⚠️ " + lastError
}
