// Package textutil normalises free text before it is persisted.
package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// PlainText strips HTML tags and trims surrounding whitespace. Ampersands are escaped before
// sanitizing so entities typed as text ("&amp;") survive literally; only the sanitizer's own escaping
// is undone. Anything that parses as a tag ("<b>", "<Zigbee>") is removed. "<5cm>" is not a tag and stays.
func PlainText(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if !strings.ContainsAny(value, "<&") {
		return value
	}
	escaped := strings.ReplaceAll(value, "&", "&amp;")
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(escaped)))
}

// PlainTextList applies PlainText to each entry and drops entries that end up empty.
// Order and duplicates are kept, since feature bullets may legitimately repeat.
func PlainTextList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if cleaned := PlainText(value); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

// UniqueIDs trims ids, drops blanks and removes duplicates while keeping first-seen order.
func UniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
