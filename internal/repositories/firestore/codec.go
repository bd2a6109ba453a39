package firestore

import (
	"time"

	"github.com/spf13/cast"
)

// Catalog documents were historically written by a browser client, so numeric and list fields are
// decoded leniently from whatever representation is stored.

func stringField(data map[string]any, key string) string {
	value, ok := data[key]
	if !ok || value == nil {
		return ""
	}
	return cast.ToString(value)
}

func intField(data map[string]any, key string) int {
	value, ok := data[key]
	if !ok || value == nil {
		return 0
	}
	return cast.ToInt(value)
}

func int64Field(data map[string]any, key string) int64 {
	value, ok := data[key]
	if !ok || value == nil {
		return 0
	}
	return cast.ToInt64(value)
}

func timeField(data map[string]any, key string) time.Time {
	if value, ok := data[key].(time.Time); ok {
		return value.UTC()
	}
	return time.Time{}
}

func stringSliceField(data map[string]any, key string) []string {
	raw, ok := data[key].([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item == nil {
			continue
		}
		out = append(out, cast.ToString(item))
	}
	return out
}

func mapSliceField(data map[string]any, key string) []map[string]any {
	raw, ok := data[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if entry, ok := item.(map[string]any); ok {
			out = append(out, entry)
		}
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
