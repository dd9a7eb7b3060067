package sql2hub

import (
	"context"
)

type ctxKey int

const (
	tagsKey ctxKey = 0
)

const (
	// TagRunID is the context tag holding the id of the current run
	TagRunID = "run_id"
	// TagQuery is the context tag holding the query text of the current run
	TagQuery = "query"
)

// WithTags returns a copy of ctx carrying the given tags merged over any existing ones.
// The tags are added to every log entry written with ctx.
func WithTags(ctx context.Context, tags map[string]any) context.Context {
	merged := map[string]any{}
	for k, v := range GetTags(ctx) {
		merged[k] = v
	}
	for k, v := range tags {
		merged[k] = v
	}
	return context.WithValue(ctx, tagsKey, merged)
}

// GetTags returns the tags on the context. The returned map must not be modified.
func GetTags(ctx context.Context) map[string]any {
	if ctx == nil {
		return nil
	}
	tags, _ := ctx.Value(tagsKey).(map[string]any)
	return tags
}

// GetTag returns a single tag value from the context if it exists
func GetTag(ctx context.Context, key string) (any, bool) {
	val, ok := GetTags(ctx)[key]
	return val, ok
}
