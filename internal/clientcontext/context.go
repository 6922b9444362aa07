package clientcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// ClientContextKey is the request context key for the active client (tenant) ID.
type ClientContextKey struct{}

// WithClientID stores the client ID in the context.
func WithClientID(ctx context.Context, clientID snowflake.ID) context.Context {
	return context.WithValue(ctx, ClientContextKey{}, clientID)
}

// ClientIDFromContext returns the client ID from context, if set.
func ClientIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}

	switch typed := ctx.Value(ClientContextKey{}).(type) {
	case snowflake.ID:
		return typed, typed != 0
	case int64:
		return snowflake.ID(typed), typed != 0
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil && parsed != 0 {
			return parsed, true
		}
	}
	return 0, false
}
