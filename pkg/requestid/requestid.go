// Package requestid carries the inbound correlation id through a context so
// error bodies and outbox events can reference the request that caused them.
package requestid

import "context"

type key struct{}

func With(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key{}, id)
}

// From returns "" when ctx carries no id.
func From(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(key{}).(string)
	return id
}
