package domain

import "context"

type queryUsageKey struct{}

// QueryUsage records what embedding a search query cost. The HTTP layer
// reports it in the X-Embedding-Tokens response header.
type QueryUsage struct {
	Tokens   int
	Embedded bool // set even when the provider reports zero tokens
}

// WithQueryUsage attaches a fresh collector to ctx.
func WithQueryUsage(ctx context.Context) (context.Context, *QueryUsage) {
	u := &QueryUsage{}
	return context.WithValue(ctx, queryUsageKey{}, u), u
}

// QueryUsageFrom returns the collector attached to ctx, or nil.
func QueryUsageFrom(ctx context.Context) *QueryUsage {
	u, _ := ctx.Value(queryUsageKey{}).(*QueryUsage)
	return u
}

// Record adds the tokens of one query embedding. Safe on a nil collector.
func (u *QueryUsage) Record(tokens int) {
	if u == nil {
		return
	}
	u.Tokens += tokens
	u.Embedded = true
}
