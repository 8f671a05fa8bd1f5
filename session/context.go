package session

import "context"

type visitorKey struct{}

// WithVisitor returns a context carrying v
func WithVisitor(ctx context.Context, v *Visitor) context.Context {
	return context.WithValue(ctx, visitorKey{}, v)
}

// VisitorFromContext returns the visitor of the request, if any
func VisitorFromContext(ctx context.Context) (*Visitor, bool) {
	v, ok := ctx.Value(visitorKey{}).(*Visitor)
	return v, ok && v != nil
}
