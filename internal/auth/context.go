package auth

import (
	"context"
	"strings"
)

// Context describes the caller identity established for one request.
// It is built once by the authentication layer, never mutated, and read
// by the permission resolver.
type Context struct {
	Anonymous bool
	Username  string

	Superuser               bool
	GlobalReadonlySuperuser bool
	RestrictedUser          bool
}

// AnonymousContext returns the identity of an unauthenticated caller.
func AnonymousContext() *Context {
	return &Context{Anonymous: true}
}

// Namespace returns the namespace the caller acts as the owner of.
// Robot accounts ("namespace+robot") belong to the namespace before
// the plus sign.
func (c *Context) Namespace() string {
	if c == nil || c.Anonymous {
		return ""
	}
	if i := strings.Index(c.Username, "+"); i >= 0 {
		return c.Username[:i]
	}
	return c.Username
}

// Robot reports whether the caller is a robot account.
func (c *Context) Robot() bool {
	return c != nil && strings.Contains(c.Username, "+")
}

type contextKey struct{}

// NewContext returns a copy of parent carrying the caller identity.
func NewContext(parent context.Context, c *Context) context.Context {
	return context.WithValue(parent, contextKey{}, c)
}

// FromContext returns the caller identity stored in ctx, or the
// anonymous identity when none was established.
func FromContext(ctx context.Context) *Context {
	if c, ok := ctx.Value(contextKey{}).(*Context); ok && c != nil {
		return c
	}
	return AnonymousContext()
}
