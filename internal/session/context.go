package session

import (
	"errors"

	"novelhub/internal/domain"
)

// ErrUnauthorized is returned by RequireAuth for anonymous requests. Callers
// redirect to the login page instead of performing the operation.
var ErrUnauthorized = errors.New("authentication required")

// Context is the per-request view of the session: the current user and the
// flash notices flowing in and out of this request.
type Context struct {
	user      *domain.User
	sessionID string
	incoming  []Notice
	outgoing  []Notice
}

// NewContext builds a request context; user may be nil for anonymous requests.
func NewContext(user *domain.User, notices []Notice) *Context {
	return &Context{user: user, incoming: notices}
}

func (c *Context) CurrentUser() (*domain.User, bool) {
	return c.user, c.user != nil
}

func (c *Context) RequireAuth() (*domain.User, error) {
	if c.user == nil {
		return nil, ErrUnauthorized
	}
	return c.user, nil
}

// Flash queues a notice for the next render.
func (c *Context) Flash(kind Kind, message string) {
	c.outgoing = append(c.outgoing, Notice{Kind: kind, Message: message})
}

// Notices returns the notices delivered to this request.
func (c *Context) Notices() []Notice {
	return c.incoming
}

// Outgoing returns the notices queued during this request.
func (c *Context) Outgoing() []Notice {
	return c.outgoing
}

// Drain returns incoming and queued notices together and empties both, so
// each notice is shown at most once.
func (c *Context) Drain() []Notice {
	out := make([]Notice, 0, len(c.incoming)+len(c.outgoing))
	out = append(out, c.incoming...)
	out = append(out, c.outgoing...)
	c.incoming = nil
	c.outgoing = nil
	return out
}
