package session

import (
	"log/slog"
	"sync"

	domainauth "github.com/uvalib/tracksys2/internal/domain/auth"
)

// Context is the session state for one browser: the current bearer token
// and the user decoded from it. It is owned by the workspace and handed
// explicitly to the guard and the API client.
type Context struct {
	codec  *Codec
	logger *slog.Logger

	mu    sync.RWMutex
	token string
	user  domainauth.User
}

// NewContext creates an empty (signed out) session context.
func NewContext(codec *Codec, logger *slog.Logger) *Context {
	if codec == nil {
		codec = NewCodec("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{codec: codec, logger: logger}
}

// SetJWT installs token and decodes it into the session fields.
// Empty, "null" and unchanged tokens are ignored. It returns true when
// the session changed.
//
// A token that cannot be decoded leaves the session signed out.
func (c *Context) SetJWT(token string) bool {
	if token == "" || token == "null" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if token == c.token {
		return false
	}

	user, err := c.codec.Decode(token)
	if err != nil {
		c.logger.Debug("discarding undecodable session token", slog.Any("error", err))
		c.token = ""
		c.user = domainauth.User{}
		return true
	}

	c.token = token
	c.user = user
	return true
}

// Token returns the current bearer token, or "".
func (c *Context) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// User returns a copy of the signed-in user.
func (c *Context) User() domainauth.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// SignedIn reports whether a valid session exists.
func (c *Context) SignedIn() bool {
	return c.User().SignedIn()
}

// SignOut clears every session field.
func (c *Context) SignOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.user = domainauth.User{}
}
