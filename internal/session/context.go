// Package session tracks the simulation session that storage writes under.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OCAP2/softbody/pkg/core"
)

// Context holds the current session.
type Context struct {
	mu      sync.RWMutex
	session *core.Session
	active  bool
}

// NewContext creates a new Context with a placeholder session.
func NewContext() *Context {
	return &Context{session: &core.Session{Name: "No session started"}}
}

// Start begins a new session with a fresh id and makes it current.
func (c *Context) Start(name string, tickHz int, origin core.GeoOrigin) *core.Session {
	s := &core.Session{
		ID:        uuid.NewString(),
		Name:      name,
		StartedAt: time.Now().UTC(),
		TickHz:    tickHz,
		Origin:    origin,
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	c.active = true
	return s
}

// End marks the current session finished. It returns false when none was
// running.
func (c *Context) End() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.active
	c.active = false
	return was
}

// Get returns the current session.
func (c *Context) Get() *core.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Active reports whether a session is running.
func (c *Context) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}
