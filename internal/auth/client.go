package auth

import (
	"context"
	"sync"

	"github.com/iliyamo/typing-contest/internal/model"
)

// Listener receives the new identity, or nil after sign out.
type Listener func(*model.Identity)

// Client is the identity provider of one UI connection. Listeners are
// called synchronously, outside the client's lock, after every change and
// once on Subscribe with the current identity.
type Client struct {
	svc *Service

	mu        sync.Mutex
	session   *Session
	listeners map[int]Listener
	nextID    int
}

func NewClient(svc *Service) *Client {
	return &Client{svc: svc, listeners: map[int]Listener{}}
}

// SignUp registers and signs in.
func (c *Client) SignUp(ctx context.Context, email, password string) error {
	s, err := c.svc.Register(ctx, email, password)
	if err != nil {
		return err
	}
	c.set(&s)
	return nil
}

// SignIn signs in with an existing account.
func (c *Client) SignIn(ctx context.Context, email, password string) error {
	s, err := c.svc.Login(ctx, email, password)
	if err != nil {
		return err
	}
	c.set(&s)
	return nil
}

// Resume restores a session from an access token handed over by the
// transport.
func (c *Client) Resume(ctx context.Context, accessToken string) error {
	id, err := c.svc.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}
	c.set(&Session{Identity: id})
	return nil
}

// SignOut drops the session and revokes its refresh token when there is
// one.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	var err error
	if s.Refresh.Raw != "" {
		err = c.svc.Logout(ctx, s.Identity.UserID, s.Refresh.Raw)
	}
	c.set(nil)
	return err
}

// Current returns a copy of the signed-in identity, or nil.
func (c *Client) Current() *model.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	id := c.session.Identity
	return &id
}

// Session returns a copy of the current session, or nil.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// Subscribe registers fn and calls it with the current identity. The
// returned function removes it.
func (c *Client) Subscribe(fn Listener) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	fn(c.Current())

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) set(s *Session) {
	c.mu.Lock()
	c.session = s
	fns := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	cur := c.Current()
	for _, fn := range fns {
		fn(cur)
	}
}
