package productboard

import (
	"context"
	"sort"
	"sync"

	"productboard-mcp/internal/config"
)

// Pool keeps one Client per configured instance so every session using an
// instance shares its circuit breaker and rate limit budget.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*Client
	base    Options
}

// NewPool creates a pool; base supplies everything but instance credentials
func NewPool(base Options) *Pool {
	return &Pool{
		clients: make(map[string]*Client),
		base:    base,
	}
}

// Client returns the client for inst, creating it on first use. A rotated
// token yields a new client.
func (p *Pool) Client(inst *config.Instance) (*Client, error) {
	key := inst.CacheKey()

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[key]; ok {
		return c, nil
	}

	opts := p.base
	opts.Instance = inst.Name
	opts.Token = inst.APIToken
	if inst.BaseURL != "" {
		opts.BaseURL = inst.BaseURL
	}

	c, err := NewClient(opts)
	if err != nil {
		return nil, err
	}
	p.clients[key] = c
	return c, nil
}

// Clients returns the created clients ordered by instance name
func (p *Pool) Clients() []*Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*Client, 0, len(p.clients))
	for _, c := range p.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].instance < out[j].instance })
	return out
}

type (
	clientKey   struct{}
	resolverKey struct{}
)

// Resolver produces the client for a call on first use
type Resolver func() (*Client, error)

// WithClient stores the resolved client for a tool call
func WithClient(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// FromContext returns the client stored by WithClient
func FromContext(ctx context.Context) (*Client, bool) {
	c, ok := ctx.Value(clientKey{}).(*Client)
	return c, ok && c != nil
}

// WithResolver defers client resolution until a tool needs Productboard,
// so tools that never call upstream do not require credentials.
func WithResolver(ctx context.Context, r Resolver) context.Context {
	return context.WithValue(ctx, resolverKey{}, r)
}

// Resolve returns the client stored with WithClient, or runs the resolver
// stored with WithResolver. It returns (nil, nil) when neither is present.
func Resolve(ctx context.Context) (*Client, error) {
	if c, ok := FromContext(ctx); ok {
		return c, nil
	}
	if r, ok := ctx.Value(resolverKey{}).(Resolver); ok && r != nil {
		return r()
	}
	return nil, nil
}
