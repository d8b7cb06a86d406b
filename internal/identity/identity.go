// Package identity computes the outbound network identity of a partition
// (user agent, client hints, proxy rule) and installs it on partitions.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shehryarbajwa/tabhost/internal/engine"
	"github.com/shehryarbajwa/tabhost/pkg/models"
)

// HintPrefix is the reserved prefix of client-hint headers
const HintPrefix = "sec-ch-ua"

// Identity is the resolved user agent plus optional client hints
type Identity struct {
	Profile   string
	UserAgent string
	Hints     *ClientHints
}

// Resolve maps identity settings to an Identity
func Resolve(s models.IdentitySettings) Identity {
	if s.Profile == CustomProfile && strings.TrimSpace(s.CustomUserAgent) != "" {
		return Identity{Profile: CustomProfile, UserAgent: strings.TrimSpace(s.CustomUserAgent)}
	}
	p, ok := Lookup(s.Profile)
	if !ok {
		p, _ = Lookup(DefaultProfile)
	}
	return Identity{Profile: p.Name, UserAgent: p.UserAgent, Hints: p.Hints}
}

// HintHeaders returns the client-hint headers for this identity, empty when it has none
func (id Identity) HintHeaders() http.Header {
	h := http.Header{}
	if id.Hints == nil {
		return h
	}
	brands := make([]string, 0, len(id.Hints.Brands))
	for _, b := range id.Hints.Brands {
		brands = append(brands, fmt.Sprintf("%q;v=%q", b.Brand, b.Version))
	}
	mobile := "?0"
	if id.Hints.Mobile {
		mobile = "?1"
	}
	h.Set("Sec-CH-UA", strings.Join(brands, ", "))
	h.Set("Sec-CH-UA-Mobile", mobile)
	h.Set("Sec-CH-UA-Platform", fmt.Sprintf("%q", id.Hints.Platform))
	return h
}

// Rewrite overwrites the User-Agent, strips every client-hint header and
// re-adds exactly the hints this identity defines.
func (id Identity) Rewrite(h http.Header) {
	h.Set("User-Agent", id.UserAgent)
	for k := range h {
		if strings.HasPrefix(strings.ToLower(k), HintPrefix) {
			delete(h, k)
		}
	}
	for k, v := range id.HintHeaders() {
		h[k] = v
	}
}

// ProxyFor maps proxy settings to the engine's proxy rule
func ProxyFor(s models.ProxySettings) engine.ProxyConfig {
	switch s.Mode {
	case models.ProxyDirect:
		return engine.ProxyConfig{Mode: models.ProxyDirect}
	case models.ProxyFixed, models.ProxyPAC:
		if strings.TrimSpace(s.Rules) == "" {
			return engine.ProxyConfig{Mode: models.ProxySystem}
		}
		return engine.ProxyConfig{Mode: s.Mode, Rules: strings.TrimSpace(s.Rules), Bypass: s.Bypass}
	default:
		return engine.ProxyConfig{Mode: models.ProxySystem}
	}
}

// Configurator holds the active identity and proxy rule and applies them to partitions
type Configurator struct {
	mu       sync.RWMutex
	identity Identity
	proxy    engine.ProxyConfig
	log      *zap.Logger
}

// NewConfigurator creates a configurator from the current settings
func NewConfigurator(s models.Settings, log *zap.Logger) *Configurator {
	return &Configurator{
		identity: Resolve(s.Identity),
		proxy:    ProxyFor(s.Proxy),
		log:      log.Named("identity"),
	}
}

// Update switches to new settings and reports what changed
func (c *Configurator) Update(s models.Settings) (identityChanged, proxyChanged bool) {
	id := Resolve(s.Identity)
	proxy := ProxyFor(s.Proxy)

	c.mu.Lock()
	defer c.mu.Unlock()
	identityChanged = id.UserAgent != c.identity.UserAgent || id.Profile != c.identity.Profile
	proxyChanged = proxy != c.proxy
	c.identity = id
	c.proxy = proxy
	return identityChanged, proxyChanged
}

// Identity returns the active identity
func (c *Configurator) Identity() Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// Proxy returns the active proxy rule
func (c *Configurator) Proxy() engine.ProxyConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.proxy
}

// Apply installs the active identity on p, replacing any earlier rewriter.
// It must run before the partition issues its first request.
func (c *Configurator) Apply(p engine.Partition) {
	p.SetHeaderRewriter(c.Identity().Rewrite)
}

// ResolveProxy applies the active proxy rule to p
func (c *Configurator) ResolveProxy(ctx context.Context, p engine.Partition) error {
	if err := p.SetProxy(ctx, c.Proxy()); err != nil {
		return fmt.Errorf("failed to set proxy on %s: %w", p.Key(), err)
	}
	return nil
}

// ResolveAll re-resolves the proxy of every partition concurrently
func (c *Configurator) ResolveAll(ctx context.Context, parts []engine.Partition) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range parts {
		p := p
		g.Go(func() error {
			return c.ResolveProxy(gctx, p)
		})
	}
	return g.Wait()
}

// ApplyAll reinstalls the active identity on every partition
func (c *Configurator) ApplyAll(parts []engine.Partition) {
	for _, p := range parts {
		c.Apply(p)
	}
	c.log.Info("identity applied",
		zap.String("profile", c.Identity().Profile),
		zap.Int("partitions", len(parts)))
}
