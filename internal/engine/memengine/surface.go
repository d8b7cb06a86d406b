package memengine

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/shehryarbajwa/tabhost/internal/engine"
	"github.com/shehryarbajwa/tabhost/pkg/models"
)

// Partition keeps site data in a map
type Partition struct {
	mu       sync.Mutex
	key      engine.PartitionKey
	rewriter func(http.Header)
	proxy    engine.ProxyConfig
	storage  map[string]string
	clears   int
}

// Key returns the partition key
func (p *Partition) Key() engine.PartitionKey { return p.key }

// SetHeaderRewriter replaces the rewriter
func (p *Partition) SetHeaderRewriter(fn func(http.Header)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rewriter = fn
}

// SetProxy records the proxy configuration
func (p *Partition) SetProxy(ctx context.Context, cfg engine.ProxyConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proxy = cfg
	return nil
}

// ClearStorage drops all stored site data
func (p *Partition) ClearStorage(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.storage = make(map[string]string)
	p.clears++
	return nil
}

// Put stores a value, standing in for a cookie or local-storage write
func (p *Partition) Put(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.storage[key] = value
}

// Get reads a stored value
func (p *Partition) Get(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.storage[key]
	return v, ok
}

// Len returns the number of stored values
func (p *Partition) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.storage)
}

// Clears returns how many times the storage was wiped
func (p *Partition) Clears() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clears
}

// Proxy returns the last proxy configuration applied
func (p *Partition) Proxy() engine.ProxyConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.proxy
}

// Request returns the headers an outgoing request from this partition carries
func (p *Partition) Request() http.Header {
	h := NativeHeaders()
	p.mu.Lock()
	fn := p.rewriter
	p.mu.Unlock()
	if fn != nil {
		fn(h)
	}
	return h
}

// Surface simulates a page view
type Surface struct {
	mu          sync.Mutex
	id          string
	engine      *Engine
	partition   *Partition
	obs         engine.Observer
	destroyed   bool
	url         string
	zoom        float64
	navigations []string
	lastHeaders http.Header
}

// ID returns the surface handle id
func (s *Surface) ID() string { return s.id }

// Navigate simulates loading url; callbacks arrive through the dispatcher
func (s *Surface) Navigate(url string) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	s.url = url
	s.navigations = append(s.navigations, url)
	s.lastHeaders = s.partition.Request()
	s.mu.Unlock()

	fail := s.engine.shouldFail(url)
	s.engine.dispatch(func() {
		s.obs.OnLoadStart(s)
		if fail {
			s.obs.OnLoadEnd(s, fmt.Errorf("net::ERR_NAME_NOT_RESOLVED loading %s", url))
			return
		}
		s.obs.OnNavigated(s, url)
		s.obs.OnTitleChanged(s, titleFor(url))
		s.obs.OnLoadEnd(s, nil)
	})
	return nil
}

// Reload simulates reloading the current page
func (s *Surface) Reload() error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	s.lastHeaders = s.partition.Request()
	s.mu.Unlock()

	s.engine.dispatch(func() {
		s.obs.OnLoadStart(s)
		s.obs.OnLoadEnd(s, nil)
	})
	return nil
}

// SetZoom records the zoom factor
func (s *Surface) SetZoom(factor float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	s.zoom = factor
	return nil
}

// Destroy releases the surface
func (s *Surface) Destroy() {
	s.mu.Lock()
	s.destroyed = true
	s.mu.Unlock()

	s.engine.mu.Lock()
	delete(s.engine.surfaces, s.id)
	if s.engine.visible == s {
		s.engine.visible = nil
	}
	s.engine.mu.Unlock()
}

// Destroyed reports whether the surface was released
func (s *Surface) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Zoom returns the current zoom factor
func (s *Surface) Zoom() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoom
}

// Navigations returns every URL this surface was asked to load
func (s *Surface) Navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigations...)
}

// LastHeaders returns the headers of the most recent request
func (s *Surface) LastHeaders() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeaders.Clone()
}

// Partition returns the partition the surface is bound to
func (s *Surface) Partition() *Partition { return s.partition }

// OpenWindow simulates the page calling window.open
func (s *Surface) OpenWindow(url string) {
	s.engine.dispatch(func() { s.obs.OnNewWindowRequest(s, url) })
}

// RequestContextMenu simulates a right click
func (s *Surface) RequestContextMenu(menu models.ContextMenu) {
	s.engine.dispatch(func() { s.obs.OnContextMenu(s, menu) })
}
