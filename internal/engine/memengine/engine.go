// Package memengine is an in-process browsing engine. Surfaces simulate page
// loads and partitions keep their storage in memory, which makes it the engine
// of choice for tests and for running the server without containers.
package memengine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/shehryarbajwa/tabhost/internal/engine"
)

// ErrDestroyed is returned by operations on a destroyed surface
var ErrDestroyed = errors.New("surface destroyed")

// NativeHeaders are the headers the engine would send on its own, including
// its own client hints, before any partition rewriter runs.
func NativeHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) MemEngine/1.0")
	h.Set("Sec-CH-UA", `"MemEngine";v="1"`)
	h.Set("Sec-CH-UA-Mobile", "?0")
	h.Set("Sec-CH-UA-Platform", `"Linux"`)
	h.Set("Accept", "text/html")
	return h
}

// Engine is the in-memory engine
type Engine struct {
	mu         sync.Mutex
	dispatch   engine.Dispatcher
	partitions map[engine.PartitionKey]*Partition
	order      []engine.PartitionKey
	surfaces   map[string]*Surface
	visible    *Surface
	nextID     int
	failHosts  map[string]bool
}

// New creates an engine delivering callbacks through dispatch. A nil dispatch
// runs callbacks inline.
func New(dispatch engine.Dispatcher) *Engine {
	if dispatch == nil {
		dispatch = func(fn func()) { fn() }
	}
	return &Engine{
		dispatch:   dispatch,
		partitions: make(map[engine.PartitionKey]*Partition),
		surfaces:   make(map[string]*Surface),
		failHosts:  make(map[string]bool),
	}
}

// FailHost makes every navigation to host end in a load error
func (e *Engine) FailHost(host string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failHosts[host] = true
}

// Partition returns the partition for key, creating it lazily
func (e *Engine) Partition(key engine.PartitionKey) engine.Partition {
	return e.partition(key)
}

// Storage returns the concrete partition for inspection
func (e *Engine) Storage(key engine.PartitionKey) *Partition {
	return e.partition(key)
}

func (e *Engine) partition(key engine.PartitionKey) *Partition {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.partitions[key]
	if !ok {
		p = &Partition{key: key, storage: make(map[string]string)}
		e.partitions[key] = p
		e.order = append(e.order, key)
	}
	return p
}

// Partitions returns every partition created so far
func (e *Engine) Partitions() []engine.Partition {
	e.mu.Lock()
	defer e.mu.Unlock()
	parts := make([]engine.Partition, 0, len(e.order))
	for _, k := range e.order {
		parts = append(parts, e.partitions[k])
	}
	return parts
}

// DropPartition forgets the partition for key
func (e *Engine) DropPartition(key engine.PartitionKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.partitions[key]; !ok {
		return
	}
	delete(e.partitions, key)
	e.order = slices.DeleteFunc(e.order, func(k engine.PartitionKey) bool { return k == key })
}

// NewSurface creates a surface bound to p
func (e *Engine) NewSurface(_ context.Context, p engine.Partition, obs engine.Observer) (engine.Surface, error) {
	part, ok := p.(*Partition)
	if !ok {
		return nil, fmt.Errorf("partition %s was not created by memengine", p.Key())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	s := &Surface{
		id:        fmt.Sprintf("mem-%d", e.nextID),
		engine:    e,
		partition: part,
		obs:       obs,
		zoom:      1,
	}
	e.surfaces[s.id] = s
	return s, nil
}

// Show attaches s to the visible region
func (e *Engine) Show(s engine.Surface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ms, ok := s.(*Surface); ok && !ms.Destroyed() {
		e.visible = ms
	}
}

// Hide detaches s from the visible region without destroying it
func (e *Engine) Hide(s engine.Surface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.visible != nil && e.visible == s {
		e.visible = nil
	}
}

// Visible returns the surface currently attached to the window, if any
func (e *Engine) Visible() *Surface {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visible
}

// LiveSurfaces returns how many surfaces have not been destroyed
func (e *Engine) LiveSurfaces() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.surfaces)
}

// Close destroys every surface
func (e *Engine) Close() error {
	e.mu.Lock()
	surfaces := make([]*Surface, 0, len(e.surfaces))
	for _, s := range e.surfaces {
		surfaces = append(surfaces, s)
	}
	e.mu.Unlock()
	for _, s := range surfaces {
		s.Destroy()
	}
	return nil
}

func (e *Engine) shouldFail(rawURL string) bool {
	if strings.HasPrefix(rawURL, "fail:") {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failHosts[u.Hostname()]
}

func titleFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
