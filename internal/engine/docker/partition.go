package docker

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/tabhost/internal/engine"
)

// sentinel values stand in for the browser's own headers; whatever the
// rewriter leaves at its sentinel value is not overridden.
const sentinel = "tabhost-sentinel"

// Partition is a profile directory shared by the surfaces bound to it
type Partition struct {
	key engine.PartitionKey
	dir string
	log *zap.Logger

	mu       sync.Mutex
	rewriter func(http.Header)
	proxy    engine.ProxyConfig
	surfaces map[*Surface]struct{}
}

// Key returns the partition key
func (p *Partition) Key() engine.PartitionKey { return p.key }

// Dir returns the host directory holding the profile
func (p *Partition) Dir() string { return p.dir }

// SetHeaderRewriter replaces the rewriter and pushes the resulting overrides
// to every live surface of the partition.
func (p *Partition) SetHeaderRewriter(fn func(http.Header)) {
	p.mu.Lock()
	p.rewriter = fn
	live := p.live()
	p.mu.Unlock()

	for _, s := range live {
		s.applyHeaders()
	}
}

// SetProxy records the proxy rule; surfaces launched afterwards use it
func (p *Partition) SetProxy(_ context.Context, cfg engine.ProxyConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proxy = cfg
	return nil
}

// Proxy returns the recorded proxy rule
func (p *Partition) Proxy() engine.ProxyConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.proxy
}

// ClearStorage empties the profile directory and drops cookies and cache of
// live surfaces.
func (p *Partition) ClearStorage(ctx context.Context) error {
	p.mu.Lock()
	live := p.live()
	p.mu.Unlock()

	for _, s := range live {
		for _, method := range []string{"Network.clearBrowserCookies", "Network.clearBrowserCache"} {
			if _, err := s.cdp.Call(ctx, s.session(), method, nil); err != nil {
				p.log.Warn("failed to clear live surface", zap.String("surface", s.id), zap.String("method", method), zap.Error(err))
			}
		}
	}
	if err := clearDir(p.dir); err != nil {
		return fmt.Errorf("failed to clear partition %s: %w", p.key, err)
	}
	p.log.Info("partition cleared", zap.String("partition", string(p.key)))
	return nil
}

// overrides returns what the partition's rewriter makes of the browser's
// own identity headers
func (p *Partition) overrides() (string, map[string]string) {
	p.mu.Lock()
	fn := p.rewriter
	p.mu.Unlock()
	return headerOverrides(fn)
}

func (p *Partition) attach(s *Surface) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.surfaces[s] = struct{}{}
}

func (p *Partition) detach(s *Surface) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.surfaces, s)
}

func (p *Partition) live() []*Surface {
	out := make([]*Surface, 0, len(p.surfaces))
	for s := range p.surfaces {
		out = append(out, s)
	}
	return out
}

// headerOverrides runs fn over a sentinel header set. The user agent comes back
// separately since it needs its own override; every other header fn set or
// changed is returned as an extra header.
func headerOverrides(fn func(http.Header)) (string, map[string]string) {
	h := http.Header{}
	h.Set("User-Agent", sentinel)
	h.Set("Sec-CH-UA", sentinel)
	h.Set("Sec-CH-UA-Mobile", sentinel)
	h.Set("Sec-CH-UA-Platform", sentinel)
	if fn != nil {
		fn(h)
	}

	ua := h.Get("User-Agent")
	if ua == sentinel {
		ua = ""
	}
	extra := make(map[string]string)
	for k := range h {
		if k == "User-Agent" {
			continue
		}
		if v := h.Get(k); v != sentinel {
			extra[k] = v
		}
	}
	return ua, extra
}

// clearDir removes everything inside dir but keeps dir itself, which stays
// bind-mounted into running containers.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dir, 0o755)
		}
		return err
	}
	var failed []string
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			failed = append(failed, e.Name())
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("could not remove %s", strings.Join(failed, ", "))
	}
	return nil
}
