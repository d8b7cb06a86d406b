// Package engine defines the boundary between the tab manager and the
// browsing engine that actually renders pages and stores site data.
package engine

import (
	"context"
	"net/http"

	"github.com/shehryarbajwa/tabhost/pkg/models"
)

// Dispatcher delivers engine callbacks onto the control loop
type Dispatcher func(func())

// ProxyConfig is the proxy rule applied to a partition
type ProxyConfig struct {
	Mode   string
	Rules  string
	Bypass string
}

// Observer receives lifecycle callbacks from a surface. Every callback names
// the surface that produced it so late events from destroyed surfaces can be
// told apart from current ones.
type Observer interface {
	OnLoadStart(s Surface)
	OnLoadEnd(s Surface, err error)
	OnTitleChanged(s Surface, title string)
	OnNavigated(s Surface, url string)
	OnNewWindowRequest(s Surface, url string)
	OnContextMenu(s Surface, menu models.ContextMenu)
}

// Surface is a live rendering surface bound to one partition
type Surface interface {
	ID() string
	Navigate(url string) error
	Reload() error
	SetZoom(factor float64) error
	Destroy()
}

// Partition is a storage scope (cookies, cache, local storage) shared by the
// surfaces bound to it.
type Partition interface {
	Key() PartitionKey
	// SetHeaderRewriter replaces the request-header rewriter; it never stacks.
	SetHeaderRewriter(fn func(http.Header))
	SetProxy(ctx context.Context, cfg ProxyConfig) error
	ClearStorage(ctx context.Context) error
}

// Engine creates partitions and surfaces and owns the visible window region
type Engine interface {
	// Partition returns the partition for key, creating it on first use.
	Partition(key PartitionKey) Partition
	Partitions() []Partition
	// DropPartition forgets key; a later Partition call starts a new one.
	DropPartition(key PartitionKey)
	NewSurface(ctx context.Context, p Partition, obs Observer) (Surface, error)
	Show(s Surface)
	Hide(s Surface)
	Close() error
}
