// Package docker is the browsing engine backed by browser containers. Each
// rendering surface is its own browserless/chrome container driven over the
// DevTools protocol; a partition is a host directory mounted as the
// container's profile.
package docker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/tabhost/internal/cdp"
	"github.com/shehryarbajwa/tabhost/internal/engine"
)

// Options configures the engine
type Options struct {
	Image        string
	DataDir      string
	MaxLaunches  int64
	ReadyTimeout time.Duration
	Dispatch     engine.Dispatcher
	Logger       *zap.Logger
}

// Engine launches and tracks browser containers
type Engine struct {
	client *client.Client
	opts   Options
	sem    *semaphore.Weighted
	log    *zap.Logger

	mu         sync.Mutex
	partitions map[engine.PartitionKey]*Partition
	order      []engine.PartitionKey
	surfaces   map[string]*Surface
	visible    *Surface
}

// New connects to the docker daemon from the environment
func New(opts Options) (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if opts.Image == "" {
		opts.Image = "browserless/chrome:latest"
	}
	if opts.MaxLaunches <= 0 {
		opts.MaxLaunches = 4
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 10 * time.Second
	}
	if opts.Dispatch == nil {
		return nil, errors.New("docker engine needs a dispatcher")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		client:     cli,
		opts:       opts,
		sem:        semaphore.NewWeighted(opts.MaxLaunches),
		log:        opts.Logger.Named("docker"),
		partitions: make(map[engine.PartitionKey]*Partition),
		surfaces:   make(map[string]*Surface),
	}, nil
}

// Partition returns the partition for key, creating its directory on first use
func (e *Engine) Partition(key engine.PartitionKey) engine.Partition {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.partitions[key]; ok {
		return p
	}
	p := &Partition{
		key:      key,
		dir:      filepath.Join(e.opts.DataDir, "partitions", key.DirName()),
		surfaces: make(map[*Surface]struct{}),
		log:      e.log,
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		e.log.Error("failed to create partition directory", zap.String("dir", p.dir), zap.Error(err))
	}
	e.partitions[key] = p
	e.order = append(e.order, key)
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

// NewSurface launches a container for p, opens a page in it and starts
// forwarding its events to obs.
func (e *Engine) NewSurface(ctx context.Context, p engine.Partition, obs engine.Observer) (engine.Surface, error) {
	part, ok := p.(*Partition)
	if !ok {
		return nil, fmt.Errorf("partition %s was not created by the docker engine", p.Key())
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to wait for a launch slot: %w", err)
	}
	defer e.sem.Release(1)

	s := &Surface{
		id:        uuid.New().String(),
		engine:    e,
		partition: part,
		obs:       obs,
		dispatch:  e.opts.Dispatch,
		log:       e.log,
	}

	start := time.Now()
	containerID, port, err := e.launch(ctx, s.id, part)
	if err != nil {
		return nil, err
	}
	s.containerID = containerID

	wsURL := fmt.Sprintf("ws://localhost:%s?%s", port, launchQuery(part.Proxy()).Encode())
	conn, err := cdp.Dial(ctx, wsURL, s.handleEvent)
	if err != nil {
		e.remove(containerID)
		return nil, err
	}
	s.cdp = conn

	if err := s.open(ctx); err != nil {
		conn.Close()
		e.remove(containerID)
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	part.attach(s)
	e.mu.Lock()
	e.surfaces[s.id] = s
	e.mu.Unlock()

	e.log.Info("surface launched",
		zap.String("surface", s.id),
		zap.String("partition", string(part.key)),
		zap.String("container", containerID[:12]),
		zap.Duration("took", time.Since(start)))
	return s, nil
}

// Show brings s to the front of the visible region
func (e *Engine) Show(s engine.Surface) {
	ds, ok := s.(*Surface)
	if !ok {
		return
	}
	e.mu.Lock()
	e.visible = ds
	e.mu.Unlock()
	ds.async("Page.bringToFront", nil)
}

// Hide removes s from the visible region
func (e *Engine) Hide(s engine.Surface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ds, ok := s.(*Surface); ok && e.visible == ds {
		e.visible = nil
	}
}

// Close stops every container and closes the docker client
func (e *Engine) Close() error {
	e.mu.Lock()
	surfaces := make([]*Surface, 0, len(e.surfaces))
	for _, s := range e.surfaces {
		surfaces = append(surfaces, s)
	}
	e.surfaces = make(map[string]*Surface)
	e.visible = nil
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, s := range surfaces {
		s.release()
		if err := e.stop(ctx, s.containerID); err != nil {
			e.log.Warn("failed to stop surface", zap.String("surface", s.id), zap.Error(err))
		}
	}
	return e.client.Close()
}

func (e *Engine) forget(s *Surface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.surfaces, s.id)
	if e.visible == s {
		e.visible = nil
	}
}
