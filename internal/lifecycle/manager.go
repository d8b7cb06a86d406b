// Package lifecycle drives tabs through their states: loading, idle,
// hibernated and destroyed. It binds tab records to engine partitions and
// surfaces and keeps the store, the layout and the presentation layer in step.
//
// Every Manager method runs on the control loop. Engine callbacks arrive
// through the engine's dispatcher on the same loop.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/tabhost/internal/engine"
	"github.com/shehryarbajwa/tabhost/internal/identity"
	"github.com/shehryarbajwa/tabhost/internal/metrics"
	"github.com/shehryarbajwa/tabhost/internal/settings"
	"github.com/shehryarbajwa/tabhost/internal/state"
	"github.com/shehryarbajwa/tabhost/pkg/models"
)

// ErrUnknownTab is returned at the API boundary for ids the store does not know
var ErrUnknownTab = errors.New("unknown tab")

// Palette is the round-robin tab color palette
var Palette = []string{
	"#ef4444", "#f97316", "#eab308", "#22c55e",
	"#06b6d4", "#3b82f6", "#8b5cf6", "#ec4899",
}

const (
	MinZoom = 0.25
	MaxZoom = 5.0

	// backgroundTimeout bounds engine work that runs off the control loop
	backgroundTimeout = 30 * time.Second
)

// Emitter delivers events to the presentation layer
type Emitter interface {
	Emit(models.Event)
}

// Saver accepts session snapshots to be written later
type Saver interface {
	Schedule(models.SessionDocument)
}

// Options configures a Manager
type Options struct {
	Store    *state.Store
	Engine   engine.Engine
	Identity *identity.Configurator
	Settings *settings.Service
	Emitter  Emitter
	Saver    Saver
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Now      func() time.Time
	// Background runs engine work that must not block the loop. Defaults to
	// a new goroutine per call.
	Background func(func())
}

// CreateOptions are the optional inputs of Create and Open
type CreateOptions struct {
	FromTabID  string
	IsShared   bool
	ZoomFactor float64
}

// binding is the live engine state of an awake tab
type binding struct {
	partition engine.Partition
	surface   engine.Surface
	// expect is the history index the in-flight navigation lands on, -1 for a
	// fresh navigation
	expect int
}

// Manager owns tab lifecycles
type Manager struct {
	store      *state.Store
	engine     engine.Engine
	identity   *identity.Configurator
	settings   *settings.Service
	emitter    Emitter
	saver      Saver
	metrics    *metrics.Metrics
	log        *zap.Logger
	now        func() time.Time
	background func(func())

	bindings  map[string]*binding
	busy      map[string]bool
	nextColor int
}

// NewManager creates a manager
func NewManager(opts Options) *Manager {
	m := &Manager{
		store:      opts.Store,
		engine:     opts.Engine,
		identity:   opts.Identity,
		settings:   opts.Settings,
		emitter:    opts.Emitter,
		saver:      opts.Saver,
		metrics:    opts.Metrics,
		log:        opts.Logger,
		now:        opts.Now,
		background: opts.Background,
		bindings:   make(map[string]*binding),
		busy:       make(map[string]bool),
	}
	if m.store == nil {
		m.store = state.New()
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	m.log = m.log.Named("lifecycle")
	if m.now == nil {
		m.now = time.Now
	}
	if m.background == nil {
		m.background = func(fn func()) { go fn() }
	}
	if m.settings == nil {
		m.settings = settings.NewService(models.DefaultSettings(), nil)
	}
	if m.identity == nil {
		m.identity = identity.NewConfigurator(m.settings.Get(), m.log)
	}
	return m
}

// Store returns the state store the manager drives
func (m *Manager) Store() *state.Store {
	return m.store
}

// Has reports whether id names a known tab
func (m *Manager) Has(id string) bool {
	_, ok := m.store.Tab(id)
	return ok
}

// IsAwake reports whether the tab holds a live surface
func (m *Manager) IsAwake(id string) bool {
	return m.bindings[id] != nil
}

// Tabs returns every tab projection in layout order
func (m *Manager) Tabs() []models.TabView {
	return m.store.Views()
}

// Tab returns one tab projection
func (m *Manager) Tab(id string) (models.TabView, bool) {
	return m.store.View(id)
}

// ActiveID returns the active tab id
func (m *Manager) ActiveID() string {
	return m.store.ActiveID
}

// Layout returns the current arrangement
func (m *Manager) Layout() *models.LayoutView {
	return m.store.LayoutView()
}

// Snapshot returns the session document for the current state
func (m *Manager) Snapshot() models.SessionDocument {
	return m.store.Snapshot()
}

// Create registers a new tab and starts loading url in it. Placement in the
// layout is left to the caller.
func (m *Manager) Create(ctx context.Context, url string, opts CreateOptions) *models.Tab {
	if url == "" {
		url = m.homePage()
	}
	tab := &models.Tab{
		ID:         uuid.New().String(),
		URL:        url,
		IsShared:   opts.IsShared,
		ZoomFactor: 1,
		LastActive: m.now(),
	}
	if src, ok := m.store.Tab(opts.FromTabID); ok {
		tab.Color = src.Color
		tab.ZoomFactor = src.ZoomFactor
	} else {
		tab.Color = m.pickColor()
	}
	if opts.ZoomFactor > 0 {
		tab.ZoomFactor = clampZoom(opts.ZoomFactor)
	}

	m.store.Add(tab)
	m.attach(ctx, tab, -1)
	m.metrics.Transition("create")
	m.log.Debug("tab created",
		zap.String("tab", tab.ID),
		zap.Bool("shared", tab.IsShared))
	return tab
}

// Open creates a tab, places it after the source tab (or at the end), emits
// tab-created and optionally activates it.
func (m *Manager) Open(ctx context.Context, url string, opts CreateOptions, activate bool) *models.Tab {
	tab := m.Create(ctx, url, opts)
	if opts.FromTabID != "" && m.store.Layout.Contains(opts.FromTabID) {
		m.store.Layout.InsertAfter(tab.ID, opts.FromTabID)
	} else {
		m.store.Layout.Append(tab.ID)
	}

	view, _ := m.store.View(tab.ID)
	m.emit(models.Event{
		Type:   models.EventTabCreated,
		TabID:  tab.ID,
		Tab:    &view,
		Layout: m.store.LayoutView(),
	})

	if activate || m.store.ActiveID == "" {
		m.SwitchActive(ctx, tab.ID)
	}
	m.save()
	return tab
}

// Wake gives a hibernated tab a new surface and reloads its current entry
func (m *Manager) Wake(ctx context.Context, id string) {
	tab, ok := m.store.Tab(id)
	if !ok || !tab.IsHibernated || m.busy[id] {
		return
	}
	expect := -1
	if len(tab.History) > 0 {
		expect = tab.HistoryIndex
	}
	m.wake(ctx, tab, expect)
}

func (m *Manager) wake(ctx context.Context, tab *models.Tab, expect int) {
	m.busy[tab.ID] = true
	defer delete(m.busy, tab.ID)

	m.attach(ctx, tab, expect)
	m.metrics.Transition("wake")
	m.emitPatch(tab.ID, map[string]any{
		"isHibernated": tab.IsHibernated,
		"isLoading":    tab.IsLoading,
		"loadError":    tab.LoadError,
		"url":          tab.URL,
	})
	m.save()
}

// Hibernate releases the surface of an awake background tab. Its partition
// and everything the record tracks are kept.
func (m *Manager) Hibernate(id string) {
	tab, ok := m.store.Tab(id)
	if !ok || tab.IsHibernated || m.busy[id] || id == m.store.ActiveID {
		return
	}
	m.detach(id)
	tab.IsHibernated = true
	tab.IsLoading = false
	m.metrics.Transition("hibernate")
	m.log.Debug("tab hibernated", zap.String("tab", id))
	m.emitPatch(id, map[string]any{
		"isHibernated": true,
		"isLoading":    false,
	})
	m.save()
}

// HibernateIdle hibernates background tabs inactive for longer than maxIdle
// and returns how many it hibernated.
func (m *Manager) HibernateIdle(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := m.now().Add(-maxIdle)
	n := 0
	for _, tab := range m.store.Tabs() {
		if tab.ID == m.store.ActiveID || tab.IsHibernated || !tab.LastActive.Before(cutoff) {
			continue
		}
		m.Hibernate(tab.ID)
		if tab.IsHibernated {
			n++
		}
	}
	if n > 0 {
		m.log.Info("idle tabs hibernated", zap.Int("count", n))
	}
	return n
}

// SwitchActive makes id the visible tab, waking it first if needed. The
// previous tab's surface is hidden, not destroyed.
func (m *Manager) SwitchActive(ctx context.Context, id string) {
	tab, ok := m.store.Tab(id)
	if !ok || m.busy[id] {
		return
	}
	now := m.now()
	if prev := m.store.ActiveID; prev != "" && prev != id {
		if b := m.bindings[prev]; b != nil {
			m.engine.Hide(b.surface)
		}
		if pt, ok := m.store.Tab(prev); ok {
			pt.LastActive = now
		}
	}
	if tab.IsHibernated {
		m.Wake(ctx, id)
	}
	if b := m.bindings[id]; b != nil {
		m.engine.Show(b.surface)
	}
	m.store.ActiveID = id
	tab.LastActive = now
	m.metrics.Transition("switch")

	m.emit(models.Event{
		Type:        models.EventTabSwitched,
		TabID:       id,
		ActiveTabID: id,
	})
	m.save()
}

// Close destroys a tab. A closed active tab is replaced by the first
// standalone tab, else the first member of the first expanded group, else a
// fresh tab. Closing the last tab starts over with a fresh layout.
func (m *Manager) Close(ctx context.Context, id string) {
	tab, ok := m.store.Tab(id)
	if !ok || m.busy[id] {
		return
	}
	wasActive := m.store.ActiveID == id

	m.detach(id)
	isolated := engine.KeyFor(id, false)
	if !tab.IsShared {
		m.clearAsync(isolated)
	}
	m.engine.DropPartition(isolated)
	m.store.Remove(id)
	m.metrics.Transition("close")
	m.log.Debug("tab closed", zap.String("tab", id), zap.Bool("active", wasActive))

	if m.store.Len() == 0 {
		m.emit(models.Event{Type: models.EventTabClosed, TabID: id})
		m.replaceAll(ctx)
		return
	}

	m.emit(models.Event{
		Type:   models.EventTabClosed,
		TabID:  id,
		Layout: m.store.LayoutView(),
	})

	if wasActive {
		if next := m.store.Layout.FirstCandidate(); next != "" {
			m.SwitchActive(ctx, next)
		} else {
			m.Open(ctx, "", CreateOptions{}, true)
		}
	}
	m.save()
}

// replaceAll installs a fresh default tab as the whole layout
func (m *Manager) replaceAll(ctx context.Context) {
	m.store.ResetLayout()
	tab := m.Create(ctx, "", CreateOptions{})
	m.store.Layout.Append(tab.ID)

	view, _ := m.store.View(tab.ID)
	m.emit(models.Event{
		Type:   models.EventTabCreatedNewLayout,
		TabID:  tab.ID,
		Tab:    &view,
		Layout: m.store.LayoutView(),
	})
	m.SwitchActive(ctx, tab.ID)
}

// ToggleShared moves a tab between its isolated partition and the shared
// one. The surface is recreated on the new partition at the tab's current
// URL. The isolated partition is cleared in both directions.
func (m *Manager) ToggleShared(ctx context.Context, id string) {
	tab, ok := m.store.Tab(id)
	if !ok || m.busy[id] {
		return
	}
	m.busy[id] = true
	defer delete(m.busy, id)

	url := tab.URL
	if isInternal(url) {
		url = models.BlankURL
	}
	wasActive := m.store.ActiveID == id
	m.detach(id)

	isolated := engine.KeyFor(id, false)
	if tab.IsShared {
		// the target isolated partition starts empty
		if err := m.engine.Partition(isolated).ClearStorage(ctx); err != nil {
			m.log.Warn("failed to clear isolated partition", zap.String("tab", id), zap.Error(err))
		}
	} else {
		m.clearAsync(isolated)
	}
	tab.IsShared = !tab.IsShared
	tab.URL = url

	expect := -1
	if len(tab.History) > 0 && tab.History[tab.HistoryIndex].URL == url {
		expect = tab.HistoryIndex
	}
	m.attach(ctx, tab, expect)
	if b := m.bindings[id]; b != nil && wasActive {
		m.engine.Show(b.surface)
	}
	m.metrics.Transition("toggle-shared")
	m.log.Info("tab storage scope changed", zap.String("tab", id), zap.Bool("shared", tab.IsShared))

	m.emitPatch(id, map[string]any{
		"isShared":     tab.IsShared,
		"isHibernated": tab.IsHibernated,
		"isLoading":    tab.IsLoading,
		"url":          tab.URL,
	})
	m.save()
}

// ClearAndReload wipes the storage of an awake tab's partition and reloads
// the page. Hibernated and unknown tabs are left alone.
func (m *Manager) ClearAndReload(ctx context.Context, id string) error {
	b := m.bindings[id]
	if b == nil || m.busy[id] {
		return nil
	}
	if err := b.partition.ClearStorage(ctx); err != nil {
		m.log.Warn("failed to clear partition", zap.String("tab", id), zap.Error(err))
		return err
	}
	if err := b.surface.Reload(); err != nil {
		m.log.Warn("failed to reload", zap.String("tab", id), zap.Error(err))
	}
	m.metrics.Transition("clear")
	return nil
}

// Restore replaces the state with a session document. Every tab comes back
// hibernated except the active one, which is woken and shown.
func (m *Manager) Restore(ctx context.Context, doc models.SessionDocument) {
	for id := range m.bindings {
		m.detach(id)
	}
	m.store.Load(doc)
	m.nextColor = m.store.Len()

	if m.store.Len() == 0 {
		m.replaceAll(ctx)
		return
	}
	active := m.store.ActiveID
	if active == "" {
		active = m.store.Layout.FirstCandidate()
	}
	if active == "" {
		active = m.store.IDs()[0]
	}
	m.store.ActiveID = ""
	m.SwitchActive(ctx, active)
	m.log.Info("session restored",
		zap.Int("tabs", m.store.Len()),
		zap.String("active", active))
}

// ApplySettings re-applies identity to every partition and re-resolves
// their proxies in the background.
func (m *Manager) ApplySettings(ctx context.Context) {
	m.identity.Update(m.settings.Get())
	parts := m.engine.Partitions()
	m.identity.ApplyAll(parts)
	m.background(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundTimeout)
		defer cancel()
		if err := m.identity.ResolveAll(ctx, parts); err != nil {
			m.log.Warn("failed to re-resolve proxies", zap.Error(err))
		}
	})
}

// Shutdown destroys every live surface and returns the final session
// document. Records keep their awake flags; a later Restore hibernates them.
func (m *Manager) Shutdown() models.SessionDocument {
	doc := m.store.Snapshot()
	for id, b := range m.bindings {
		b.surface.Destroy()
		delete(m.bindings, id)
	}
	m.syncMetrics()
	return doc
}

// attach binds tab to its partition, creates a surface and starts loading
// the tab's URL. expect is the history index the load lands on, or -1.
func (m *Manager) attach(ctx context.Context, tab *models.Tab, expect int) {
	p := m.engine.Partition(engine.KeyFor(tab.ID, tab.IsShared))
	m.identity.Apply(p)
	m.background(func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		if err := m.identity.ResolveProxy(ctx, p); err != nil {
			m.log.Warn("proxy resolution failed", zap.String("tab", tab.ID), zap.Error(err))
		}
	})

	s, err := m.engine.NewSurface(ctx, p, &observer{m: m, tabID: tab.ID})
	if err != nil {
		m.log.Error("failed to create surface", zap.String("tab", tab.ID), zap.Error(err))
		tab.IsHibernated = true
		tab.IsLoading = false
		tab.LoadError = err.Error()
		return
	}
	m.bindings[tab.ID] = &binding{partition: p, surface: s, expect: expect}
	tab.IsHibernated = false
	tab.IsLoading = true
	tab.LoadError = ""

	if tab.ZoomFactor != 1 {
		if err := s.SetZoom(tab.ZoomFactor); err != nil {
			m.log.Warn("failed to set zoom", zap.String("tab", tab.ID), zap.Error(err))
		}
	}
	if err := s.Navigate(tab.URL); err != nil {
		m.log.Warn("navigation failed", zap.String("tab", tab.ID), zap.Error(err))
		tab.IsLoading = false
		tab.LoadError = err.Error()
	}
	m.syncMetrics()
}

// detach hides and destroys the tab's surface and forgets the binding
func (m *Manager) detach(id string) {
	b := m.bindings[id]
	if b == nil {
		return
	}
	if id == m.store.ActiveID {
		m.engine.Hide(b.surface)
	}
	b.surface.Destroy()
	delete(m.bindings, id)
	m.syncMetrics()
}

func (m *Manager) clearAsync(key engine.PartitionKey) {
	p := m.engine.Partition(key)
	m.background(func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		if err := p.ClearStorage(ctx); err != nil {
			m.log.Warn("failed to clear partition", zap.String("partition", string(key)), zap.Error(err))
		}
	})
}

func (m *Manager) pickColor() string {
	c := Palette[m.nextColor%len(Palette)]
	m.nextColor++
	return c
}

func (m *Manager) homePage() string {
	if home := m.settings.HomePage(); home != "" {
		return home
	}
	return models.BlankURL
}

func (m *Manager) emit(ev models.Event) {
	if m.emitter != nil {
		m.emitter.Emit(ev)
	}
}

func (m *Manager) emitPatch(id string, patch map[string]any) {
	m.emit(models.Event{Type: models.EventTabUpdated, TabID: id, Patch: patch})
}

func (m *Manager) emitLayout() {
	layout := m.store.LayoutView()
	m.emit(models.Event{
		Type:        models.EventLayoutChanged,
		Layout:      layout,
		ActiveTabID: layout.ActiveTabID,
	})
}

func (m *Manager) save() {
	if m.saver != nil {
		m.saver.Schedule(m.store.Snapshot())
	}
	m.syncMetrics()
}

func (m *Manager) syncMetrics() {
	m.metrics.SetTabs(m.store.Len(), len(m.bindings))
}

func clampZoom(f float64) float64 {
	switch {
	case f < MinZoom:
		return MinZoom
	case f > MaxZoom:
		return MaxZoom
	default:
		return f
	}
}
