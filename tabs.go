package browsermux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hazyhaar/browsermux/internal/engine"
)

// TabStatus is a tab's activation state.
type TabStatus string

const (
	TabActive   TabStatus = "active"
	TabInactive TabStatus = "inactive"
)

// Tab is a point-in-time snapshot of one registered tab.
type Tab struct {
	Name   string    `json:"name"`
	Handle string    `json:"handle"`
	Status TabStatus `json:"status"`
	// CreatedOrder is the registration sequence number, the meaningful
	// order for enumeration.
	CreatedOrder int `json:"created_order"`
}

type tabEntry struct {
	name   string
	handle string
	order  int
}

// TabRegistry owns the bijection between caller-chosen tab names and the
// engine's native handles for one session, plus which name is active. At most
// one tab is active; zero only between closing the active tab and the next
// switch, open or adopt. Handles found dead during reconciliation are purged,
// never silently rebound.
//
// The registry lock is held across its own engine calls so each operation is
// atomic from the caller's view. Lock order is always registry then session.
type TabRegistry struct {
	sess    engine.Session
	profile string
	settle  time.Duration
	log     *slog.Logger
	report  func(op string, err error)

	mu       sync.Mutex
	tabs     map[string]*tabEntry
	byHandle map[string]string
	active   string
	nextOrd  int
}

func newTabRegistry(sess engine.Session, profile string, settle time.Duration, log *slog.Logger, report func(string, error)) *TabRegistry {
	if report == nil {
		report = func(string, error) {}
	}
	return &TabRegistry{
		sess:     sess,
		profile:  profile,
		settle:   settle,
		log:      log,
		report:   report,
		tabs:     make(map[string]*tabEntry),
		byHandle: make(map[string]string),
	}
}

// failed reports a failure to the injected sink before handing it back.
func (r *TabRegistry) failed(op string, err error) error {
	r.report(op, err)
	return err
}

// Register binds an existing live handle to name without changing the active
// tab. The live set is consulted first: stale registry entries are purged,
// an unknown handle is refused, and a handle owned by another name is a
// conflict.
func (r *TabRegistry) Register(ctx context.Context, name, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return r.failed("register", fmt.Errorf("browsermux: register: tab name must be non-empty"))
	}
	if _, ok := r.tabs[name]; ok {
		return r.failed("register", fmt.Errorf("browsermux: register %q: %w", name, ErrDuplicateName))
	}

	live, err := r.sess.Handles(ctx)
	if err != nil {
		return r.failed("register", fmt.Errorf("browsermux: register %q: %w", name, err))
	}
	r.purgeStaleLocked(live)

	if !slices.Contains(live, handle) {
		return r.failed("register", fmt.Errorf("browsermux: register %q: handle %q: %w", name, handle, ErrHandleNotFound))
	}
	if owner, ok := r.byHandle[handle]; ok {
		return r.failed("register", fmt.Errorf("browsermux: register %q: handle %q held by %q: %w", name, handle, owner, ErrDuplicateHandle))
	}

	r.insertLocked(name, handle)
	return nil
}

// Open creates a fresh engine tab and registers it under name as the active
// tab. Atomic from the caller's view: the name conflict is checked before
// the engine opens anything, so on failure nothing changed.
func (r *TabRegistry) Open(ctx context.Context, name string) (Tab, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return Tab{}, r.failed("open", fmt.Errorf("browsermux: open: tab name must be non-empty"))
	}
	if _, ok := r.tabs[name]; ok {
		return Tab{}, r.failed("open", fmt.Errorf("browsermux: open %q: %w", name, ErrDuplicateName))
	}

	handle, err := r.sess.OpenTab(ctx)
	if err != nil {
		return Tab{}, r.failed("open", fmt.Errorf("browsermux: open %q: %w", name, err))
	}

	// A recycled handle still bound means the old tab died unobserved.
	if owner, ok := r.byHandle[handle]; ok {
		r.log.Warn("browsermux: recycled handle displaced stale tab",
			"profile", r.profile, "tab", owner, "handle", handle)
		r.removeLocked(owner)
	}

	e := r.insertLocked(name, handle)
	r.active = name
	return r.snapshotLocked(e), nil
}

// Adopt registers a tab the engine opened as a side effect, under name, and
// makes it active. It requires exactly one live handle outside the registry;
// on zero or several it re-lists once after the settle delay, then fails
// closed with ErrAmbiguousNewTab, leaving the registry unchanged.
func (r *TabRegistry) Adopt(ctx context.Context, name string) (Tab, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return Tab{}, r.failed("adopt", fmt.Errorf("browsermux: adopt: tab name must be non-empty"))
	}
	if _, ok := r.tabs[name]; ok {
		return Tab{}, r.failed("adopt", fmt.Errorf("browsermux: adopt %q: %w", name, ErrDuplicateName))
	}

	unknown, err := r.unknownHandlesLocked(ctx)
	if err != nil {
		return Tab{}, r.failed("adopt", fmt.Errorf("browsermux: adopt %q: %w", name, err))
	}

	if len(unknown) != 1 {
		// One bounded re-check: side-effect tabs materialize with a lag,
		// and an unrelated concurrent close can disturb the diff.
		select {
		case <-ctx.Done():
			return Tab{}, r.failed("adopt", fmt.Errorf("browsermux: adopt %q: %w", name, ctx.Err()))
		case <-time.After(r.settle):
		}
		unknown, err = r.unknownHandlesLocked(ctx)
		if err != nil {
			return Tab{}, r.failed("adopt", fmt.Errorf("browsermux: adopt %q: %w", name, err))
		}
		if len(unknown) != 1 {
			return Tab{}, r.failed("adopt", fmt.Errorf("browsermux: adopt %q: %w (%d unknown handles)",
				name, ErrAmbiguousNewTab, len(unknown)))
		}
	}

	handle := unknown[0]
	if err := r.sess.Focus(ctx, handle); err != nil {
		if errors.Is(err, ErrHandleNotFound) {
			// The candidate evaporated between the diff and the focus.
			return Tab{}, r.failed("adopt", fmt.Errorf("browsermux: adopt %q: %w (candidate closed)",
				name, ErrAmbiguousNewTab))
		}
		return Tab{}, r.failed("adopt", fmt.Errorf("browsermux: adopt %q: %w", name, err))
	}

	e := r.insertLocked(name, handle)
	r.active = name
	r.log.Debug("browsermux: adopted tab", "profile", r.profile, "tab", name, "handle", handle)
	return r.snapshotLocked(e), nil
}

// Switch focuses the named tab and makes it active, demoting the previous
// active tab. A handle the engine no longer knows purges the entry and
// surfaces ErrTabGone; there is no silent retry.
func (r *TabRegistry) Switch(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tabs[name]
	if !ok {
		return r.failed("switch", fmt.Errorf("browsermux: switch %q: %w", name, ErrUnknownName))
	}

	if err := r.sess.Focus(ctx, e.handle); err != nil {
		if errors.Is(err, ErrHandleNotFound) {
			r.removeLocked(name)
			return r.failed("switch", fmt.Errorf("browsermux: switch %q: %w", name, ErrTabGone))
		}
		return r.failed("switch", fmt.Errorf("browsermux: switch %q: %w", name, err))
	}

	r.active = name
	return nil
}

// Close closes the named tab and removes it. Closing the active tab leaves
// the registry with no active tab until the next switch, open or adopt. A tab
// already gone engine-side is purged and reported as ErrTabGone.
func (r *TabRegistry) Close(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tabs[name]
	if !ok {
		return r.failed("close", fmt.Errorf("browsermux: close %q: %w", name, ErrUnknownName))
	}

	if err := r.sess.CloseHandle(ctx, e.handle); err != nil {
		if errors.Is(err, ErrHandleNotFound) {
			r.removeLocked(name)
			return r.failed("close", fmt.Errorf("browsermux: close %q: %w", name, ErrTabGone))
		}
		return r.failed("close", fmt.Errorf("browsermux: close %q: %w", name, err))
	}

	r.removeLocked(name)
	return nil
}

// ActiveName returns the active tab's name, or false while no tab is active.
func (r *TabRegistry) ActiveName() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.active != ""
}

// Count returns the number of registered tabs.
func (r *TabRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tabs)
}

// List returns snapshots of all tabs in registration order.
func (r *TabRegistry) List() []Tab {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Tab, 0, len(r.tabs))
	for _, e := range r.tabs {
		out = append(out, r.snapshotLocked(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedOrder < out[j].CreatedOrder })
	return out
}

// seed installs the profile's first tab, already focused engine-side.
func (r *TabRegistry) seed(name, handle string) Tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.insertLocked(name, handle)
	r.active = name
	return r.snapshotLocked(e)
}

// activeHandle returns the active tab's name and handle for element waits.
func (r *TabRegistry) activeHandle() (name, handle string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == "" {
		return "", "", false
	}
	return r.active, r.tabs[r.active].handle, true
}

// unknownHandlesLocked lists the engine's live set, purges stale entries, and
// returns live handles bound to no name, in engine order.
func (r *TabRegistry) unknownHandlesLocked(ctx context.Context) ([]string, error) {
	live, err := r.sess.Handles(ctx)
	if err != nil {
		return nil, err
	}
	r.purgeStaleLocked(live)

	var unknown []string
	for _, h := range live {
		if _, ok := r.byHandle[h]; !ok {
			unknown = append(unknown, h)
		}
	}
	return unknown, nil
}

// purgeStaleLocked drops every entry whose handle left the live set. The
// engine recycles handles, so keeping one past its death risks binding a
// future unrelated tab.
func (r *TabRegistry) purgeStaleLocked(live []string) {
	for name, e := range r.tabs {
		if slices.Contains(live, e.handle) {
			continue
		}
		r.log.Warn("browsermux: purged stale tab",
			"profile", r.profile, "tab", name, "handle", e.handle)
		r.removeLocked(name)
	}
}

func (r *TabRegistry) insertLocked(name, handle string) *tabEntry {
	e := &tabEntry{name: name, handle: handle, order: r.nextOrd}
	r.nextOrd++
	r.tabs[name] = e
	r.byHandle[handle] = name
	return e
}

func (r *TabRegistry) removeLocked(name string) {
	e, ok := r.tabs[name]
	if !ok {
		return
	}
	delete(r.tabs, name)
	delete(r.byHandle, e.handle)
	if r.active == name {
		r.active = ""
	}
}

func (r *TabRegistry) snapshotLocked(e *tabEntry) Tab {
	st := TabInactive
	if r.active == e.name {
		st = TabActive
	}
	return Tab{Name: e.name, Handle: e.handle, Status: st, CreatedOrder: e.order}
}
