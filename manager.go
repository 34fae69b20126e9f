// Package browsermux gives browser automation a stable identity layer:
// callers address browser instances (profiles) and tabs by names they
// choose, never by the volatile handles the engine issues. A Manager
// maps profile names to live engine sessions; each Profile carries a
// TabRegistry keeping tab names bound to live handles and an Elements
// service for waiting on and acting against page elements.
//
// browsermux multiplexes, it does not script. Page semantics stay with
// the caller; this package guarantees that a name used twice means the
// same tab, that at most one tab per profile is active, and that
// teardown leaves no engine process behind.
package browsermux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/hazyhaar/browsermux/internal/engine"
	"github.com/hazyhaar/browsermux/journal"
)

// Manager maps caller-chosen profile names to live engine sessions.
// Names are the stable identity layer: callers never hold engine
// connections directly.
//
// The registry mutex guards only the name map. Engine launches and
// teardowns run outside it, so a slow browser start never blocks
// lookups or work on other profiles. Creation reserves the name first;
// a concurrent create for the same name fails instead of racing a
// second browser launch.
type Manager struct {
	log  *slog.Logger
	jrnl *journal.Journal
	dial func(ctx context.Context, cfg engine.LaunchConfig) (engine.Session, error)

	mu        sync.Mutex
	profiles  map[string]*Profile
	reserving map[string]struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger inherited by profiles and their sessions.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithJournal attaches an event journal. The Manager borrows it: the
// caller remains responsible for closing it.
func WithJournal(j *journal.Journal) Option {
	return func(m *Manager) { m.jrnl = j }
}

// NewManager creates an empty registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		log:       slog.Default(),
		dial:      engine.Dial,
		profiles:  make(map[string]*Profile),
		reserving: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// fail reports an operation failure to the log and journal, then hands
// the error back for returning.
func (m *Manager) fail(profile, op string, err error) error {
	m.log.Warn("browsermux: operation failed", "profile", profile, "op", op, "error", err)
	if m.jrnl != nil {
		m.jrnl.Record(context.Background(), journal.Event{
			Profile: profile,
			Op:      op,
			Kind:    journal.KindFailure,
			Detail:  err.Error(),
		})
	}
	return err
}

func (m *Manager) record(profile, op, detail string) {
	if m.jrnl == nil {
		return
	}
	m.jrnl.Record(context.Background(), journal.Event{
		Profile: profile,
		Op:      op,
		Kind:    journal.KindLifecycle,
		Detail:  detail,
	})
}

// reporter builds the failure hook shared by a profile's registries.
func (m *Manager) reporter(profile string) func(op string, err error) {
	return func(op string, err error) {
		_ = m.fail(profile, op, err)
	}
}

// NewProfile launches a browser per cfg and registers it under name.
// The session's initial tab is seeded into the registry under
// cfg.SeedTabName and starts active. On any launch failure nothing is
// registered.
func (m *Manager) NewProfile(ctx context.Context, name string, cfg LaunchConfig) (*Profile, error) {
	const op = "new_profile"

	// Names appear in status URLs, so slashes are out.
	if name == "" || strings.Contains(name, "/") {
		return nil, m.fail(name, op, fmt.Errorf("browsermux: new profile: invalid name %q", name))
	}

	m.mu.Lock()
	if _, ok := m.profiles[name]; ok {
		m.mu.Unlock()
		return nil, m.fail(name, op, fmt.Errorf("browsermux: new profile %q: %w", name, ErrDuplicateProfile))
	}
	if _, ok := m.reserving[name]; ok {
		m.mu.Unlock()
		return nil, m.fail(name, op, fmt.Errorf("browsermux: new profile %q: %w", name, ErrDuplicateProfile))
	}
	m.reserving[name] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.reserving, name)
		m.mu.Unlock()
	}()

	if cfg.Logger == nil {
		cfg.Logger = m.log
	}
	cfg = cfg.WithDefaults()

	sess, err := m.dial(ctx, cfg)
	if err != nil {
		return nil, m.fail(name, op, fmt.Errorf("browsermux: new profile %q: %w", name, err))
	}

	handles, err := sess.Handles(ctx)
	if err != nil {
		_ = sess.Shutdown(context.Background())
		return nil, m.fail(name, op, fmt.Errorf("browsermux: new profile %q: seed tab: %w", name, err))
	}
	if len(handles) == 0 {
		_ = sess.Shutdown(context.Background())
		return nil, m.fail(name, op, fmt.Errorf("browsermux: new profile %q: engine reported no initial tab", name))
	}
	if len(handles) > 1 {
		m.log.Warn("browsermux: multiple initial handles, seeding first",
			"profile", name, "handles", len(handles))
	}

	p := newProfile(name, sess, cfg, m.log, m.reporter(name))
	seeded := p.tabs.seed(cfg.SeedTabName, handles[0])

	m.mu.Lock()
	m.profiles[name] = p
	m.mu.Unlock()

	m.log.Info("browsermux: profile created",
		"profile", name, "browser", cfg.Type, "seed_tab", seeded.Name)
	m.record(name, op, fmt.Sprintf("seed tab %q", seeded.Name))
	return p, nil
}

// RemoveProfile shuts the named profile's browser down and forgets it.
// If teardown fails the profile is marked degraded and stays registered
// so the removal can be retried; the returned error matches
// ErrDegraded. Removing a name twice reports ErrUnknownProfile the
// second time.
func (m *Manager) RemoveProfile(ctx context.Context, name string) error {
	const op = "remove_profile"

	m.mu.Lock()
	p, ok := m.profiles[name]
	m.mu.Unlock()
	if !ok {
		return m.fail(name, op, fmt.Errorf("browsermux: remove profile %q: %w", name, ErrUnknownProfile))
	}

	err := p.sess.Shutdown(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrSessionClosed):
		// Already torn down by an earlier attempt.
	default:
		p.markDegraded()
		return m.fail(name, op, fmt.Errorf("browsermux: remove profile %q: %w: %v", name, ErrDegraded, err))
	}

	m.mu.Lock()
	delete(m.profiles, name)
	m.mu.Unlock()

	m.log.Info("browsermux: profile removed", "profile", name)
	m.record(name, op, "")
	return nil
}

// Profile looks up a profile by name.
func (m *Manager) Profile(name string) (*Profile, error) {
	m.mu.Lock()
	p, ok := m.profiles[name]
	m.mu.Unlock()
	if !ok {
		return nil, m.fail(name, "profile_lookup", fmt.Errorf("browsermux: profile %q: %w", name, ErrUnknownProfile))
	}
	return p, nil
}

// Names returns all registered profile names, sorted.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.profiles))
	for n := range m.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Profiles returns the registered profiles, sorted by name.
func (m *Manager) Profiles() []*Profile {
	m.mu.Lock()
	out := make([]*Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Count returns the number of registered profiles.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.profiles)
}

// Shutdown removes every profile, collecting errors. Profiles whose
// teardown fails stay registered in degraded state.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error
	for _, name := range m.Names() {
		if err := m.RemoveProfile(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
