package browsermux

import (
	"context"
	"errors"
	"testing"

	"github.com/hazyhaar/browsermux/internal/engine"
	"github.com/hazyhaar/browsermux/journal"
)

func TestNewProfileAndLookup(t *testing.T) {
	fake := newFakeSession()
	m := newTestManager(t, fake)
	ctx := context.Background()

	p, err := m.NewProfile(ctx, "crawler", LaunchConfig{})
	if err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	if p.Name() != "crawler" {
		t.Errorf("Name: got %q", p.Name())
	}

	got, err := m.Profile("crawler")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if got != p {
		t.Error("Profile returned a different instance")
	}
	if m.Count() != 1 {
		t.Errorf("Count: got %d, want 1", m.Count())
	}
}

func TestNewProfileSeedsTab(t *testing.T) {
	fake := newFakeSession()
	m := newTestManager(t, fake)

	p, err := m.NewProfile(context.Background(), "crawler", LaunchConfig{SeedTabName: "home"})
	if err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	list := p.Tabs().List()
	if len(list) != 1 {
		t.Fatalf("tabs: got %d, want 1", len(list))
	}
	if list[0].Name != "home" || list[0].Handle != "h-seed" || list[0].Status != TabActive {
		t.Errorf("seed tab: %+v", list[0])
	}
}

func TestNewProfileDuplicate(t *testing.T) {
	fake := newFakeSession()
	m := newTestManager(t, fake)
	ctx := context.Background()

	if _, err := m.NewProfile(ctx, "p", LaunchConfig{}); err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	_, err := m.NewProfile(ctx, "p", LaunchConfig{})
	if !errors.Is(err, ErrDuplicateProfile) {
		t.Fatalf("duplicate create: got %v, want ErrDuplicateProfile", err)
	}
	if m.Count() != 1 {
		t.Errorf("Count: got %d, want 1", m.Count())
	}
}

func TestNewProfileInvalidName(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for _, name := range []string{"", "a/b"} {
		if _, err := m.NewProfile(ctx, name, LaunchConfig{}); err == nil {
			t.Errorf("NewProfile(%q): expected error", name)
		}
	}
	// The dialer fake list is empty; reaching it would fail the test.
}

func TestNewProfileDialFailure(t *testing.T) {
	m := NewManager(WithLogger(testLogger()))
	dialErr := &LaunchError{Kind: Chrome, Reason: "start process"}
	m.dial = func(ctx context.Context, cfg LaunchConfig) (engine.Session, error) {
		return nil, dialErr
	}

	_, err := m.NewProfile(context.Background(), "p", LaunchConfig{})
	var le *LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("dial failure: got %v, want *LaunchError", err)
	}
	if m.Count() != 0 {
		t.Error("failed launch left a registered profile")
	}
	if _, err := m.Profile("p"); !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("lookup after failed create: got %v", err)
	}
}

func TestNewProfileSeedFailureTearsDown(t *testing.T) {
	fake := newFakeSession()
	fake.mu.Lock()
	fake.handlesErr = errors.New("boom")
	fake.mu.Unlock()
	m := newTestManager(t, fake)

	_, err := m.NewProfile(context.Background(), "p", LaunchConfig{})
	if err == nil {
		t.Fatal("NewProfile with failing seed: expected error")
	}
	if got := fake.callCount("shutdown"); got != 1 {
		t.Errorf("orphaned session not torn down: %d shutdown calls", got)
	}
	if m.Count() != 0 {
		t.Error("failed create left a registered profile")
	}
}

func TestRemoveProfile(t *testing.T) {
	fake := newFakeSession()
	m := newTestManager(t, fake)
	ctx := context.Background()

	if _, err := m.NewProfile(ctx, "p", LaunchConfig{}); err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	if err := m.RemoveProfile(ctx, "p"); err != nil {
		t.Fatalf("RemoveProfile: %v", err)
	}
	if got := fake.callCount("shutdown"); got != 1 {
		t.Errorf("shutdown calls: got %d, want 1", got)
	}
	if m.Count() != 0 {
		t.Errorf("Count: got %d, want 0", m.Count())
	}

	err := m.RemoveProfile(ctx, "p")
	if !errors.Is(err, ErrUnknownProfile) {
		t.Fatalf("second remove: got %v, want ErrUnknownProfile", err)
	}
}

func TestRemoveProfileDegradedThenRetry(t *testing.T) {
	fake := newFakeSession()
	fake.mu.Lock()
	fake.shutdownErr = errors.New("browser unreachable")
	fake.mu.Unlock()
	m := newTestManager(t, fake)
	ctx := context.Background()

	p, err := m.NewProfile(ctx, "p", LaunchConfig{})
	if err != nil {
		t.Fatalf("NewProfile: %v", err)
	}

	err = m.RemoveProfile(ctx, "p")
	if !errors.Is(err, ErrDegraded) {
		t.Fatalf("failed teardown: got %v, want ErrDegraded", err)
	}
	if !IsRetryable(err) {
		t.Error("degraded removal should be retryable")
	}
	if !p.Degraded() {
		t.Error("profile not marked degraded")
	}
	if m.Count() != 1 {
		t.Error("degraded profile must stay registered")
	}

	// Teardown recovers; the retry succeeds.
	fake.mu.Lock()
	fake.shutdownErr = nil
	fake.mu.Unlock()
	if err := m.RemoveProfile(ctx, "p"); err != nil {
		t.Fatalf("retry after degraded: %v", err)
	}
	if m.Count() != 0 {
		t.Error("profile still registered after successful retry")
	}
}

func TestRemoveProfileAlreadyClosedSession(t *testing.T) {
	fake := newFakeSession()
	m := newTestManager(t, fake)
	ctx := context.Background()

	if _, err := m.NewProfile(ctx, "p", LaunchConfig{}); err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	// The session was torn down by some earlier path.
	if err := fake.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := m.RemoveProfile(ctx, "p"); err != nil {
		t.Fatalf("remove with closed session: %v", err)
	}
	if m.Count() != 0 {
		t.Error("profile still registered")
	}
}

func TestProfilesIsolated(t *testing.T) {
	fake1 := newFakeSession()
	fake2 := newFakeSession()
	m := newTestManager(t, fake1, fake2)
	ctx := context.Background()

	p1, err := m.NewProfile(ctx, "alpha", LaunchConfig{})
	if err != nil {
		t.Fatalf("NewProfile alpha: %v", err)
	}
	p2, err := m.NewProfile(ctx, "beta", LaunchConfig{})
	if err != nil {
		t.Fatalf("NewProfile beta: %v", err)
	}

	if _, err := p1.Tabs().Open(ctx, "work"); err != nil {
		t.Fatalf("Open on alpha: %v", err)
	}
	if got := fake2.callCount("open_tab"); got != 0 {
		t.Errorf("alpha's work leaked to beta's engine: %d calls", got)
	}

	if err := m.RemoveProfile(ctx, "alpha"); err != nil {
		t.Fatalf("RemoveProfile alpha: %v", err)
	}
	// beta is untouched and still serviceable.
	if err := p2.Navigate(ctx, "https://example.com"); err != nil {
		t.Fatalf("Navigate on beta after alpha removal: %v", err)
	}
	if got := fake2.callCount("shutdown"); got != 0 {
		t.Errorf("beta shut down by alpha's removal: %d calls", got)
	}

	names := m.Names()
	if len(names) != 1 || names[0] != "beta" {
		t.Errorf("Names: %v", names)
	}
}

func TestManagerShutdown(t *testing.T) {
	fake1 := newFakeSession()
	fake2 := newFakeSession()
	fake2.mu.Lock()
	fake2.shutdownErr = errors.New("stuck")
	fake2.mu.Unlock()
	m := newTestManager(t, fake1, fake2)
	ctx := context.Background()

	if _, err := m.NewProfile(ctx, "ok", LaunchConfig{}); err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	if _, err := m.NewProfile(ctx, "stuck", LaunchConfig{}); err != nil {
		t.Fatalf("NewProfile: %v", err)
	}

	err := m.Shutdown(ctx)
	if !errors.Is(err, ErrDegraded) {
		t.Fatalf("Shutdown with one stuck profile: got %v, want ErrDegraded", err)
	}
	if m.Count() != 1 {
		t.Errorf("Count after shutdown: got %d, want 1 (the stuck one)", m.Count())
	}
	if _, err := m.Profile("stuck"); err != nil {
		t.Error("stuck profile should stay registered")
	}
}

func TestManagerJournalsLifecycle(t *testing.T) {
	j := journal.OpenMemory(t)
	fake := newFakeSession()
	m := NewManager(WithLogger(testLogger()), WithJournal(j))
	m.dial = func(ctx context.Context, cfg LaunchConfig) (engine.Session, error) {
		return fake, nil
	}
	ctx := context.Background()

	if _, err := m.NewProfile(ctx, "p", LaunchConfig{}); err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	if _, err := m.NewProfile(ctx, "p", LaunchConfig{}); err == nil {
		t.Fatal("duplicate create should fail")
	}
	if err := m.RemoveProfile(ctx, "p"); err != nil {
		t.Fatalf("RemoveProfile: %v", err)
	}

	events, err := j.Recent(ctx, 20)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	var created, removed, failures int
	for _, ev := range events {
		switch {
		case ev.Op == "new_profile" && ev.Kind == journal.KindLifecycle:
			created++
		case ev.Op == "remove_profile" && ev.Kind == journal.KindLifecycle:
			removed++
		case ev.Kind == journal.KindFailure:
			failures++
		}
	}
	if created != 1 || removed != 1 {
		t.Errorf("lifecycle events: created %d removed %d", created, removed)
	}
	if failures == 0 {
		t.Error("failed duplicate create never journaled")
	}
}
