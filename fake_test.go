package browsermux

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/browsermux/internal/engine"
	"github.com/hazyhaar/browsermux/locate"
)

// fakeSession is an in-memory engine.Session. Tests drive engine-side
// behavior (external tab opens and closes, handle recycling, connection
// failures) through its helpers and failure-injection fields.
type fakeSession struct {
	mu sync.Mutex

	handles []string
	focus   string
	nextID  int
	closed  bool

	title string
	url   string
	html  string
	pdf   []byte

	// elems maps Locator.String() to the elements Locate serves.
	elems map[string][]engine.Element
	// locateEmptyUntil makes Locate serve nothing until the nth call.
	locateEmptyUntil int

	// handlesQueue overrides Handles responses until drained.
	handlesQueue [][]string

	// openReturns forces the next OpenTab to hand out this handle,
	// simulating engine-side handle recycling.
	openReturns string

	handlesErr  error
	openErr     error
	navErr      error
	shutdownErr error
	focusErr    map[string]error

	calls map[string]int
}

func newFakeSession(handles ...string) *fakeSession {
	if len(handles) == 0 {
		handles = []string{"h-seed"}
	}
	return &fakeSession{
		handles:  slices.Clone(handles),
		focus:    handles[0],
		nextID:   len(handles) + 1,
		elems:    make(map[string][]engine.Element),
		focusErr: make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (s *fakeSession) count(op string) int {
	s.calls[op]++
	return s.calls[op]
}

func (s *fakeSession) callCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// addHandle simulates a tab opened outside the registry (popup,
// window.open).
func (s *fakeSession) addHandle(h string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = append(s.handles, h)
}

// removeHandle simulates an engine-side tab closure.
func (s *fakeSession) removeHandle(h string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = slices.DeleteFunc(s.handles, func(x string) bool { return x == h })
	if s.focus == h {
		s.focus = ""
	}
}

func (s *fakeSession) setElems(loc locate.Locator, els ...engine.Element) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elems[loc.String()] = els
}

func (s *fakeSession) focused() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focus
}

func (s *fakeSession) Handles(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("handles")
	if s.handlesErr != nil {
		return nil, s.handlesErr
	}
	if len(s.handlesQueue) > 0 {
		out := s.handlesQueue[0]
		s.handlesQueue = s.handlesQueue[1:]
		return slices.Clone(out), nil
	}
	return slices.Clone(s.handles), nil
}

func (s *fakeSession) Focus(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("focus")
	if err := s.focusErr[handle]; err != nil {
		return err
	}
	if !slices.Contains(s.handles, handle) {
		return fmt.Errorf("browser: focus: %w", engine.ErrHandleNotFound)
	}
	s.focus = handle
	return nil
}

func (s *fakeSession) OpenTab(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("open_tab")
	if s.openErr != nil {
		return "", s.openErr
	}
	h := s.openReturns
	if h == "" {
		h = fmt.Sprintf("h-%d", s.nextID)
		s.nextID++
	}
	s.openReturns = ""
	if !slices.Contains(s.handles, h) {
		s.handles = append(s.handles, h)
	}
	s.focus = h
	return h, nil
}

func (s *fakeSession) CloseHandle(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("close_handle")
	if !slices.Contains(s.handles, handle) {
		return fmt.Errorf("browser: close tab: %w", engine.ErrHandleNotFound)
	}
	s.handles = slices.DeleteFunc(s.handles, func(x string) bool { return x == handle })
	if s.focus == handle {
		s.focus = ""
	}
	return nil
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("navigate")
	if s.navErr != nil {
		return s.navErr
	}
	s.url = url
	return nil
}

func (s *fakeSession) Back(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("back")
	return nil
}

func (s *fakeSession) Forward(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("forward")
	return nil
}

func (s *fakeSession) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("reload")
	return nil
}

func (s *fakeSession) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("title")
	return s.title, nil
}

func (s *fakeSession) URL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("url")
	return s.url, nil
}

func (s *fakeSession) HTML(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("html")
	return s.html, nil
}

func (s *fakeSession) Eval(ctx context.Context, src string, args ...any) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("eval")
	return []byte(`42`), nil
}

func (s *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("screenshot")
	return []byte("png-bytes"), nil
}

func (s *fakeSession) PrintPDF(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("print_pdf")
	return s.pdf, nil
}

func (s *fakeSession) ClearOriginData(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("clear_origin_data")
	return nil
}

func (s *fakeSession) SetViewport(ctx context.Context, width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("set_viewport")
	return nil
}

func (s *fakeSession) Locate(ctx context.Context, loc locate.Locator, scope engine.Element) ([]engine.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.count("locate")
	if n < s.locateEmptyUntil {
		return nil, nil
	}
	return slices.Clone(s.elems[loc.String()]), nil
}

func (s *fakeSession) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("shutdown")
	if s.closed {
		return fmt.Errorf("browser: shutdown: %w", engine.ErrSessionClosed)
	}
	if s.shutdownErr != nil {
		return s.shutdownErr
	}
	s.closed = true
	return nil
}

// fakeElement is a scriptable engine.Element.
type fakeElement struct {
	mu      sync.Mutex
	text    string
	visible bool
	enabled bool

	clickErr error

	clicks  int
	inputs  []string
	cleared int
}

func (e *fakeElement) Click(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clickErr != nil {
		return e.clickErr
	}
	e.clicks++
	return nil
}

func (e *fakeElement) Input(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputs = append(e.inputs, text)
	return nil
}

func (e *fakeElement) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleared++
	return nil
}

func (e *fakeElement) Text(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text, nil
}

func (e *fakeElement) Visible(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visible, nil
}

func (e *fakeElement) Enabled(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled, nil
}

func (e *fakeElement) ScrollIntoView(ctx context.Context) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestManager wires a Manager to the given fake sessions, handed out
// in order, one per NewProfile call.
func newTestManager(t *testing.T, fakes ...*fakeSession) *Manager {
	t.Helper()
	m := NewManager(WithLogger(testLogger()))
	var mu sync.Mutex
	i := 0
	m.dial = func(ctx context.Context, cfg engine.LaunchConfig) (engine.Session, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(fakes) {
			t.Fatalf("dial called %d times, only %d fakes", i+1, len(fakes))
		}
		f := fakes[i]
		i++
		return f, nil
	}
	return m
}

// newTestProfile registers one profile backed by fake and returns it.
// Poll-sensitive tests get a short settle delay.
func newTestProfile(t *testing.T, fake *fakeSession) *Profile {
	t.Helper()
	m := newTestManager(t, fake)
	p, err := m.NewProfile(context.Background(), "prof", LaunchConfig{
		SettleDelay: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	return p
}

func assertSingleActive(t *testing.T, r *TabRegistry) {
	t.Helper()
	active := 0
	for _, tab := range r.List() {
		if tab.Status == TabActive {
			active++
		}
	}
	if active > 1 {
		t.Fatalf("invariant violated: %d active tabs", active)
	}
}
