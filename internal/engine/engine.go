// Package engine wraps one browser-engine connection behind a Session: list
// native handles, focus one, open and close tabs, and query or act on
// elements in the focused tab. The engine protocol is connection-oriented and
// does not tolerate interleaved commands, so every Session method runs inside
// a single critical section; callers targeting the same Session queue.
//
// Handles are the engine's own target identifiers: opaque strings that may be
// recycled after a tab closes. Nothing above this package should hold one
// without re-checking it against Handles.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/browsermux/locate"
)

// BrowserType selects which kind of engine Dial starts or connects to.
type BrowserType string

const (
	Chrome  BrowserType = "chrome"
	Firefox BrowserType = "firefox"
	// Remote attaches to an already-running engine over its debug URL.
	Remote BrowserType = "remote"
)

var (
	// ErrHandleNotFound reports a native handle absent from the live set,
	// usually a race with an engine-side tab closure.
	ErrHandleNotFound = errors.New("browser: handle not in live set")

	// ErrConnectionLost reports a dead engine connection. Terminal: the
	// session never reconnects and every later call fails the same way.
	ErrConnectionLost = errors.New("browser: connection lost")

	// ErrSessionClosed reports use of a session after Shutdown.
	ErrSessionClosed = errors.New("browser: session closed")

	// ErrActionRejected reports an engine refusal to act on a resolved
	// element (detached, covered, not interactable). Retryable by callers.
	ErrActionRejected = errors.New("browser: action rejected")
)

// LaunchError reports a failed engine start or attach.
type LaunchError struct {
	Kind   BrowserType
	Reason string
	Err    error
}

func (e *LaunchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("browser: launch %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("browser: launch %s: %s: %v", e.Kind, e.Reason, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Session is one exclusive connection to one browser-engine instance.
// Lifecycle is Open → Closed; Closed is terminal. Implementations serialize
// all methods behind one mutex.
type Session interface {
	// Handles returns the live native handle set, in engine order.
	Handles(ctx context.Context) ([]string, error)
	// Focus makes handle the target of all page-scoped methods below.
	Focus(ctx context.Context, handle string) error
	// OpenTab opens a blank tab, focuses it and returns its handle.
	OpenTab(ctx context.Context) (string, error)
	// CloseHandle closes that tab. Focus is undefined afterwards if the
	// closed handle was focused.
	CloseHandle(ctx context.Context, handle string) error

	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Reload(ctx context.Context) error
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	// Eval runs src as a JS function in the focused tab and returns the
	// JSON-encoded result.
	Eval(ctx context.Context, src string, args ...any) ([]byte, error)
	Screenshot(ctx context.Context) ([]byte, error)
	PrintPDF(ctx context.Context) ([]byte, error)
	// ClearOriginData drops cookies, storage and caches for the focused
	// tab's origin.
	ClearOriginData(ctx context.Context) error
	SetViewport(ctx context.Context, width, height int) error

	// Locate runs an immediate, non-waiting query against the focused tab.
	// A nil scope searches the whole document; a non-nil scope restricts
	// the search to that element's subtree.
	Locate(ctx context.Context, loc locate.Locator, scope Element) ([]Element, error)

	// Shutdown closes every handle and tears down the connection. The
	// first call wins; later calls fail with ErrSessionClosed.
	Shutdown(ctx context.Context) error
}

// Element is a resolved reference to one element in a tab. References go
// stale when the page mutates; action errors surface as ErrActionRejected.
type Element interface {
	Click(ctx context.Context) error
	Input(ctx context.Context, text string) error
	Clear(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	Visible(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)
	ScrollIntoView(ctx context.Context) error
}
