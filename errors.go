package browsermux

import (
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/browsermux/internal/engine"
	"github.com/hazyhaar/browsermux/locate"
)

// Name-space failures.
var (
	// ErrDuplicateName reports a tab name already registered in the profile.
	ErrDuplicateName = errors.New("browsermux: tab name already registered")
	// ErrDuplicateProfile reports a profile name already registered.
	ErrDuplicateProfile = errors.New("browsermux: profile name already registered")
	// ErrDuplicateHandle reports a live native handle already bound to
	// another tab name.
	ErrDuplicateHandle = errors.New("browsermux: handle already bound")

	// ErrUnknownName reports a tab name with no registration.
	ErrUnknownName = errors.New("browsermux: unknown tab name")
	// ErrUnknownProfile reports a profile name with no registration.
	ErrUnknownProfile = errors.New("browsermux: unknown profile name")

	// ErrTabGone reports that the engine closed a tab behind the registry's
	// back; the stale entry has been purged.
	ErrTabGone = errors.New("browsermux: tab closed by engine")
	// ErrNoActiveTab reports an element operation against a profile whose
	// registry has no active tab. Returned before any engine call.
	ErrNoActiveTab = errors.New("browsermux: no active tab")
	// ErrAmbiguousNewTab reports that adoption found zero or several unknown
	// handles after the settle re-check; the registry is unchanged.
	ErrAmbiguousNewTab = errors.New("browsermux: ambiguous new tab")

	// ErrDegraded marks a profile whose teardown only partially completed.
	// The profile stays registered so removal can be retried.
	ErrDegraded = errors.New("browsermux: profile degraded by partial teardown")
)

// Engine failures, surfaced unchanged from the session layer.
var (
	ErrHandleNotFound = engine.ErrHandleNotFound
	ErrConnectionLost = engine.ErrConnectionLost
	ErrSessionClosed  = engine.ErrSessionClosed
	ErrActionRejected = engine.ErrActionRejected
)

// LaunchError reports a failed engine start or attach during profile
// creation.
type LaunchError = engine.LaunchError

// TimeoutError reports a wait that saw its condition unmet for the whole
// timeout. It carries enough context to diagnose without internals.
type TimeoutError struct {
	Profile   string
	Tab       string
	Locator   locate.Locator
	Condition locate.Condition
	Waited    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("browsermux: wait for %s on %s timed out after %s (profile %q, tab %q)",
		e.Locator, e.Condition, e.Waited, e.Profile, e.Tab)
}

// IsTimeout reports whether err is a wait timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsRetryable reports whether the same call might succeed if reissued:
// engine refusals from element races and wait timeouts are; everything else
// needs caller intervention first.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrActionRejected) || errors.Is(err, ErrDegraded) || IsTimeout(err)
}

// IsTerminal reports whether the owning profile is permanently unusable.
// There is no reconnection: a lost or closed session fails every later call
// the same way.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrConnectionLost) || errors.Is(err, ErrSessionClosed)
}
