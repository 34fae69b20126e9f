package browsermux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/browsermux/internal/engine"
	"github.com/hazyhaar/browsermux/locate"
)

// Element is a resolved reference to one element in a tab. References go
// stale as the page mutates; actions on a stale reference fail with
// ErrActionRejected and can be re-resolved with another wait.
type Element struct {
	ref engine.Element
}

func (e *Element) Click(ctx context.Context) error { return e.ref.Click(ctx) }
func (e *Element) Input(ctx context.Context, text string) error {
	return e.ref.Input(ctx, text)
}
func (e *Element) Clear(ctx context.Context) error { return e.ref.Clear(ctx) }
func (e *Element) Text(ctx context.Context) (string, error) {
	return e.ref.Text(ctx)
}
func (e *Element) Visible(ctx context.Context) (bool, error) {
	return e.ref.Visible(ctx)
}
func (e *Element) Enabled(ctx context.Context) (bool, error) {
	return e.ref.Enabled(ctx)
}
func (e *Element) ScrollIntoView(ctx context.Context) error {
	return e.ref.ScrollIntoView(ctx)
}

// Elements finds and acts on elements in the profile's active tab. A single
// engine snapshot is never trusted: every wait polls until its condition
// holds or its timeout elapses, because pages mutate asynchronously after
// navigation and script actions.
//
// Every call requires an active tab and fails fast with ErrNoActiveTab,
// before any engine round trip, when the registry reports none.
type Elements struct {
	sess    engine.Session
	tabs    *TabRegistry
	profile string
	log     *slog.Logger
	report  func(op string, err error)
}

func newElements(sess engine.Session, tabs *TabRegistry, profile string, log *slog.Logger, report func(string, error)) *Elements {
	if report == nil {
		report = func(string, error) {}
	}
	return &Elements{sess: sess, tabs: tabs, profile: profile, log: log, report: report}
}

func (s *Elements) failed(op string, err error) error {
	s.report(op, err)
	return err
}

// WaitFor polls the active tab at cond.Poll until cond.Kind holds for at
// least one match of loc, then returns the first matching element. When the
// timeout elapses first it fails with *TimeoutError, never earlier than
// cond.Timeout and never later than one poll interval past it.
//
// Negative conditions (Invisible, Stale) succeed with a nil element: there is
// nothing to act on once the target is gone.
func (s *Elements) WaitFor(ctx context.Context, loc locate.Locator, cond locate.Condition) (*Element, error) {
	cond = cond.WithDefaults()

	tab, _, ok := s.tabs.activeHandle()
	if !ok {
		return nil, s.failed("wait", fmt.Errorf("browsermux: wait for %s: %w", loc, ErrNoActiveTab))
	}
	if err := loc.Validate(); err != nil {
		return nil, s.failed("wait", err)
	}

	start := time.Now()
	deadline := start.Add(cond.Timeout)

	for {
		el, found, err := s.probe(ctx, loc, cond)
		if err != nil {
			return nil, s.failed("wait", fmt.Errorf("browsermux: wait for %s: %w", loc, err))
		}
		if found {
			return el, nil
		}

		now := time.Now()
		if !now.Before(deadline) {
			return nil, s.failed("wait", &TimeoutError{
				Profile:   s.profile,
				Tab:       tab,
				Locator:   loc,
				Condition: cond,
				Waited:    now.Sub(start),
			})
		}

		wait := cond.Poll
		if rem := deadline.Sub(now); rem < wait {
			wait = rem
		}
		select {
		case <-ctx.Done():
			return nil, s.failed("wait", fmt.Errorf("browsermux: wait for %s: %w", loc, ctx.Err()))
		case <-time.After(wait):
		}
	}
}

// All waits like WaitFor, then returns every match that satisfies the
// condition at that instant.
func (s *Elements) All(ctx context.Context, loc locate.Locator, cond locate.Condition) ([]*Element, error) {
	cond = cond.WithDefaults()
	if _, err := s.WaitFor(ctx, loc, cond); err != nil {
		return nil, err
	}
	refs, err := s.sess.Locate(ctx, loc, nil)
	if err != nil {
		return nil, s.failed("all", fmt.Errorf("browsermux: all %s: %w", loc, err))
	}
	out := make([]*Element, 0, len(refs))
	for _, ref := range refs {
		keep, err := s.satisfies(ctx, ref, cond)
		if err != nil {
			continue
		}
		if keep {
			out = append(out, &Element{ref: ref})
		}
	}
	return out, nil
}

// Click waits for the element and clicks it once.
func (s *Elements) Click(ctx context.Context, loc locate.Locator, cond locate.Condition) error {
	return s.act(ctx, "click", loc, cond, func(el *Element) error {
		return el.Click(ctx)
	})
}

// Type waits for the element and sends text to it.
func (s *Elements) Type(ctx context.Context, loc locate.Locator, cond locate.Condition, text string) error {
	return s.act(ctx, "type", loc, cond, func(el *Element) error {
		return el.Input(ctx, text)
	})
}

// Clear waits for the element and empties its content.
func (s *Elements) Clear(ctx context.Context, loc locate.Locator, cond locate.Condition) error {
	return s.act(ctx, "clear", loc, cond, func(el *Element) error {
		return el.Clear(ctx)
	})
}

// Text waits for the element and returns its visible text.
func (s *Elements) Text(ctx context.Context, loc locate.Locator, cond locate.Condition) (string, error) {
	el, err := s.WaitFor(ctx, loc, cond)
	if err != nil {
		return "", err
	}
	if el == nil {
		return "", s.failed("text", fmt.Errorf("browsermux: text %s: condition %s resolves no element", loc, cond.Kind))
	}
	t, err := el.Text(ctx)
	if err != nil {
		return "", s.failed("text", fmt.Errorf("browsermux: text %s: %w", loc, err))
	}
	return t, nil
}

// act composes one wait with one engine action. The action itself is issued
// exactly once: an engine refusal surfaces as ErrActionRejected for the
// caller to retry, this layer never re-runs it.
func (s *Elements) act(ctx context.Context, op string, loc locate.Locator, cond locate.Condition, fn func(*Element) error) error {
	el, err := s.WaitFor(ctx, loc, cond)
	if err != nil {
		return err
	}
	if el == nil {
		return s.failed(op, fmt.Errorf("browsermux: %s %s: condition %s resolves no element", op, loc, cond.Kind))
	}
	if err := fn(el); err != nil {
		return s.failed(op, fmt.Errorf("browsermux: %s %s: %w", op, loc, err))
	}
	return nil
}

// probe takes one engine snapshot and evaluates the condition against it.
// Terminal session failures and a vanished active tab abort the wait;
// per-element races (a match detaching mid-check) read as "not yet".
func (s *Elements) probe(ctx context.Context, loc locate.Locator, cond locate.Condition) (*Element, bool, error) {
	refs, err := s.sess.Locate(ctx, loc, nil)
	if err != nil {
		return nil, false, err
	}

	switch cond.Kind {
	case locate.Stale:
		// Stale wants no matches at all.
		return nil, len(refs) == 0, nil
	case locate.Invisible:
		// Invisible tolerates hidden leftovers but not a visible match.
		for _, ref := range refs {
			v, err := ref.Visible(ctx)
			if err != nil {
				if s.abortable(err) {
					return nil, false, err
				}
				continue
			}
			if v {
				return nil, false, nil
			}
		}
		return nil, true, nil
	}

	for _, ref := range refs {
		ok, err := s.satisfies(ctx, ref, cond)
		if err != nil {
			if s.abortable(err) {
				return nil, false, err
			}
			continue
		}
		if ok {
			return &Element{ref: ref}, true, nil
		}
	}
	return nil, false, nil
}

// satisfies evaluates a positive condition kind against one element.
func (s *Elements) satisfies(ctx context.Context, ref engine.Element, cond locate.Condition) (bool, error) {
	switch cond.Kind {
	case locate.Present:
		return true, nil
	case locate.Visible:
		return ref.Visible(ctx)
	case locate.Clickable:
		v, err := ref.Visible(ctx)
		if err != nil || !v {
			return false, err
		}
		return ref.Enabled(ctx)
	case locate.TextContains:
		t, err := ref.Text(ctx)
		if err != nil {
			return false, err
		}
		return strings.Contains(t, cond.Text), nil
	case locate.Invisible, locate.Stale:
		v, err := ref.Visible(ctx)
		return !v, err
	default:
		return false, fmt.Errorf("browsermux: unknown condition kind %q", cond.Kind)
	}
}

// abortable reports failures that make further polling pointless.
func (s *Elements) abortable(err error) bool {
	return IsTerminal(err) || errors.Is(err, ErrHandleNotFound) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
