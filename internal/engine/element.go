package engine

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// element is a resolved rod element routed back through its session's
// critical section, so element actions never interleave with other commands
// on the same connection.
type element struct {
	s  *session
	el *rod.Element
}

func (e *element) Click(ctx context.Context) error {
	return e.do(ctx, "click", func(el *rod.Element) error {
		return el.Click(proto.InputMouseButtonLeft, 1)
	})
}

func (e *element) Input(ctx context.Context, text string) error {
	return e.do(ctx, "input", func(el *rod.Element) error {
		return el.Input(text)
	})
}

// Clear empties the element by selecting its content and typing over it.
func (e *element) Clear(ctx context.Context) error {
	return e.do(ctx, "clear", func(el *rod.Element) error {
		if err := el.SelectAllText(); err != nil {
			return err
		}
		return el.Input("")
	})
}

func (e *element) Text(ctx context.Context) (string, error) {
	var out string
	err := e.do(ctx, "text", func(el *rod.Element) error {
		t, err := el.Text()
		out = t
		return err
	})
	return out, err
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	var out bool
	err := e.do(ctx, "visible", func(el *rod.Element) error {
		v, err := el.Visible()
		out = v
		return err
	})
	return out, err
}

// Enabled reports the absence of a disabled attribute.
func (e *element) Enabled(ctx context.Context) (bool, error) {
	var out bool
	err := e.do(ctx, "enabled", func(el *rod.Element) error {
		attr, err := el.Attribute("disabled")
		out = attr == nil
		return err
	})
	return out, err
}

func (e *element) ScrollIntoView(ctx context.Context) error {
	return e.do(ctx, "scroll into view", func(el *rod.Element) error {
		return el.ScrollIntoView()
	})
}

// do serializes one element operation through the owning session and
// classifies the outcome: connection failures become terminal, engine
// refusals (detached, covered, gone) become ErrActionRejected.
func (e *element) do(ctx context.Context, op string, fn func(*rod.Element) error) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if err := e.s.usable(); err != nil {
		return err
	}
	err := fn(e.el.Context(ctx))
	switch {
	case err == nil:
		return nil
	case isConnectionErr(err):
		e.s.lost = true
		e.s.log.Error("browser: connection lost", "op", op, "error", err)
		return fmt.Errorf("browser: %s: %w", op, ErrConnectionLost)
	case isRejected(err) || isTargetGone(err):
		return fmt.Errorf("browser: %s: %w: %v", op, ErrActionRejected, err)
	default:
		return fmt.Errorf("browser: %s: %w", op, err)
	}
}
