// Package locate defines the value types used to address elements inside a
// browser tab: a Locator says how to find something, a Condition says when a
// found element counts as ready. Both are plain immutable values, safe to
// build once and reuse across calls and goroutines.
package locate

import (
	"fmt"
	"time"
)

// Strategy selects the query mechanism a Locator uses.
type Strategy string

const (
	ByID       Strategy = "id"
	ByCSS      Strategy = "css"
	ByXPath    Strategy = "xpath"
	ByLinkText Strategy = "link_text"
	ByName     Strategy = "name"
	ByTag      Strategy = "tag"
)

// Locator describes how to find one or more elements in the focused tab.
// Equality is by value: two Locators with the same strategy and selector are
// interchangeable.
type Locator struct {
	Strategy Strategy
	Selector string
}

func ID(sel string) Locator       { return Locator{Strategy: ByID, Selector: sel} }
func CSS(sel string) Locator      { return Locator{Strategy: ByCSS, Selector: sel} }
func XPath(sel string) Locator    { return Locator{Strategy: ByXPath, Selector: sel} }
func LinkText(txt string) Locator { return Locator{Strategy: ByLinkText, Selector: txt} }
func Name(name string) Locator    { return Locator{Strategy: ByName, Selector: name} }
func Tag(tag string) Locator      { return Locator{Strategy: ByTag, Selector: tag} }

// Validate reports an unusable locator before any engine round trip.
func (l Locator) Validate() error {
	if l.Selector == "" {
		return fmt.Errorf("locate: empty selector for strategy %q", l.Strategy)
	}
	switch l.Strategy {
	case ByID, ByCSS, ByXPath, ByLinkText, ByName, ByTag:
		return nil
	case "":
		return fmt.Errorf("locate: missing strategy for selector %q", l.Selector)
	default:
		return fmt.Errorf("locate: unknown strategy %q", l.Strategy)
	}
}

func (l Locator) String() string {
	return string(l.Strategy) + ":" + l.Selector
}

// Kind names the readiness predicate of a Condition.
type Kind string

const (
	// Present holds when at least one match exists in the document.
	Present Kind = "present"
	// Visible holds when a match exists and has a non-zero rendered size.
	Visible Kind = "visible"
	// Clickable holds when a match is visible and not disabled.
	Clickable Kind = "clickable"
	// Invisible holds when no match is visible (absent counts as invisible).
	Invisible Kind = "invisible"
	// Stale holds when no match exists at all, used for dismissal waits.
	Stale Kind = "stale"
	// TextContains holds when a match's text contains Condition.Text.
	TextContains Kind = "text_contains"
)

// Default polling parameters, applied by WithDefaults when a Condition leaves
// them zero.
const (
	DefaultTimeout = 10 * time.Second
	DefaultPoll    = 250 * time.Millisecond
)

// Condition pairs a readiness predicate with its polling budget.
type Condition struct {
	Kind    Kind
	Timeout time.Duration
	Poll    time.Duration
	// Text is the substring argument of TextContains; ignored by other kinds.
	Text string
}

// Within is the usual constructor: a predicate with a timeout and default poll.
func Within(kind Kind, timeout time.Duration) Condition {
	return Condition{Kind: kind, Timeout: timeout}
}

// ContainsText builds a TextContains condition for the given substring.
func ContainsText(text string, timeout time.Duration) Condition {
	return Condition{Kind: TextContains, Timeout: timeout, Text: text}
}

// WithDefaults returns a copy with zero Timeout/Poll replaced by the package
// defaults and a zero Kind replaced by Present.
func (c Condition) WithDefaults() Condition {
	if c.Kind == "" {
		c.Kind = Present
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Poll <= 0 {
		c.Poll = DefaultPoll
	}
	return c
}

// Negative reports whether the predicate waits for disappearance rather than
// appearance. Negative conditions succeed on an empty match set.
func (c Condition) Negative() bool {
	return c.Kind == Invisible || c.Kind == Stale
}

func (c Condition) String() string {
	if c.Kind == TextContains {
		return fmt.Sprintf("%s(%q) within %s", c.Kind, c.Text, c.Timeout)
	}
	return fmt.Sprintf("%s within %s", c.Kind, c.Timeout)
}
