package browsermux

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/browsermux/content"
	"github.com/hazyhaar/browsermux/internal/engine"
)

// Profile owns exactly one engine session together with the tab registry
// and element service built on it. Profiles are created and removed
// through a Manager; the zero value is not usable.
//
// Page-level operations act on the profile's active tab. When no tab is
// active they fail with ErrNoActiveTab before any engine traffic.
type Profile struct {
	name     string
	sess     engine.Session
	tabs     *TabRegistry
	elements *Elements
	log      *slog.Logger
	report   func(op string, err error)

	mu       sync.Mutex
	degraded bool
}

func newProfile(name string, sess engine.Session, cfg LaunchConfig, log *slog.Logger, report func(string, error)) *Profile {
	if report == nil {
		report = func(string, error) {}
	}
	p := &Profile{
		name:   name,
		sess:   sess,
		log:    log,
		report: report,
	}
	p.tabs = newTabRegistry(sess, name, cfg.SettleDelay, log, report)
	p.elements = newElements(sess, p.tabs, name, log, report)
	return p
}

// Name returns the profile's registry name.
func (p *Profile) Name() string { return p.name }

// Tabs returns the profile's tab registry.
func (p *Profile) Tabs() *TabRegistry { return p.tabs }

// Elements returns the profile's element service.
func (p *Profile) Elements() *Elements { return p.elements }

// Degraded reports whether a removal attempt failed partway through
// teardown. A degraded profile stays listed so removal can be retried.
func (p *Profile) Degraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.degraded
}

func (p *Profile) markDegraded() {
	p.mu.Lock()
	p.degraded = true
	p.mu.Unlock()
}

func (p *Profile) failed(op string, err error) error {
	p.report(op, err)
	return err
}

func (p *Profile) requireActive(op string) error {
	if _, ok := p.tabs.ActiveName(); !ok {
		return p.failed(op, fmt.Errorf("browsermux: %s: %w", op, ErrNoActiveTab))
	}
	return nil
}

// Navigate loads url in the active tab and waits for the load event.
func (p *Profile) Navigate(ctx context.Context, url string) error {
	const op = "navigate"
	if err := p.requireActive(op); err != nil {
		return err
	}
	if err := p.sess.Navigate(ctx, url); err != nil {
		return p.failed(op, err)
	}
	return nil
}

// Back moves the active tab one entry back in its history.
func (p *Profile) Back(ctx context.Context) error {
	const op = "back"
	if err := p.requireActive(op); err != nil {
		return err
	}
	if err := p.sess.Back(ctx); err != nil {
		return p.failed(op, err)
	}
	return nil
}

// Forward moves the active tab one entry forward in its history.
func (p *Profile) Forward(ctx context.Context) error {
	const op = "forward"
	if err := p.requireActive(op); err != nil {
		return err
	}
	if err := p.sess.Forward(ctx); err != nil {
		return p.failed(op, err)
	}
	return nil
}

// Reload reloads the active tab.
func (p *Profile) Reload(ctx context.Context) error {
	const op = "reload"
	if err := p.requireActive(op); err != nil {
		return err
	}
	if err := p.sess.Reload(ctx); err != nil {
		return p.failed(op, err)
	}
	return nil
}

// Title returns the active tab's document title.
func (p *Profile) Title(ctx context.Context) (string, error) {
	const op = "title"
	if err := p.requireActive(op); err != nil {
		return "", err
	}
	title, err := p.sess.Title(ctx)
	if err != nil {
		return "", p.failed(op, err)
	}
	return title, nil
}

// URL returns the active tab's current URL.
func (p *Profile) URL(ctx context.Context) (string, error) {
	const op = "url"
	if err := p.requireActive(op); err != nil {
		return "", err
	}
	u, err := p.sess.URL(ctx)
	if err != nil {
		return "", p.failed(op, err)
	}
	return u, nil
}

// Eval runs a JavaScript function in the active tab and returns its
// result as JSON.
func (p *Profile) Eval(ctx context.Context, src string, args ...any) ([]byte, error) {
	const op = "eval"
	if err := p.requireActive(op); err != nil {
		return nil, err
	}
	out, err := p.sess.Eval(ctx, src, args...)
	if err != nil {
		return nil, p.failed(op, err)
	}
	return out, nil
}

// Screenshot captures the active tab as a full-page PNG.
func (p *Profile) Screenshot(ctx context.Context) ([]byte, error) {
	const op = "screenshot"
	if err := p.requireActive(op); err != nil {
		return nil, err
	}
	img, err := p.sess.Screenshot(ctx)
	if err != nil {
		return nil, p.failed(op, err)
	}
	return img, nil
}

// PrintPDF renders the active tab to PDF and validates the result before
// returning it.
func (p *Profile) PrintPDF(ctx context.Context) ([]byte, content.PDFInfo, error) {
	const op = "print_pdf"
	if err := p.requireActive(op); err != nil {
		return nil, content.PDFInfo{}, err
	}
	data, err := p.sess.PrintPDF(ctx)
	if err != nil {
		return nil, content.PDFInfo{}, p.failed(op, err)
	}
	info, err := content.ValidatePDF(data)
	if err != nil {
		return nil, content.PDFInfo{}, p.failed(op, fmt.Errorf("browsermux: %s: %w", op, err))
	}
	p.log.Debug("browsermux: pdf printed", "profile", p.name, "pages", info.Pages, "bytes", len(data))
	return data, info, nil
}

// Content captures the active tab's HTML and extracts a readable
// document from it.
func (p *Profile) Content(ctx context.Context) (*content.Document, error) {
	const op = "content"
	if err := p.requireActive(op); err != nil {
		return nil, err
	}
	raw, err := p.sess.HTML(ctx)
	if err != nil {
		return nil, p.failed(op, err)
	}
	pageURL, err := p.sess.URL(ctx)
	if err != nil {
		pageURL = ""
	}
	doc, err := content.Extract(raw, pageURL)
	if err != nil {
		return nil, p.failed(op, fmt.Errorf("browsermux: %s: %w", op, err))
	}
	return doc, nil
}

// ClearOriginData wipes stored state (cookies, local storage, caches)
// for the active tab's origin.
func (p *Profile) ClearOriginData(ctx context.Context) error {
	const op = "clear_origin_data"
	if err := p.requireActive(op); err != nil {
		return err
	}
	if err := p.sess.ClearOriginData(ctx); err != nil {
		return p.failed(op, err)
	}
	return nil
}

// SetViewport overrides the active tab's viewport dimensions.
func (p *Profile) SetViewport(ctx context.Context, width, height int) error {
	const op = "set_viewport"
	if err := p.requireActive(op); err != nil {
		return err
	}
	if err := p.sess.SetViewport(ctx, width, height); err != nil {
		return p.failed(op, err)
	}
	return nil
}
