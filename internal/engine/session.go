package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/browsermux/locate"
)

var errNoFocus = errors.New("browser: no tab focused")

// session drives one engine connection through rod. A single mutex serializes
// every command, including element actions handed out by Locate. Stored rod
// objects are never bound to a caller's context; per-call clones are.
type session struct {
	mu   sync.Mutex
	b    *rod.Browser
	lnch *launcher.Launcher // nil when attached to a remote engine
	cfg  LaunchConfig
	log  *slog.Logger

	page  *rod.Page // focused tab, nil while focus is undefined
	focus string

	closed bool
	lost   bool
}

// usable gates every command. Closed and lost are terminal: once set, every
// later call fails the same way, with no reconnection attempt.
func (s *session) usable() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.lost {
		return ErrConnectionLost
	}
	return nil
}

// fail wraps an engine error with op context, recording terminal connection
// loss. Caller-initiated cancellation passes through untranslated.
func (s *session) fail(op string, err error) error {
	if isConnectionErr(err) {
		s.lost = true
		s.log.Error("browser: connection lost", "op", op, "error", err)
		return fmt.Errorf("browser: %s: %w", op, ErrConnectionLost)
	}
	return fmt.Errorf("browser: %s: %w", op, err)
}

// pageFail is fail for ops scoped to the focused tab: an engine-side closure
// of that tab surfaces as ErrHandleNotFound and drops the focus.
func (s *session) pageFail(op string, err error) error {
	if isTargetGone(err) {
		s.page, s.focus = nil, ""
		return fmt.Errorf("browser: %s: %w", op, ErrHandleNotFound)
	}
	return s.fail(op, err)
}

func (s *session) Handles(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return nil, err
	}
	hs, err := s.handlesLocked(ctx)
	if err != nil {
		return nil, s.fail("list handles", err)
	}
	return hs, nil
}

// handlesLocked asks the engine for its live page targets, in engine order.
// Non-page targets (devtools, extensions, workers) are not tabs.
func (s *session) handlesLocked(ctx context.Context) ([]string, error) {
	res, err := proto.TargetGetTargets{}.Call(s.b.Context(ctx))
	if err != nil {
		return nil, err
	}
	hs := make([]string, 0, len(res.TargetInfos))
	for _, ti := range res.TargetInfos {
		if ti.Type != "page" {
			continue
		}
		hs = append(hs, string(ti.TargetID))
	}
	return hs, nil
}

func (s *session) Focus(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	hs, err := s.handlesLocked(ctx)
	if err != nil {
		return s.fail("focus", err)
	}
	if !slices.Contains(hs, handle) {
		return fmt.Errorf("browser: focus %q: %w", handle, ErrHandleNotFound)
	}
	p, err := s.b.PageFromTarget(proto.TargetTargetID(handle))
	if err != nil {
		if isTargetGone(err) {
			return fmt.Errorf("browser: focus %q: %w", handle, ErrHandleNotFound)
		}
		return s.fail("focus", err)
	}
	if _, err := p.Context(ctx).Activate(); err != nil {
		if isTargetGone(err) {
			return fmt.Errorf("browser: focus %q: %w", handle, ErrHandleNotFound)
		}
		return s.fail("focus", err)
	}
	s.page, s.focus = p, handle
	return nil
}

func (s *session) OpenTab(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return "", err
	}

	var (
		p   *rod.Page
		err error
	)
	if s.cfg.Stealth {
		p, err = stealth.Page(s.b)
	} else {
		p, err = s.b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return "", s.fail("open tab", err)
	}

	s.prepPage(ctx, p)

	// Either a focused new tab exists afterwards, or nothing changed.
	if _, err := p.Context(ctx).Activate(); err != nil {
		_ = p.Close()
		return "", s.fail("open tab", err)
	}

	h := string(p.TargetID)
	s.page, s.focus = p, h
	s.log.Debug("browser: opened tab", "handle", h, "stealth", s.cfg.Stealth)
	return h, nil
}

func (s *session) CloseHandle(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}

	gone := func() error {
		if handle == s.focus {
			s.page, s.focus = nil, ""
		}
		return fmt.Errorf("browser: close tab %q: %w", handle, ErrHandleNotFound)
	}

	var p *rod.Page
	if handle == s.focus && s.page != nil {
		p = s.page
	} else {
		hs, err := s.handlesLocked(ctx)
		if err != nil {
			return s.fail("close tab", err)
		}
		if !slices.Contains(hs, handle) {
			return gone()
		}
		p, err = s.b.PageFromTarget(proto.TargetTargetID(handle))
		if err != nil {
			if isTargetGone(err) {
				return gone()
			}
			return s.fail("close tab", err)
		}
	}

	if err := p.Close(); err != nil {
		if isTargetGone(err) {
			return gone()
		}
		return s.fail("close tab", err)
	}
	if handle == s.focus {
		s.page, s.focus = nil, ""
	}
	return nil
}

func (s *session) Navigate(ctx context.Context, rawurl string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	p := s.page
	if p == nil {
		return errNoFocus
	}

	nctx, cancel := context.WithTimeout(ctx, s.cfg.PageLoadTimeout)
	defer cancel()

	if err := p.Context(nctx).Navigate(rawurl); err != nil {
		return s.pageFail("navigate "+rawurl, err)
	}
	if err := p.Context(nctx).WaitLoad(); err != nil {
		s.log.Warn("browser: wait load", "url", rawurl, "error", err)
	}
	return nil
}

func (s *session) Back(ctx context.Context) error {
	return s.history(ctx, "back", func(p *rod.Page) error { return p.NavigateBack() })
}

func (s *session) Forward(ctx context.Context) error {
	return s.history(ctx, "forward", func(p *rod.Page) error { return p.NavigateForward() })
}

func (s *session) Reload(ctx context.Context) error {
	return s.history(ctx, "reload", func(p *rod.Page) error { return p.Reload() })
}

func (s *session) history(ctx context.Context, op string, move func(*rod.Page) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	p := s.page
	if p == nil {
		return errNoFocus
	}

	nctx, cancel := context.WithTimeout(ctx, s.cfg.PageLoadTimeout)
	defer cancel()

	if err := move(p.Context(nctx)); err != nil {
		return s.pageFail(op, err)
	}
	if err := p.Context(nctx).WaitLoad(); err != nil {
		s.log.Warn("browser: wait load", "op", op, "error", err)
	}
	return nil
}

func (s *session) Title(ctx context.Context) (string, error) {
	info, err := s.info(ctx, "title")
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (s *session) URL(ctx context.Context) (string, error) {
	info, err := s.info(ctx, "url")
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (s *session) info(ctx context.Context, op string) (*proto.TargetTargetInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return nil, err
	}
	p := s.page
	if p == nil {
		return nil, errNoFocus
	}
	info, err := p.Context(ctx).Info()
	if err != nil {
		return nil, s.pageFail(op, err)
	}
	return info, nil
}

func (s *session) HTML(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return "", err
	}
	p := s.page
	if p == nil {
		return "", errNoFocus
	}
	html, err := p.Context(ctx).HTML()
	if err != nil {
		return "", s.pageFail("html", err)
	}
	return html, nil
}

func (s *session) Eval(ctx context.Context, src string, args ...any) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return nil, err
	}
	p := s.page
	if p == nil {
		return nil, errNoFocus
	}
	obj, err := p.Context(ctx).Eval(src, args...)
	if err != nil {
		return nil, s.pageFail("eval", err)
	}
	data, err := json.Marshal(obj.Value.Val())
	if err != nil {
		return nil, fmt.Errorf("browser: eval: encode result: %w", err)
	}
	return data, nil
}

func (s *session) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return nil, err
	}
	p := s.page
	if p == nil {
		return nil, errNoFocus
	}
	data, err := p.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, s.pageFail("screenshot", err)
	}
	return data, nil
}

func (s *session) PrintPDF(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return nil, err
	}
	p := s.page
	if p == nil {
		return nil, errNoFocus
	}
	r, err := p.Context(ctx).PDF(&proto.PagePrintToPDF{PrintBackground: true})
	if err != nil {
		return nil, s.pageFail("print pdf", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, s.fail("print pdf", err)
	}
	return data, nil
}

func (s *session) ClearOriginData(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	p := s.page
	if p == nil {
		return errNoFocus
	}
	info, err := p.Context(ctx).Info()
	if err != nil {
		return s.pageFail("clear origin data", err)
	}
	u, err := url.Parse(info.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("browser: clear origin data: no origin in %q", info.URL)
	}
	err = proto.StorageClearDataForOrigin{
		Origin:       u.Scheme + "://" + u.Host,
		StorageTypes: "all",
	}.Call(p.Context(ctx))
	if err != nil {
		return s.pageFail("clear origin data", err)
	}
	return nil
}

func (s *session) SetViewport(ctx context.Context, width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	p := s.page
	if p == nil {
		return errNoFocus
	}
	err := proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}.Call(p.Context(ctx))
	if err != nil {
		return s.pageFail("set viewport", err)
	}
	return nil
}

func (s *session) Locate(ctx context.Context, loc locate.Locator, scope Element) ([]Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return nil, err
	}
	q, err := lower(loc)
	if err != nil {
		return nil, err
	}

	var els rod.Elements
	if scope != nil {
		se, ok := scope.(*element)
		if !ok {
			return nil, fmt.Errorf("browser: locate: foreign scope element %T", scope)
		}
		if q.xpath {
			els, err = se.el.Context(ctx).ElementsX(q.expr)
		} else {
			els, err = se.el.Context(ctx).Elements(q.expr)
		}
	} else {
		p := s.page
		if p == nil {
			return nil, errNoFocus
		}
		if q.xpath {
			els, err = p.Context(ctx).ElementsX(q.expr)
		} else {
			els, err = p.Context(ctx).Elements(q.expr)
		}
	}
	if err != nil {
		return nil, s.pageFail("locate "+loc.String(), err)
	}

	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &element{s: s, el: el})
	}
	return out, nil
}

// Shutdown closes every tab then tears down the connection. For a local
// engine the launcher cleanup reaps the process even when the connection is
// already gone, so shutdown still succeeds; a remote engine that cannot be
// reached stays un-torn-down and the error is returned for a later retry.
func (s *session) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	if !s.lost {
		if pages, err := s.b.Pages(); err == nil {
			for _, p := range pages {
				if err := p.Close(); err != nil {
					s.log.Debug("browser: close tab during shutdown", "error", err)
				}
			}
		} else if isConnectionErr(err) {
			s.lost = true
		}
	}

	teardownErr := s.b.Close()
	if s.lnch != nil {
		// Kills the local process regardless of connection state.
		s.lnch.Cleanup()
		s.lnch = nil
		teardownErr = nil
	}
	if teardownErr != nil {
		return s.fail("shutdown", teardownErr)
	}

	s.closed = true
	s.page, s.focus = nil, ""
	s.log.Info("browser: session shut down")
	return nil
}

// focusInitialPage pins the session's first tab. A fresh engine normally
// reports exactly one page; an empty target list gets a blank tab created so
// profile seeding always finds a handle.
func (s *session) focusInitialPage(ctx context.Context) error {
	pages, err := s.b.Pages()
	if err != nil {
		return err
	}
	var first *rod.Page
	if len(pages) > 0 {
		first = pages[0]
	} else {
		first, err = s.b.Page(proto.TargetCreateTarget{URL: ""})
		if err != nil {
			return err
		}
	}
	s.prepPage(ctx, first)
	if _, err := first.Context(ctx).Activate(); err != nil {
		return err
	}
	s.page, s.focus = first, string(first.TargetID)
	return nil
}

// prepPage applies per-tab setup. Failures degrade the tab, not the call.
func (s *session) prepPage(ctx context.Context, p *rod.Page) {
	if s.cfg.WindowWidth > 0 && s.cfg.WindowHeight > 0 {
		err := proto.EmulationSetDeviceMetricsOverride{
			Width:             s.cfg.WindowWidth,
			Height:            s.cfg.WindowHeight,
			DeviceScaleFactor: 1,
			Mobile:            false,
		}.Call(p.Context(ctx))
		if err != nil {
			s.log.Warn("browser: set viewport failed", "error", err)
		}
	}
	if len(s.cfg.BlockResources) > 0 {
		if err := blockResources(p, s.cfg.BlockResources); err != nil {
			s.log.Warn("browser: resource blocking failed", "error", err)
		}
	}
}

// abandon tears down a half-built session after a failed Dial.
func (s *session) abandon() {
	_ = s.b.Close()
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
}

// blockResources intercepts requests on the page and drops the listed
// resource types (images, fonts, media, stylesheets).
func blockResources(p *rod.Page, types []string) error {
	blocked := make(map[string]bool, len(types))
	for _, t := range types {
		blocked[strings.TrimSuffix(strings.ToLower(t), "s")] = true
	}

	router := p.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		if blocked[strings.ToLower(string(h.Request.Type()))] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return err
	}
	go router.Run()
	return nil
}

// Engine failures carry no stable codes through rod, so classification works
// the way the error text reads.
func isConnectionErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	for _, probe := range []string{
		"websocket",
		"use of closed network connection",
		"connection reset by peer",
		"connection refused",
		"broken pipe",
		"unexpected EOF",
		"browser has been closed",
	} {
		if strings.Contains(msg, probe) {
			return true
		}
	}
	return false
}

func isTargetGone(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, probe := range []string{
		"No target with given id",
		"Target closed",
		"target closed",
		"Session with given id not found",
		"No session with given id",
		"Inspected target navigated or closed",
	} {
		if strings.Contains(msg, probe) {
			return true
		}
	}
	return false
}

func isRejected(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, probe := range []string{
		"not clickable",
		"not visible",
		"Node is detached",
		"node is detached",
		"Could not find node",
		"Cannot find context",
		"Object couldn't be returned by value",
		"is not focusable",
		"covered by",
	} {
		if strings.Contains(msg, probe) {
			return true
		}
	}
	return false
}
