package browsermux

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/browsermux/kit"
	"github.com/hazyhaar/browsermux/locate"
)

// RegisterTools exposes a Manager's profiles, tabs, pages and elements as
// MCP tools on srv. A nil log falls back to the manager's own logger.
func RegisterTools(srv *mcp.Server, m *Manager, log *slog.Logger) {
	if log == nil {
		log = m.log
	}
	t := &toolset{m: m, log: log}
	t.registerProfileOpen(srv)
	t.registerProfileClose(srv)
	t.registerProfileList(srv)
	t.registerTabOpen(srv)
	t.registerTabAdopt(srv)
	t.registerTabSwitch(srv)
	t.registerTabClose(srv)
	t.registerTabList(srv)
	t.registerNavigate(srv)
	t.registerPageContent(srv)
	t.registerPageScreenshot(srv)
	t.registerPagePDF(srv)
	t.registerElementClick(srv)
	t.registerElementType(srv)
	t.registerElementText(srv)
}

type toolset struct {
	m   *Manager
	log *slog.Logger
}

// wrap applies the shared middleware stack to one tool endpoint.
func (t *toolset) wrap(name string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.RequestID(nil), kit.Logging(t.log, name))(ep)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// profileCtx tags the request context with the profile a tool acts on.
func profileCtx(name string) func(context.Context) context.Context {
	return func(ctx context.Context) context.Context {
		return kit.WithProfile(ctx, name)
	}
}

func toLocator(strategy, selector string) locate.Locator {
	if strategy == "" {
		strategy = string(locate.ByCSS)
	}
	return locate.Locator{Strategy: locate.Strategy(strategy), Selector: selector}
}

func condWithin(kind locate.Kind, timeoutMS int64) locate.Condition {
	return locate.Condition{Kind: kind, Timeout: time.Duration(timeoutMS) * time.Millisecond}
}

// --- Profiles ---

func (t *toolset) registerProfileOpen(srv *mcp.Server) {
	type req struct {
		Name           string   `json:"name"`
		Browser        string   `json:"browser"`
		RemoteURL      string   `json:"remote_url"`
		Headful        bool     `json:"headful"`
		Stealth        bool     `json:"stealth"`
		UserAgent      string   `json:"user_agent"`
		ProxyURL       string   `json:"proxy_url"`
		WindowWidth    int      `json:"window_width"`
		WindowHeight   int      `json:"window_height"`
		BlockResources []string `json:"block_resources"`
		SeedTab        string   `json:"seed_tab"`
	}

	tool := &mcp.Tool{
		Name:        "profile_open",
		Description: "Launch a browser profile: an isolated engine instance with its own named tabs",
		InputSchema: inputSchema(map[string]any{
			"name":          map[string]any{"type": "string", "description": "Profile name, unique across the manager"},
			"browser":       map[string]any{"type": "string", "description": "Engine: chrome (default), firefox or remote"},
			"remote_url":    map[string]any{"type": "string", "description": "Debug WebSocket URL when browser is remote"},
			"headful":       map[string]any{"type": "boolean", "description": "Run with a visible window"},
			"stealth":       map[string]any{"type": "boolean", "description": "Apply anti-automation-detection scripts to new tabs"},
			"user_agent":    map[string]any{"type": "string", "description": "User-Agent override"},
			"proxy_url":     map[string]any{"type": "string", "description": "Proxy for all traffic"},
			"window_width":  map[string]any{"type": "integer", "description": "Window width in px"},
			"window_height": map[string]any{"type": "integer", "description": "Window height in px"},
			"block_resources": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Resource types to drop on every tab: images, fonts, media, stylesheets",
			},
			"seed_tab": map[string]any{"type": "string", "description": "Name for the initial tab (default main)"},
		}, []string{"name"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		q := r.(*req)
		cfg := LaunchConfig{
			Type:           BrowserType(q.Browser),
			RemoteURL:      q.RemoteURL,
			Headful:        q.Headful,
			Stealth:        q.Stealth,
			UserAgent:      q.UserAgent,
			ProxyURL:       q.ProxyURL,
			WindowWidth:    q.WindowWidth,
			WindowHeight:   q.WindowHeight,
			BlockResources: q.BlockResources,
			SeedTabName:    q.SeedTab,
		}
		p, err := t.m.NewProfile(ctx, q.Name, cfg)
		if err != nil {
			return nil, err
		}
		seed, _ := p.Tabs().ActiveName()
		return map[string]any{"profile": p.Name(), "seed_tab": seed}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var q req
		if err := json.Unmarshal(r.Params.Arguments, &q); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &q, EnrichCtx: profileCtx(q.Name)}, nil
	}

	kit.RegisterMCPTool(srv, tool, t.wrap(tool.Name, endpoint), decode)
}

func (t *toolset) registerProfileClose(srv *mcp.Server) {
	type req struct {
		Name string `json:"name"`
	}

	tool := &mcp.Tool{
		Name:        "profile_close",
		Description: "Shut down a profile's engine and forget its tabs",
		InputSchema: inputSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "Profile name"},
		}, []string{"name"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		q := r.(*req)
		if err := t.m.RemoveProfile(ctx, q.Name); err != nil {
			return nil, err
		}
		return map[string]any{"closed": q.Name}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var q req
		if err := json.Unmarshal(r.Params.Arguments, &q); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &q, EnrichCtx: profileCtx(q.Name)}, nil
	}

	kit.RegisterMCPTool(srv, tool, t.wrap(tool.Name, endpoint), decode)
}

func (t *toolset) registerProfileList(srv *mcp.Server) {
	type profileInfo struct {
		Name      string `json:"name"`
		Tabs      int    `json:"tabs"`
		ActiveTab string `json:"active_tab,omitempty"`
		Degraded  bool   `json:"degraded,omitempty"`
	}

	tool := &mcp.Tool{
		Name:        "profile_list",
		Description: "List open profiles with their tab counts and state",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		profiles := t.m.Profiles()
		infos := make([]profileInfo, 0, len(profiles))
		for _, p := range profiles {
			active, _ := p.Tabs().ActiveName()
			infos = append(infos, profileInfo{
				Name:      p.Name(),
				Tabs:      p.Tabs().Count(),
				ActiveTab: active,
				Degraded:  p.Degraded(),
			})
		}
		return map[string]any{"profiles": infos}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, t.wrap(tool.Name, endpoint), decode)
}

// --- Tabs ---

func (t *toolset) registerTabOpen(srv *mcp.Server) {
	type req struct {
		Profile string `json:"profile"`
		Name    string `json:"name"`
		URL     string `json:"url"`
	}

	tool := &mcp.Tool{
		Name:        "tab_open",
		Description: "Open a fresh tab under a chosen name, focus it and optionally navigate it",
		InputSchema: inputSchema(map[string]any{
			"profile": map[string]any{"type": "string", "description": "Profile name"},
			"name":    map[string]any{"type": "string", "description": "Tab name, unique within the profile"},
			"url":     map[string]any{"type": "string", "description": "URL to load in the new tab"},
		}, []string{"profile", "name"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		q := r.(*req)
		p, err := t.m.Profile(q.Profile)
		if err != nil {
			return nil, err
		}
		tab, err := p.Tabs().Open(ctx, q.Name)
		if err != nil {
			return nil, err
		}
		if q.URL != "" {
			if err := p.Navigate(ctx, q.URL); err != nil {
				return nil, err
			}
		}
		return tab, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var q req
		if err := json.Unmarshal(r.Params.Arguments, &q); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &q, EnrichCtx: profileCtx(q.Profile)}, nil
	}

	kit.RegisterMCPTool(srv, tool, t.wrap(tool.Name, endpoint), decode)
}

func (t *toolset) registerTabAdopt(srv *mcp.Server) {
	type req struct {
		Profile string `json:"profile"`
		Name    string `json:"name"`
	}

	tool := &mcp.Tool{
		Name:        "tab_adopt",
		Description: "Name and focus the one engine tab that appeared outside the registry, such as a popup",
		InputSchema: inputSchema(map[string]any{
			"profile": map[string]any{"type": "string", "description": "Profile name"},
			"name":    map[string]any{"type": "string", "description": "Name to give the adopted tab"},
		}, []string{"profile", "name"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		q := r.(*req)
		p, err := t.m.Profile(q.Profile)
		if err != nil {
			return nil, err
		}
		return p.Tabs().Adopt(ctx, q.Name)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var q req
		if err := json.Unmarshal(r.Params.Arguments, &q); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &q, EnrichCtx: profileCtx(q.Profile)}, nil
	}

	kit.RegisterMCPTool(srv, tool, t.wrap(tool.Name, endpoint), decode)
}

func (t *toolset) registerTabSwitch(srv *mcp.Server) {
	type req struct {
		Profile string `json:"profile"`
		Name    string `json:"name"`
	}

	tool := &mcp.Tool{
		Name:        "tab_switch",
		Description: "Focus a named tab",
		InputSchema: inputSchema(map[string]any{
			"profile": map[string]any{"type": "string", "description": "Profile name"},
			"name":    map[string]any{"type": "string", "description": "Tab name"},
		}, []string{"profile", "name"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		q := r.(*req)
		p, err := t.m.Profile(q.Profile)
		if err != nil {
			return nil, err
		}
		if err := p.Tabs().Switch(ctx, q.Name); err != nil {
			return nil, err
		}
		return map[string]any{"active": q.Name}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var q req
		if err := json.Unmarshal(r.Params.Arguments, &q); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &q, EnrichCtx: profileCtx(q.Profile)}, nil
	}

	kit.RegisterMCPTool(srv, tool, t.wrap(tool.Name, endpoint), decode)
}

func (t *toolset) registerTabClose(srv *mcp.Server) {
	type req struct {
		Profile string `json:"profile"`
		Name    string `json:"name"`
	}

	tool := &mcp.Tool{
		Name:        "tab_close",
		Description: "Close a named tab; closing the focused tab leaves no tab focused until the next switch or open",
		InputSchema: inputSchema(map[string]any{
			"profile": map[string]any{"type": "string", "description": "Profile name"},
			"name":    map[string]any{"type": "string", "description": "Tab name"},
		}, []string{"profile", "name"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		q := r.(*req)
		p, err := t.m.Profile(q.Profile)
		if err != nil {
			return nil, err
		}
		if err := p.Tabs().Close(ctx, q.Name); err != nil {
			return nil, err
		}
		return map[string]any{"closed": q.Name}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var q req
		if err := json.Unmarshal(r.Params.Arguments, &q); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &q, EnrichCtx: profileCtx(q.Profile)}, nil
	}

	kit.RegisterMCPTool(srv, tool, t.wrap(tool.Name, endpoint), decode)
}

func (t *toolset) registerTabList(srv *mcp.Server) {
	type req struct {
		Profile string `json:"profile"`
	}

	tool := &mcp.Tool{
		Name:        "tab_list",
		Description: "List a profile's tabs in creation order",
		InputSchema: inputSchema(map[string]any{
			"profile": map[string]any{"type": "string", "description": "Profile name"},
		}, []string{"profile"}),
	}

	endpoint := func(_ context.Context, r any) (any, error) {
		q := r.(*req)
		p, err := t.m.Profile(q.Profile)
		if err != nil {
			return nil, err
		}
		return map[string]any{"tabs": p.Tabs().List()}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var q req
		if err := json.Unmarshal(r.Params.Arguments, &q); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &q, EnrichCtx: profileCtx(q.Profile)}, nil
	}

	kit.RegisterMCPTool(srv, tool, t.wrap(tool.Name, endpoint), decode)
}

// --- Page ---

func (t *toolset) registerNavigate(srv *mcp.Server) {
	type req struct {
		Profile string `json:"profile"`
		URL     string `json:"url"`
	}

	tool := &mcp.Tool{
		Name:        "navigate",
		Description: "Navigate the focused tab of a profile to a URL",
		InputSchema: inputSchema(map[string]any{
			"profile": map[string]any{"type": "string", "description": "Profile name"},
			"url":     map[string]any{"type": "string", "description": "URL to load"},
		}, []string{"profile", "url"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		q := r.(*req)
		p, err := t.m.Profile(q.Profile)
		if err != nil {
			return nil, err
		}
		if err := p.Navigate(ctx, q.URL); err != nil {
			return nil, err
		}
		return map[string]any{"navigated": q.URL}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var q req
		if err := json.Unmarshal(r.Params.Arguments, &q); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &q, EnrichCtx: profileCtx(q.Profile)}, nil
	}

	kit.RegisterMCPTool(srv, tool, t.wrap(tool.Name, endpoint), decode)
}

func (t *toolset) registerPageContent(srv *mcp.Server) {
	type req struct {
		Profile string `json:"profile"`
	}

	tool := &mcp.Tool{
		Name:        "page_content",
		Description: "Extract the focused tab as a readable document: title, markdown and plain text, scripts and hidden nodes stripped",
		InputSchema: inputSchema(map[string]any{
			"profile": map[string]any{"type": "string", "description": "Profile name"},
		}, []string{"profile"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		q := r.(*req)
		p, err := t.m.Profile(q.Profile)
		if err != nil {
			return nil, err
		}
		return p.Content(ctx)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var q req
		if err := json.Unmarshal(r.Params.Arguments, &q); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &q, EnrichCtx: profileCtx(q.Profile)}, nil
	}

	kit.RegisterMCPTool(srv, tool, t.wrap(tool.Name, endpoint), decode)
}

func (t *toolset) registerPageScreenshot(srv *mcp.Server) {
	type req struct {
		Profile string `json:"profile"`
	}

	tool := &mcp.Tool{
		Name:        "page_screenshot",
		Description: "Capture the focused tab as a PNG, returned base64-encoded",
		InputSchema: inputSchema(map[string]any{
			"profile": map[string]any{"type": "string", "description": "Profile name"},
		}, []string{"profile"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		q := r.(*req)
		p, err := t.m.Profile(q.Profile)
		if err != nil {
			return nil, err
		}
		img, err := p.Screenshot(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"format":      "png",
			"data_base64": base64.StdEncoding.EncodeToString(img),
		}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var q req
		if err := json.Unmarshal(r.Params.Arguments, &q); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &q, EnrichCtx: profileCtx(q.Profile)}, nil
	}

	kit.RegisterMCPTool(srv, tool, t.wrap(tool.Name, endpoint), decode)
}

func (t *toolset) registerPagePDF(srv *mcp.Server) {
	type req struct {
		Profile string `json:"profile"`
	}

	tool := &mcp.Tool{
		Name:        "page_pdf",
		Description: "Print the focused tab to a validated PDF, returned base64-encoded with its page count",
		InputSchema: inputSchema(map[string]any{
			"profile": map[string]any{"type": "string", "description": "Profile name"},
		}, []string{"profile"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		q := r.(*req)
		p, err := t.m.Profile(q.Profile)
		if err != nil {
			return nil, err
		}
		data, info, err := p.PrintPDF(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"pages":       info.Pages,
			"data_base64": base64.StdEncoding.EncodeToString(data),
		}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var q req
		if err := json.Unmarshal(r.Params.Arguments, &q); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &q, EnrichCtx: profileCtx(q.Profile)}, nil
	}

	kit.RegisterMCPTool(srv, tool, t.wrap(tool.Name, endpoint), decode)
}

// --- Elements ---

func (t *toolset) registerElementClick(srv *mcp.Server) {
	type req struct {
		Profile   string `json:"profile"`
		Strategy  string `json:"strategy"`
		Value     string `json:"value"`
		TimeoutMS int64  `json:"timeout_ms"`
	}

	tool := &mcp.Tool{
		Name:        "element_click",
		Description: "Wait until an element is clickable, then click it once",
		InputSchema: inputSchema(map[string]any{
			"profile":    map[string]any{"type": "string", "description": "Profile name"},
			"strategy":   map[string]any{"type": "string", "description": "Locator strategy: id, css (default), xpath, link_text, name or tag"},
			"value":      map[string]any{"type": "string", "description": "Selector value for the strategy"},
			"timeout_ms": map[string]any{"type": "integer", "description": "Wait budget in ms (default 10000)"},
		}, []string{"profile", "value"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		q := r.(*req)
		p, err := t.m.Profile(q.Profile)
		if err != nil {
			return nil, err
		}
		loc := toLocator(q.Strategy, q.Value)
		if err := p.Elements().Click(ctx, loc, condWithin(locate.Clickable, q.TimeoutMS)); err != nil {
			return nil, err
		}
		return map[string]any{"clicked": loc.String()}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var q req
		if err := json.Unmarshal(r.Params.Arguments, &q); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &q, EnrichCtx: profileCtx(q.Profile)}, nil
	}

	kit.RegisterMCPTool(srv, tool, t.wrap(tool.Name, endpoint), decode)
}

func (t *toolset) registerElementType(srv *mcp.Server) {
	type req struct {
		Profile   string `json:"profile"`
		Strategy  string `json:"strategy"`
		Value     string `json:"value"`
		Text      string `json:"text"`
		Clear     bool   `json:"clear"`
		TimeoutMS int64  `json:"timeout_ms"`
	}

	tool := &mcp.Tool{
		Name:        "element_type",
		Description: "Wait until an element is visible, then send text to it",
		InputSchema: inputSchema(map[string]any{
			"profile":    map[string]any{"type": "string", "description": "Profile name"},
			"strategy":   map[string]any{"type": "string", "description": "Locator strategy: id, css (default), xpath, link_text, name or tag"},
			"value":      map[string]any{"type": "string", "description": "Selector value for the strategy"},
			"text":       map[string]any{"type": "string", "description": "Text to send"},
			"clear":      map[string]any{"type": "boolean", "description": "Empty the element before typing"},
			"timeout_ms": map[string]any{"type": "integer", "description": "Wait budget in ms (default 10000)"},
		}, []string{"profile", "value", "text"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		q := r.(*req)
		p, err := t.m.Profile(q.Profile)
		if err != nil {
			return nil, err
		}
		loc := toLocator(q.Strategy, q.Value)
		cond := condWithin(locate.Visible, q.TimeoutMS)
		if q.Clear {
			if err := p.Elements().Clear(ctx, loc, cond); err != nil {
				return nil, err
			}
		}
		if err := p.Elements().Type(ctx, loc, cond, q.Text); err != nil {
			return nil, err
		}
		return map[string]any{"typed": loc.String()}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var q req
		if err := json.Unmarshal(r.Params.Arguments, &q); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &q, EnrichCtx: profileCtx(q.Profile)}, nil
	}

	kit.RegisterMCPTool(srv, tool, t.wrap(tool.Name, endpoint), decode)
}

func (t *toolset) registerElementText(srv *mcp.Server) {
	type req struct {
		Profile   string `json:"profile"`
		Strategy  string `json:"strategy"`
		Value     string `json:"value"`
		TimeoutMS int64  `json:"timeout_ms"`
	}

	tool := &mcp.Tool{
		Name:        "element_text",
		Description: "Wait until an element is present, then return its visible text",
		InputSchema: inputSchema(map[string]any{
			"profile":    map[string]any{"type": "string", "description": "Profile name"},
			"strategy":   map[string]any{"type": "string", "description": "Locator strategy: id, css (default), xpath, link_text, name or tag"},
			"value":      map[string]any{"type": "string", "description": "Selector value for the strategy"},
			"timeout_ms": map[string]any{"type": "integer", "description": "Wait budget in ms (default 10000)"},
		}, []string{"profile", "value"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		q := r.(*req)
		p, err := t.m.Profile(q.Profile)
		if err != nil {
			return nil, err
		}
		loc := toLocator(q.Strategy, q.Value)
		txt, err := p.Elements().Text(ctx, loc, condWithin(locate.Present, q.TimeoutMS))
		if err != nil {
			return nil, err
		}
		return map[string]any{"text": txt}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var q req
		if err := json.Unmarshal(r.Params.Arguments, &q); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &q, EnrichCtx: profileCtx(q.Profile)}, nil
	}

	kit.RegisterMCPTool(srv, tool, t.wrap(tool.Name, endpoint), decode)
}
