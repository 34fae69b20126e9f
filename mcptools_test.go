package browsermux

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/browsermux/locate"
)

var testMCPImpl = &mcp.Implementation{Name: "browsermux-test", Version: "0.1.0"}

func mcpSession(t *testing.T, m *Manager) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	RegisterTools(srv, m, testLogger())

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text
}

func mcpCallToolErr(t *testing.T, session *mcp.ClientSession, name string, args any) error {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	toolErr := result.GetError()
	if toolErr == nil {
		t.Fatalf("CallTool(%s): expected a tool error", name)
	}
	return toolErr
}

func TestMCP_ProfileLifecycle(t *testing.T) {
	m := newTestManager(t, newFakeSession())
	session := mcpSession(t, m)

	text := mcpCallTool(t, session, "profile_open", map[string]any{"name": "crawler"})
	var opened struct {
		Profile string `json:"profile"`
		SeedTab string `json:"seed_tab"`
	}
	if err := json.Unmarshal([]byte(text), &opened); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if opened.Profile != "crawler" || opened.SeedTab != "main" {
		t.Fatalf("profile_open = %+v, want crawler/main", opened)
	}

	text = mcpCallTool(t, session, "profile_list", map[string]any{})
	var listed struct {
		Profiles []struct {
			Name      string `json:"name"`
			Tabs      int    `json:"tabs"`
			ActiveTab string `json:"active_tab"`
		} `json:"profiles"`
	}
	if err := json.Unmarshal([]byte(text), &listed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(listed.Profiles) != 1 {
		t.Fatalf("profile_list: got %d profiles, want 1", len(listed.Profiles))
	}
	got := listed.Profiles[0]
	if got.Name != "crawler" || got.Tabs != 1 || got.ActiveTab != "main" {
		t.Fatalf("profile_list entry = %+v", got)
	}

	mcpCallTool(t, session, "profile_close", map[string]any{"name": "crawler"})
	if m.Count() != 0 {
		t.Fatalf("after profile_close: %d profiles registered", m.Count())
	}
}

func TestMCP_TabFlow(t *testing.T) {
	fake := newFakeSession()
	m := newTestManager(t, fake)
	if _, err := m.NewProfile(context.Background(), "prof", LaunchConfig{SettleDelay: 5 * time.Millisecond}); err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	session := mcpSession(t, m)

	text := mcpCallTool(t, session, "tab_open", map[string]any{
		"profile": "prof",
		"name":    "docs",
		"url":     "https://docs.test/start",
	})
	var tab Tab
	if err := json.Unmarshal([]byte(text), &tab); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tab.Name != "docs" || tab.Status != TabActive {
		t.Fatalf("tab_open = %+v, want active docs", tab)
	}
	if fake.url != "https://docs.test/start" {
		t.Fatalf("tab_open did not navigate: url %q", fake.url)
	}

	text = mcpCallTool(t, session, "tab_list", map[string]any{"profile": "prof"})
	var tabs struct {
		Tabs []Tab `json:"tabs"`
	}
	if err := json.Unmarshal([]byte(text), &tabs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(tabs.Tabs) != 2 || tabs.Tabs[0].Name != "main" || tabs.Tabs[1].Name != "docs" {
		t.Fatalf("tab_list = %+v", tabs.Tabs)
	}

	mcpCallTool(t, session, "tab_switch", map[string]any{"profile": "prof", "name": "main"})
	p, err := m.Profile("prof")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if active, _ := p.Tabs().ActiveName(); active != "main" {
		t.Fatalf("after tab_switch: active %q, want main", active)
	}

	mcpCallTool(t, session, "tab_close", map[string]any{"profile": "prof", "name": "docs"})
	if p.Tabs().Count() != 1 {
		t.Fatalf("after tab_close: %d tabs, want 1", p.Tabs().Count())
	}
}

func TestMCP_NavigateAndContent(t *testing.T) {
	fake := newFakeSession()
	fake.html = `<html><head><title>Guide</title></head><body><h1>Setup</h1><p>Step one.</p></body></html>`
	m := newTestManager(t, fake)
	if _, err := m.NewProfile(context.Background(), "prof", LaunchConfig{}); err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	session := mcpSession(t, m)

	mcpCallTool(t, session, "navigate", map[string]any{"profile": "prof", "url": "https://docs.test/guide"})
	if fake.url != "https://docs.test/guide" {
		t.Fatalf("navigate: engine url %q", fake.url)
	}

	text := mcpCallTool(t, session, "page_content", map[string]any{"profile": "prof"})
	var doc struct {
		Title    string `json:"title"`
		Markdown string `json:"markdown"`
		Text     string `json:"text"`
	}
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Title != "Guide" {
		t.Fatalf("page_content title %q, want Guide", doc.Title)
	}
	if !strings.Contains(doc.Text, "Step one.") {
		t.Fatalf("page_content text missing body: %q", doc.Text)
	}
}

func TestMCP_Screenshot(t *testing.T) {
	m := newTestManager(t, newFakeSession())
	if _, err := m.NewProfile(context.Background(), "prof", LaunchConfig{}); err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	session := mcpSession(t, m)

	text := mcpCallTool(t, session, "page_screenshot", map[string]any{"profile": "prof"})
	var shot struct {
		Format string `json:"format"`
		Data   string `json:"data_base64"`
	}
	if err := json.Unmarshal([]byte(text), &shot); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if shot.Format != "png" {
		t.Fatalf("format %q, want png", shot.Format)
	}
	raw, err := base64.StdEncoding.DecodeString(shot.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(raw) != "png-bytes" {
		t.Fatalf("decoded %q", raw)
	}
}

func TestMCP_ElementClickAndText(t *testing.T) {
	fake := newFakeSession()
	el := &fakeElement{text: "Submit", visible: true, enabled: true}
	fake.setElems(locate.CSS("#go"), el)
	m := newTestManager(t, fake)
	if _, err := m.NewProfile(context.Background(), "prof", LaunchConfig{}); err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	session := mcpSession(t, m)

	// Strategy defaults to css when omitted.
	text := mcpCallTool(t, session, "element_click", map[string]any{"profile": "prof", "value": "#go"})
	var clicked struct {
		Clicked string `json:"clicked"`
	}
	if err := json.Unmarshal([]byte(text), &clicked); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if clicked.Clicked != "css:#go" {
		t.Fatalf("clicked %q, want css:#go", clicked.Clicked)
	}
	if el.clicks != 1 {
		t.Fatalf("element clicked %d times, want 1", el.clicks)
	}

	text = mcpCallTool(t, session, "element_text", map[string]any{"profile": "prof", "strategy": "css", "value": "#go"})
	var got struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Text != "Submit" {
		t.Fatalf("text %q, want Submit", got.Text)
	}
}

func TestMCP_ElementTypeWithClear(t *testing.T) {
	fake := newFakeSession()
	el := &fakeElement{visible: true, enabled: true}
	fake.setElems(locate.CSS("#q"), el)
	m := newTestManager(t, fake)
	if _, err := m.NewProfile(context.Background(), "prof", LaunchConfig{}); err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	session := mcpSession(t, m)

	mcpCallTool(t, session, "element_type", map[string]any{
		"profile": "prof",
		"value":   "#q",
		"text":    "golang generics",
		"clear":   true,
	})
	if el.cleared != 1 {
		t.Fatalf("cleared %d times, want 1", el.cleared)
	}
	if len(el.inputs) != 1 || el.inputs[0] != "golang generics" {
		t.Fatalf("inputs %v", el.inputs)
	}
}

func TestMCP_UnknownProfileIsToolError(t *testing.T) {
	m := newTestManager(t)
	session := mcpSession(t, m)

	err := mcpCallToolErr(t, session, "navigate", map[string]any{"profile": "ghost", "url": "https://x.test"})
	if !strings.Contains(err.Error(), "unknown profile") {
		t.Fatalf("error %q, want unknown profile", err)
	}
}

func TestMCP_BadArgumentsIsToolError(t *testing.T) {
	m := newTestManager(t)
	session := mcpSession(t, m)

	err := mcpCallToolErr(t, session, "profile_close", map[string]any{"name": 42})
	if !strings.Contains(err.Error(), "invalid arguments") {
		t.Fatalf("error %q, want invalid arguments", err)
	}
}

func TestMCP_PDFValidationFailureIsToolError(t *testing.T) {
	fake := newFakeSession()
	fake.pdf = []byte("<html>not a pdf</html>")
	m := newTestManager(t, fake)
	if _, err := m.NewProfile(context.Background(), "prof", LaunchConfig{}); err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	session := mcpSession(t, m)

	err := mcpCallToolErr(t, session, "page_pdf", map[string]any{"profile": "prof"})
	if !strings.Contains(err.Error(), "pdf") {
		t.Fatalf("error %q, want a pdf validation failure", err)
	}
}
