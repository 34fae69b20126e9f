package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestLaunchConfigWithDefaults(t *testing.T) {
	cfg := LaunchConfig{}.WithDefaults()
	if cfg.Type != Chrome {
		t.Fatalf("type: got %q, want %q", cfg.Type, Chrome)
	}
	if cfg.WindowWidth != 1280 || cfg.WindowHeight != 800 {
		t.Fatalf("window: got %dx%d, want 1280x800", cfg.WindowWidth, cfg.WindowHeight)
	}
	if cfg.PageLoadTimeout != 30*time.Second {
		t.Fatalf("page load timeout: got %v", cfg.PageLoadTimeout)
	}
	if cfg.SettleDelay != 300*time.Millisecond {
		t.Fatalf("settle delay: got %v", cfg.SettleDelay)
	}
	if cfg.SeedTabName != "main" {
		t.Fatalf("seed tab name: got %q", cfg.SeedTabName)
	}
	if cfg.Logger == nil {
		t.Fatal("logger not defaulted")
	}

	cfg = LaunchConfig{Type: Firefox, SeedTabName: "start", SettleDelay: time.Second}.WithDefaults()
	if cfg.Type != Firefox || cfg.SeedTabName != "start" || cfg.SettleDelay != time.Second {
		t.Fatalf("explicit values overwritten: %+v", cfg)
	}
}

func TestIsConnectionErr(t *testing.T) {
	for _, msg := range []string{
		"websocket: close 1006 (abnormal closure)",
		"read tcp 127.0.0.1:9222: use of closed network connection",
		"write: broken pipe",
		"dial tcp 127.0.0.1:9222: connection refused",
	} {
		if !isConnectionErr(errors.New(msg)) {
			t.Fatalf("%q not classified as connection loss", msg)
		}
	}

	// Caller cancellation is not a dead connection.
	if isConnectionErr(context.Canceled) {
		t.Fatal("context.Canceled classified as connection loss")
	}
	if isConnectionErr(fmt.Errorf("navigate: %w", context.DeadlineExceeded)) {
		t.Fatal("deadline classified as connection loss")
	}
	if isConnectionErr(errors.New("No target with given id found")) {
		t.Fatal("target miss classified as connection loss")
	}
}

func TestIsTargetGone(t *testing.T) {
	for _, msg := range []string{
		"{-32602 No target with given id found }",
		"Target closed",
		"Session with given id not found",
	} {
		if !isTargetGone(errors.New(msg)) {
			t.Fatalf("%q not classified as gone target", msg)
		}
	}
	if isTargetGone(errors.New("element not visible")) {
		t.Fatal("interaction refusal classified as gone target")
	}
}

func TestIsRejected(t *testing.T) {
	for _, msg := range []string{
		"element not visible",
		"Node is detached from document",
		"Could not find node with given id",
		"element covered by <div>",
	} {
		if !isRejected(errors.New(msg)) {
			t.Fatalf("%q not classified as rejection", msg)
		}
	}
}

func TestLaunchError(t *testing.T) {
	base := errors.New("exec: not found")
	err := &LaunchError{Kind: Firefox, Reason: "start process", Err: base}
	if !errors.Is(err, base) {
		t.Fatal("LaunchError does not unwrap its cause")
	}
	want := "browser: launch firefox: start process: exec: not found"
	if err.Error() != want {
		t.Fatalf("message: got %q, want %q", err.Error(), want)
	}

	bare := &LaunchError{Kind: Remote, Reason: "remote_url is required"}
	if bare.Error() != "browser: launch remote: remote_url is required" {
		t.Fatalf("bare message: got %q", bare.Error())
	}
}

func TestDialRejectsBadConfig(t *testing.T) {
	var le *LaunchError

	_, err := Dial(context.Background(), LaunchConfig{Type: Remote})
	if !errors.As(err, &le) || le.Kind != Remote {
		t.Fatalf("remote without url: got %v", err)
	}

	_, err = Dial(context.Background(), LaunchConfig{Type: "safari"})
	if !errors.As(err, &le) || le.Kind != "safari" {
		t.Fatalf("unsupported type: got %v", err)
	}
}
