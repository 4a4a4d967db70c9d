package context

import (
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantMin int
		wantMax int
	}{
		{name: "empty", text: "", wantMin: 0, wantMax: 0},
		{name: "single char", text: "a", wantMin: 1, wantMax: 1},
		{name: "short text", text: "Hello, world!", wantMin: 1, wantMax: 10},
		{name: "longer text", text: "This is a longer piece of text that should have more tokens.", wantMin: 10, wantMax: 30},
		{name: "unicode text", text: "你好世界", wantMin: 1, wantMax: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateTokens(tt.text)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("EstimateTokens(%q) = %d, want between %d and %d", tt.text, got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestWindowBasic(t *testing.T) {
	w := NewWindow(100000, "test")

	info := w.Info()
	if info.TotalTokens != 100000 {
		t.Errorf("TotalTokens = %d, want 100000", info.TotalTokens)
	}
	if info.UsedTokens != 0 {
		t.Errorf("UsedTokens = %d, want 0", info.UsedTokens)
	}
	if info.RemainingTokens != 100000 {
		t.Errorf("RemainingTokens = %d, want 100000", info.RemainingTokens)
	}

	w.Add(50000)
	info = w.Info()
	if info.UsedTokens != 50000 {
		t.Errorf("UsedTokens = %d, want 50000", info.UsedTokens)
	}
	if info.RemainingTokens != 50000 {
		t.Errorf("RemainingTokens = %d, want 50000", info.RemainingTokens)
	}

	w.Reset()
	info = w.Info()
	if info.UsedTokens != 0 {
		t.Errorf("after reset UsedTokens = %d, want 0", info.UsedTokens)
	}
}

func TestWindowDefaultsWhenSizeUnset(t *testing.T) {
	w := NewWindow(0, "model")
	info := w.Info()
	if info.TotalTokens != DefaultContextWindow {
		t.Errorf("TotalTokens = %d, want %d", info.TotalTokens, DefaultContextWindow)
	}
	if info.Source != "default" {
		t.Errorf("Source = %q, want %q", info.Source, "default")
	}
}

func TestWindowAddText(t *testing.T) {
	w := NewWindow(100000, "test")

	text := "Hello, this is some sample text."
	tokens := w.AddText(text)
	if tokens <= 0 {
		t.Error("AddText should return positive tokens")
	}

	info := w.Info()
	if info.UsedTokens != tokens {
		t.Errorf("UsedTokens = %d, want %d", info.UsedTokens, tokens)
	}
}

func TestWindowCanFit(t *testing.T) {
	w := NewWindow(1000, "test")
	w.Add(900)

	if !w.CanFit(50) {
		t.Error("should fit 50 tokens with 100 remaining")
	}
	if !w.CanFit(100) {
		t.Error("should fit 100 tokens with 100 remaining")
	}
	if w.CanFit(101) {
		t.Error("should not fit 101 tokens with 100 remaining")
	}
}

func TestWindowWarnings(t *testing.T) {
	w := NewWindow(50000, "test")

	info := w.Info()
	if info.ShouldWarn() {
		t.Error("should not warn with full context")
	}
	if info.ShouldBlock() {
		t.Error("should not block with full context")
	}
	if info.Status() != "ok" {
		t.Errorf("status = %s, want ok", info.Status())
	}

	w.Add(30000)
	info = w.Info()
	if !info.ShouldWarn() {
		t.Error("should warn with 20000 remaining")
	}
	if info.ShouldBlock() {
		t.Error("should not block with 20000 remaining")
	}
	if info.Status() != "warning" {
		t.Errorf("status = %s, want warning", info.Status())
	}

	w.Add(18000)
	info = w.Info()
	if !info.ShouldWarn() {
		t.Error("should warn with 2000 remaining")
	}
	if !info.ShouldBlock() {
		t.Error("should block with 2000 remaining")
	}
	if info.Status() != "critical" {
		t.Errorf("status = %s, want critical", info.Status())
	}
}

func TestWindowInfoString(t *testing.T) {
	info := &WindowInfo{
		TotalTokens:     100000,
		UsedTokens:      50000,
		RemainingTokens: 50000,
		UsedPercent:     50.0,
		Source:          "model",
	}

	str := info.String()
	if !strings.Contains(str, "50000") {
		t.Error("string should contain used tokens")
	}
	if !strings.Contains(str, "100000") {
		t.Error("string should contain total tokens")
	}
	if !strings.Contains(str, "ok") {
		t.Error("string should contain status")
	}
}
