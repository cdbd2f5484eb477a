package cli

import (
	"strings"
	"testing"
)

func TestTryExpandCommand(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"ca", "call"},
		{"ta", "targets"},
		{"ru", "run"},
		{"eva", "eval"},
		{"eve", "events"},
		{"v", "version"},
		{"c", ""},   // ambiguous: call, close, connect
		{"p", ""},   // ambiguous: pending, proxy
		{"run", ""}, // exact match needs no expansion
		{"zzz", ""}, // no match
	}

	for _, tt := range tests {
		if got := tryExpandCommand(tt.prefix); got != tt.want {
			t.Errorf("tryExpandCommand(%q) = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestExecuteArgs_Empty(t *testing.T) {
	recognized, err := ExecuteArgs(nil)
	if recognized {
		t.Error("expected empty args to be unrecognized")
	}
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExecuteArgs_UnknownCommand(t *testing.T) {
	recognized, err := ExecuteArgs([]string{"definitely-not-a-command"})
	if recognized {
		t.Error("expected unknown command to be unrecognized")
	}
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExecuteArgs_ResetsGlobalFlags(t *testing.T) {
	// pending is safe to execute without a session or network.
	out := captureStdout(t, func() {
		recognized, err := ExecuteArgs([]string{"pending", "--json"})
		if !recognized {
			t.Error("expected pending to be recognized")
		}
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	if !strings.Contains(out, "pending") {
		t.Errorf("expected JSON output while flag was set, got %q", out)
	}
	if JSONOutput {
		t.Error("expected JSONOutput to be reset after execution")
	}
	if Debug || NoColor {
		t.Error("expected bool globals to stay at defaults")
	}
	if Endpoint != "" || ConfigPath != "" || Timeout != 0 {
		t.Error("expected string and duration globals to be reset")
	}
}

func TestDebugf(t *testing.T) {
	old := Debug
	Debug = true
	t.Cleanup(func() { Debug = old })

	out := captureStderr(t, func() {
		debugf("value %d", 42)
	})

	if !strings.Contains(out, "[DEBUG] value 42") {
		t.Errorf("expected debug line, got %q", out)
	}
}

func TestDebugf_SilentByDefault(t *testing.T) {
	out := captureStderr(t, func() {
		debugf("hidden")
	})

	if out != "" {
		t.Errorf("expected no output with debug off, got %q", out)
	}
}
