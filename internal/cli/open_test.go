package cli

import "testing"

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com", "https://example.com"},
		{"example.com/path?q=1", "https://example.com/path?q=1"},
		{"localhost:3000", "http://localhost:3000"},
		{"127.0.0.1:8080/admin", "http://127.0.0.1:8080/admin"},
		{"0.0.0.0:9000", "http://0.0.0.0:9000"},
		{"https://example.com", "https://example.com"},
		{"http://example.com", "http://example.com"},
		{"file:///tmp/page.html", "file:///tmp/page.html"},
		{"LOCALHOST:3000", "http://LOCALHOST:3000"},
	}

	for _, tt := range tests {
		if got := normalizeURL(tt.in); got != tt.want {
			t.Errorf("normalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
