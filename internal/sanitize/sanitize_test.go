package sanitize

import "testing"

func TestPlainText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "Alice", "Alice"},
		{"trims", "  Bob  ", "Bob"},
		{"strips tags", "<b>Carol</b>", "Carol"},
		{"drops script", "Dave<script>alert(1)</script>", "Dave"},
		{"keeps ampersand", "Tom & Jerry", "Tom & Jerry"},
		{"escaped markup stays escaped", "&lt;b&gt;", "&lt;b&gt;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.input); got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
