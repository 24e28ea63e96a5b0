package logger

import "testing"

func TestMaskPhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"123", "***"},
		{"5491122334455", "*********4455"},
	}
	for _, tt := range tests {
		if got := MaskPhone(tt.in); got != tt.want {
			t.Errorf("MaskPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	l, err := New("nonsense")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if l.Core().Enabled(-1) {
		t.Error("debug level should be disabled when level is unparseable")
	}
}
