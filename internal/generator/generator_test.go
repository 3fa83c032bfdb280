package generator

import (
	"strings"
	"testing"
)

func TestBuildPrompt(t *testing.T) {
	p, err := BuildPrompt("Revenue was $5m.\nCosts were $3m.", "What was revenue?")
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	want := "You are a helpful assistant.\nContext:\nRevenue was $5m.\nCosts were $3m.\n\nQuestion:\nWhat was revenue?\n\nAnswer:"
	if p != want {
		t.Fatalf("prompt mismatch:\n got %q\nwant %q", p, want)
	}
}

func TestBuildPrompt_LiteralBraces(t *testing.T) {
	p, err := BuildPrompt("{{.query}} is not expanded", "q")
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	if !strings.Contains(p, "{{.query}} is not expanded") {
		t.Fatalf("context was interpreted: %q", p)
	}
}

func TestExtractAnswer(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"echoed prompt", "You are a helpful assistant.\nQuestion:\nq\n\nAnswer: $5m  ", "$5m"},
		{"first marker wins", "Answer: yes. Answer: no", "yes. Answer: no"},
		{"no marker", "  plain completion\n", "plain completion"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractAnswer(tt.in); got != tt.want {
				t.Fatalf("ExtractAnswer(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
