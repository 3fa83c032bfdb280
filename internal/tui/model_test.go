package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"finrag/internal/chunker"
	"finrag/internal/domain"
	"finrag/internal/service"
)

type fakeRAG struct {
	err   error
	calls []string
}

func (f *fakeRAG) Answer(_ context.Context, query string) (service.Answer, error) {
	f.calls = append(f.calls, query)
	if f.err != nil {
		return service.Answer{}, f.err
	}
	return service.Answer{
		Query:  query,
		Answer: "Revenue was 5m.",
		Hits: []domain.Hit{
			{ID: "0_1_c0", Text: "Revenue was 5m. Costs fell."},
			{ID: "0_2_c0", Text: "Staff grew."},
		},
	}, nil
}

type failingSegmenter struct{}

func (failingSegmenter) Segment(string) ([]string, error) {
	return nil, domain.ErrSegmentation
}

func punkt(t *testing.T) domain.Segmenter {
	t.Helper()
	seg, err := chunker.NewPunktSegmenter()
	if err != nil {
		t.Fatalf("NewPunktSegmenter: %v", err)
	}
	return seg
}

func typeQuery(t *testing.T, m tea.Model, q string) tea.Model {
	t.Helper()
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(q)})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return m
}

func TestUpdate_AnswerAndCycle(t *testing.T) {
	rag := &fakeRAG{}
	var m tea.Model = New(rag, punkt(t), "finance_docs")
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	m = typeQuery(t, m, "revenue")

	if len(rag.calls) != 1 || rag.calls[0] != "revenue" {
		t.Fatalf("service calls = %v", rag.calls)
	}
	got := m.(Model)
	if got.cursor != 0 || !strings.Contains(got.render(), "Chunk 1/2") {
		t.Fatalf("unexpected render %q", got.render())
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if c := m.(Model).cursor; c != 1 {
		t.Fatalf("cursor after down = %d", c)
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if c := m.(Model).cursor; c != 1 {
		t.Fatalf("cursor should wrap, got %d", c)
	}
	if !strings.Contains(m.View(), "FinRAG") {
		t.Fatal("header missing from view")
	}
}

func TestUpdate_Error(t *testing.T) {
	var m tea.Model = New(&fakeRAG{err: errors.New("store offline")}, punkt(t), "")
	m = typeQuery(t, m, "q")
	if s := m.(Model).status; !strings.Contains(s, "store offline") {
		t.Fatalf("status = %q", s)
	}
}

func TestUpdate_EmptyQueryIgnored(t *testing.T) {
	rag := &fakeRAG{}
	var m tea.Model = New(rag, punkt(t), "")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if len(rag.calls) != 0 {
		t.Fatalf("empty query should not reach the service")
	}
}

func TestHighlightBestSentence(t *testing.T) {
	seg := punkt(t)
	cases := []struct {
		name  string
		seg   domain.Segmenter
		text  string
		query string
		want  []string
	}{
		{"picks matching sentence", seg, "Costs fell. Revenue was 5m.", "revenue", []string{"Costs fell. ", "Revenue was 5m."}},
		{"decimal stays in one sentence", seg, "Revenue was 4.2 million. Costs fell", "revenue", []string{"Revenue was 4.2 million.", "Costs fell"}},
		{"unterminated tail kept", seg, "Revenue was 4.2 million. Costs fell", "costs", []string{"4.2 million", "Costs fell"}},
		{"segmenter failure shows whole text", failingSegmenter{}, " Costs fell. Revenue rose ", "revenue", []string{"Costs fell. Revenue rose"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := highlightBestSentence(tc.seg, tc.text, tc.query)
			for _, w := range tc.want {
				if !strings.Contains(out, w) {
					t.Fatalf("output %q missing %q", out, w)
				}
			}
		})
	}
}
