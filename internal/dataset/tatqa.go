// Package dataset reads TAT-QA style JSON files and flattens them into
// paragraphs and questions.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"finrag/internal/domain"
)

// AnswerFromText marks questions answerable from paragraph text alone.
const AnswerFromText = "text"

// Item is one document of the dataset: a set of paragraphs and the
// questions asked about them.
type Item struct {
	Table      json.RawMessage `json:"table,omitempty"`
	Paragraphs []RawParagraph  `json:"paragraphs"`
	Questions  []Question      `json:"questions"`
}

// RawParagraph is a paragraph as stored in the file. Order is unique within
// its item.
type RawParagraph struct {
	UID   string `json:"uid"`
	Order int    `json:"order"`
	Text  string `json:"text"`
}

// Question is a dataset question. After Flatten, RelParagraphs holds global
// paragraph ids.
type Question struct {
	UID           string          `json:"uid"`
	Order         int             `json:"order"`
	Question      string          `json:"question"`
	Answer        json.RawMessage `json:"answer"`
	AnswerType    string          `json:"answer_type"`
	AnswerFrom    string          `json:"answer_from"`
	RelParagraphs IDList          `json:"rel_paragraphs"`
	Scale         string          `json:"scale"`
}

// AnswerText renders the reference answer as plain text. Lists are joined
// with spaces.
func (q Question) AnswerText() string {
	raw := bytes.TrimSpace(q.Answer)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, el := range list {
			if text := (Question{Answer: el}).AnswerText(); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, " ")
	}
	return string(raw)
}

// IDList accepts a JSON array of strings or numbers.
type IDList []string

func (l *IDList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(IDList, 0, len(raw))
	for _, el := range raw {
		var s string
		if err := json.Unmarshal(el, &s); err == nil {
			out = append(out, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(el, &n); err != nil {
			return fmt.Errorf("paragraph reference %s: %w", el, err)
		}
		out = append(out, n.String())
	}
	*l = out
	return nil
}

// LoadFile parses a dataset file.
func LoadFile(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return items, nil
}

// FilterTextQuestions returns a copy of items keeping only questions whose
// answer comes from text. Paragraphs are kept untouched.
func FilterTextQuestions(items []Item) []Item {
	out := make([]Item, len(items))
	for i, item := range items {
		kept := make([]Question, 0, len(item.Questions))
		for _, q := range item.Questions {
			if q.AnswerFrom == AnswerFromText {
				kept = append(kept, q)
			}
		}
		item.Questions = kept
		out[i] = item
	}
	return out
}

// ParagraphID builds the global id of the paragraph with the given order in
// the item at itemIdx.
func ParagraphID(itemIdx int, order string) string {
	return strconv.Itoa(itemIdx) + "_" + order
}

// Flatten assigns every paragraph the id "{itemIdx}_{order}" and rewrites
// each question's rel_paragraphs to the same form.
func Flatten(items []Item) ([]domain.Paragraph, []Question) {
	var paragraphs []domain.Paragraph
	var questions []Question
	for idx, item := range items {
		for _, p := range item.Paragraphs {
			paragraphs = append(paragraphs, domain.Paragraph{
				ID:   ParagraphID(idx, strconv.Itoa(p.Order)),
				Text: p.Text,
			})
		}
		for _, q := range item.Questions {
			rel := make(IDList, len(q.RelParagraphs))
			for i, pid := range q.RelParagraphs {
				rel[i] = ParagraphID(idx, pid)
			}
			q.RelParagraphs = rel
			questions = append(questions, q)
		}
	}
	return paragraphs, questions
}
