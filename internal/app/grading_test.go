package app_test

import (
	"encoding/json"
	"testing"

	"github.com/maluguiro/examen-proctor/internal/app"
	"github.com/maluguiro/examen-proctor/internal/domain"
)

func TestScoreAnswerByKind(t *testing.T) {
	cases := []struct {
		name     string
		question domain.Question
		given    string
		want     float64
	}{
		{"mc correct", domain.Question{Kind: domain.KindMultipleChoice, ExpectedAnswer: json.RawMessage(`1`), Points: 4}, `1`, 4},
		{"mc wrong", domain.Question{Kind: domain.KindMultipleChoice, ExpectedAnswer: json.RawMessage(`1`), Points: 4}, `0`, 0},
		{"mc numeric string", domain.Question{Kind: domain.KindMultipleChoice, ExpectedAnswer: json.RawMessage(`"2"`), Points: 3}, `2`, 3},
		{"tf bool vs string", domain.Question{Kind: domain.KindTrueFalse, ExpectedAnswer: json.RawMessage(`true`)}, `"True"`, 1},
		{"tf mismatch", domain.Question{Kind: domain.KindTrueFalse, ExpectedAnswer: json.RawMessage(`"false"`)}, `true`, 0},
		{"short text trimmed", domain.Question{Kind: domain.KindShortText, ExpectedAnswer: json.RawMessage(`"Paris"`), Points: 2}, `"  paris "`, 2},
		{"short text no fuzz", domain.Question{Kind: domain.KindShortText, ExpectedAnswer: json.RawMessage(`"Paris"`), Points: 2}, `"Pariss"`, 0},
		{"blanks partial", domain.Question{Kind: domain.KindFillInBlank, ExpectedAnswer: json.RawMessage(`["gato","perro"]`), Points: 10}, `["gato","loro"]`, 5},
		{"blanks short answer", domain.Question{Kind: domain.KindFillInBlank, ExpectedAnswer: json.RawMessage(`["a","b","c","d"]`), Points: 8}, `["A"]`, 2},
		{"blanks empty expected", domain.Question{Kind: domain.KindFillInBlank, ExpectedAnswer: json.RawMessage(`[]`), Points: 10}, `[]`, 0},
		{"unknown kind", domain.Question{Kind: "essay", ExpectedAnswer: json.RawMessage(`"x"`)}, `"x"`, 0},
		{"null answer", domain.Question{Kind: domain.KindMultipleChoice, ExpectedAnswer: json.RawMessage(`0`)}, `null`, 0},
		{"malformed answer", domain.Question{Kind: domain.KindFillInBlank, ExpectedAnswer: json.RawMessage(`["a"]`)}, `{"a":1}`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := app.ScoreAnswer(tc.question, json.RawMessage(tc.given)); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestFillInBlankIsMonotonic(t *testing.T) {
	q := domain.Question{Kind: domain.KindFillInBlank, ExpectedAnswer: json.RawMessage(`["uno","dos","tres","cuatro"]`), Points: 7}
	answers := []string{
		`["x","x","x","x"]`,
		`["uno","x","x","x"]`,
		`["uno","dos","x","x"]`,
		`["uno","dos","tres","x"]`,
		`["uno","dos","tres","cuatro"]`,
	}
	prev := -1.0
	for _, a := range answers {
		score := app.ScoreAnswer(q, json.RawMessage(a))
		if score < prev {
			t.Fatalf("score decreased from %v to %v at %s", prev, score, a)
		}
		prev = score
	}
	if prev != 7 {
		t.Fatalf("expected full points for all blanks, got %v", prev)
	}
}
