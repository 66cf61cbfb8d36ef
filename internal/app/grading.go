package app

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

// scorer returns the points earned by given against a question's expected answer.
type scorer func(points float64, expected, given json.RawMessage) float64

var scorers = map[domain.QuestionKind]scorer{
	domain.KindMultipleChoice: scoreMultipleChoice,
	domain.KindTrueFalse:      scoreTrueFalse,
	domain.KindShortText:      scoreShortText,
	domain.KindFillInBlank:    scoreFillInBlank,
}

// ScoreAnswer auto-grades one response. Unknown kinds and malformed payloads score 0.
func ScoreAnswer(q domain.Question, given json.RawMessage) float64 {
	score, ok := scorers[q.Kind]
	if !ok || isEmptyPayload(given) {
		return 0
	}
	return score(float64(q.PointValue()), q.ExpectedAnswer, given)
}

func scoreMultipleChoice(points float64, expected, given json.RawMessage) float64 {
	want, ok := decodeIndex(expected)
	if !ok {
		return 0
	}
	got, ok := decodeIndex(given)
	if !ok || got != want {
		return 0
	}
	return points
}

func scoreTrueFalse(points float64, expected, given json.RawMessage) float64 {
	want, ok := decodeBoolText(expected)
	if !ok {
		return 0
	}
	got, ok := decodeBoolText(given)
	if !ok || got != want {
		return 0
	}
	return points
}

func scoreShortText(points float64, expected, given json.RawMessage) float64 {
	var want, got string
	if json.Unmarshal(expected, &want) != nil || json.Unmarshal(given, &got) != nil {
		return 0
	}
	if !strings.EqualFold(strings.TrimSpace(want), strings.TrimSpace(got)) {
		return 0
	}
	return points
}

// scoreFillInBlank awards points proportionally to the blanks matched index by index.
func scoreFillInBlank(points float64, expected, given json.RawMessage) float64 {
	var want, got []string
	if json.Unmarshal(expected, &want) != nil || len(want) == 0 {
		return 0
	}
	if json.Unmarshal(given, &got) != nil {
		return 0
	}
	matches := 0
	for i, w := range want {
		if i >= len(got) {
			break
		}
		if strings.EqualFold(strings.TrimSpace(w), strings.TrimSpace(got[i])) {
			matches++
		}
	}
	return points * float64(matches) / float64(len(want))
}

// decodeIndex accepts a JSON number or a numeric string.
func decodeIndex(raw json.RawMessage) (float64, bool) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// decodeBoolText accepts a JSON boolean or a string and returns its lower-cased text.
func decodeBoolText(raw json.RawMessage) (string, bool) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	return s, s != ""
}

func isEmptyPayload(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
