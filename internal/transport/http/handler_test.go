package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/maluguiro/examen-proctor/internal/app"
	"github.com/maluguiro/examen-proctor/internal/domain"
	"github.com/maluguiro/examen-proctor/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	exams := memory.NewExamRepository(memory.NewStaticExamLoader(sampleExams()), time.Minute)
	service := app.NewAttemptService(exams, exams, memory.NewAttemptStore(),
		app.WithFeeds(memory.NewFeedStore()),
		app.WithEventLog(memory.NewEventLog(100, time.Hour)),
		app.WithMaxAnswerBytes(64),
	)
	server := httptest.NewServer(NewRouter(service, nil, nil))
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url, actorID string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if actorID != "" {
		req.Header.Set(ActorHeader, actorID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestAttemptFlowOverHTTP(t *testing.T) {
	server := newTestServer(t)

	resp, attempt := doJSON(t, http.MethodPost, server.URL+"/exams/exam-1/attempts", "", map[string]string{"name": "Ana", "email": "ana@example.com"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%v)", resp.StatusCode, attempt)
	}
	id, _ := attempt["id"].(string)
	if id == "" {
		t.Fatalf("expected attempt id, got %v", attempt)
	}
	base := server.URL + "/attempts/" + id

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/exams/exam-1/attempts", "", map[string]string{"email": "ANA@example.com"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", resp.StatusCode)
	}

	resp, penalty := doJSON(t, http.MethodPost, base+"/penalties", "", map[string]string{"type": "Tab Hidden"})
	if resp.StatusCode != http.StatusOK || penalty["tag"] != "visibility_hidden" || penalty["livesUsed"] != float64(1) {
		t.Fatalf("unexpected penalty response %d %v", resp.StatusCode, penalty)
	}

	resp, _ = doJSON(t, http.MethodPut, base+"/answers/q1", "", map[string]any{"value": 1})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected draft saved, got %d", resp.StatusCode)
	}
	resp, body := doJSON(t, http.MethodPut, base+"/answers/q1", "", map[string]any{"value": strings.Repeat("x", 100)})
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d (%v)", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, base+"/submit", "", map[string]any{"answers": []any{}})
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "validation" {
		t.Fatalf("expected 400 for empty answers, got %d (%v)", resp.StatusCode, body)
	}

	resp, submitted := doJSON(t, http.MethodPost, base+"/submit", "", map[string]any{
		"answers": []map[string]any{{"questionId": "q1", "value": 1}},
	})
	if resp.StatusCode != http.StatusOK || submitted["status"] != "submitted" || submitted["score"] != float64(4) {
		t.Fatalf("unexpected submit response %d %v", resp.StatusCode, submitted)
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/submit", "", map[string]any{
		"answers": []map[string]any{{"questionId": "q1", "value": 1}},
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on second submit, got %d", resp.StatusCode)
	}

	resp, summary := doJSON(t, http.MethodGet, base, "", nil)
	if resp.StatusCode != http.StatusOK || summary["answered"] != float64(1) {
		t.Fatalf("unexpected summary %d %v", resp.StatusCode, summary)
	}
}

func TestTeacherEndpointsRequireManager(t *testing.T) {
	server := newTestServer(t)
	_, attempt := doJSON(t, http.MethodPost, server.URL+"/exams/exam-1/attempts", "", map[string]string{"name": "Beto"})
	base := server.URL + "/attempts/" + attempt["id"].(string)

	resp, body := doJSON(t, http.MethodPost, base+"/extra-time", "student-1", map[string]int{"seconds": 60})
	if resp.StatusCode != http.StatusForbidden || body["code"] != "forbidden" {
		t.Fatalf("expected 403, got %d (%v)", resp.StatusCode, body)
	}
	resp, body = doJSON(t, http.MethodPost, base+"/extra-time", "teacher-1", map[string]int{"seconds": 60})
	if resp.StatusCode != http.StatusOK || body["extraTimeSecs"] != float64(60) {
		t.Fatalf("expected extra time granted, got %d (%v)", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/exams/exam-1/attempts", "", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without actor, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/exams/exam-1/events?since=2000-01-01T00:00:00Z", nil)
	req.Header.Set(ActorHeader, "teacher-1")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer res.Body.Close()
	var events []domain.AttemptEvent
	if err := json.NewDecoder(res.Body).Decode(&events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 2 || events[0].Type != domain.EventStarted || events[1].Type != domain.EventExtraTime {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestUnknownResourcesReturn404(t *testing.T) {
	server := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/exams/nope/attempts", "", map[string]string{"name": "Ana"})
	if resp.StatusCode != http.StatusNotFound || body["code"] != "not_found" {
		t.Fatalf("expected 404 for unknown exam, got %d (%v)", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, http.MethodGet, server.URL+"/attempts/nope", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown attempt, got %d", resp.StatusCode)
	}
}

func TestMalformedBodyIsRejected(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Post(server.URL+"/exams/exam-1/attempts", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp2, body := doJSON(t, http.MethodPost, server.URL+"/exams/exam-1/attempts", "", map[string]string{"email": "not-an-email"})
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid email, got %d (%v)", resp2.StatusCode, body)
	}
}

func sampleExams() map[string]domain.Exam {
	return map[string]domain.Exam{
		"exam-1": {
			ID:           "exam-1",
			OwnerID:      "teacher-1",
			LivesAllowed: 3,
			GradingMode:  domain.GradingAuto,
			Questions: []domain.Question{
				{ID: "q1", Kind: domain.KindMultipleChoice, Prompt: "2 + 2?", Choices: []string{"3", "4"}, ExpectedAnswer: json.RawMessage(`1`), Points: 4, Position: 1},
				{ID: "q2", Kind: domain.KindShortText, Prompt: "Capital of Peru?", ExpectedAnswer: json.RawMessage(`"Lima"`), Position: 2},
			},
		},
	}
}

func TestStatusForBackendFailure(t *testing.T) {
	err := fmt.Errorf("start attempt: %w: %w", domain.ErrUnavailable, errors.New("dial tcp: connection refused"))
	if got := statusFor(err, domain.KindOf(err)); got != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", got)
	}
	if got := statusFor(errors.New("boom"), domain.KindOf(errors.New("boom"))); got != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unclassified errors, got %d", got)
	}
}
