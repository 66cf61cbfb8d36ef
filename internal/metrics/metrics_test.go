package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

func TestMetricsExposeLifecycleCounters(t *testing.T) {
	m := New()
	m.AttemptStarted("exam-1")
	m.PenaltyRecorded("blur", true)
	m.AttemptFinalized(domain.EndLivesExhausted)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/attempts/{attemptID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/attempts/a-1")
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		`proctor_attempts_started_total{exam_id="exam-1"} 1`,
		`proctor_penalty_events_total{penalized="true",tag="blur"} 1`,
		`proctor_attempts_finalized_total{reason="lives_exhausted"} 1`,
		`http_requests_total{method="GET",route="/attempts/{attemptID}",status="404"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, text)
		}
	}
}
