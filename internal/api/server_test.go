package api

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"Scorekeeper/internal/validator"
)

// stubStatus serves fixed validator state.
type stubStatus struct {
	running bool
	status  validator.Status
	scores  []float64
	history *validator.History
}

func (s *stubStatus) IsRunning() bool             { return s.running }
func (s *stubStatus) Status() validator.Status    { return s.status }
func (s *stubStatus) Scores() []float64           { return s.scores }
func (s *stubStatus) History() *validator.History { return s.history }

func serve(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	var body map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
	}

	return w, body
}

func TestHealthEndpoint(t *testing.T) {
	st := &stubStatus{running: true}
	srv := New(":0", st, nil)

	w, body := serve(t, srv, "/health")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}

	st.running = false

	w, _ = serve(t, srv, "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 when stopped, got %d", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	st := &stubStatus{status: validator.Status{
		State:        validator.Running,
		Step:         7,
		Block:        420,
		Size:         3,
		LastDispatch: 400,
		LastError:    "evaluate: timeout",
	}}

	w, body := serve(t, New(":0", st, nil), "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	if body["state"] != validator.Running.String() {
		t.Errorf("state = %v", body["state"])
	}

	if body["step"] != float64(7) || body["block"] != float64(420) {
		t.Errorf("step/block = %v/%v", body["step"], body["block"])
	}

	if body["lastError"] != "evaluate: timeout" {
		t.Errorf("lastError = %v", body["lastError"])
	}
}

func TestStatusWithoutProvider(t *testing.T) {
	w, body := serve(t, New(":0", nil, nil), "/status")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	if body["error"] == nil {
		t.Error("expected error message")
	}
}

func TestScoresEndpoint(t *testing.T) {
	h := validator.NewHistory(2, 4)
	h.Record([]float64{0.5, 1}, []int{1, 1})

	st := &stubStatus{scores: []float64{0.1, 0.2}, history: h}
	srv := New(":0", st, nil)

	w, body := serve(t, srv, "/scores")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	scores, _ := body["scores"].([]any)
	if len(scores) != 2 || scores[1] != 0.2 {
		t.Errorf("scores = %v", body["scores"])
	}

	w, body = serve(t, srv, "/scores/1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	if body["score"] != 0.2 {
		t.Errorf("score = %v", body["score"])
	}

	recent, _ := body["recent"].([]any)
	if len(recent) != 2 || recent[0] != 0.5 || recent[1] != float64(1) {
		t.Errorf("recent = %v", body["recent"])
	}
}

func TestScoreRejectsBadUID(t *testing.T) {
	srv := New(":0", &stubStatus{scores: []float64{0}}, nil)

	for _, path := range []string{"/scores/abc", "/scores/1", "/scores/-1"} {
		w, _ := serve(t, srv, path)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", path, w.Code)
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "scorekeeper_loop_step 3\n")
	})

	w, _ := serve(t, New(":0", &stubStatus{}, metrics), "/metrics")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "scorekeeper_loop_step") {
		t.Errorf("metrics: code %d body %q", w.Code, w.Body.String())
	}

	w, _ = serve(t, New(":0", &stubStatus{}, nil), "/metrics")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without metrics handler, got %d", w.Code)
	}
}

func TestStartStop(t *testing.T) {
	srv := New("127.0.0.1:0", &stubStatus{running: true}, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestFiniteReplacesNonFinite(t *testing.T) {
	got := finite([]float64{1, math.NaN(), math.Inf(-1)})
	if got[0] != 1 || got[1] != 0 || got[2] != 0 {
		t.Errorf("finite = %v", got)
	}
}
