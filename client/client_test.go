package client

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Scorekeeper/internal/api"
	"Scorekeeper/internal/validator"
)

type fakeValidator struct {
	running bool
	step    uint64
	scores  []float64
	history *validator.History
}

func (f *fakeValidator) IsRunning() bool { return f.running }
func (f *fakeValidator) Status() validator.Status {
	return validator.Status{State: validator.Running, Step: f.step, Size: len(f.scores)}
}
func (f *fakeValidator) Scores() []float64           { return f.scores }
func (f *fakeValidator) History() *validator.History { return f.history }

func newTestClient(t *testing.T, v *fakeValidator) *Client {
	t.Helper()

	srv := httptest.NewServer(api.New("", v, nil).Handler())
	t.Cleanup(srv.Close)

	return NewClient(strings.TrimPrefix(srv.URL, "http://"))
}

func TestHealthy(t *testing.T) {
	v := &fakeValidator{running: true}
	c := newTestClient(t, v)

	ok, err := c.Healthy()
	if err != nil || !ok {
		t.Fatalf("healthy = %v, %v", ok, err)
	}

	v.running = false

	ok, err = c.Healthy()
	if err != nil || ok {
		t.Fatalf("stopped validator: healthy = %v, %v", ok, err)
	}
}

func TestStatusAndScores(t *testing.T) {
	h := validator.NewHistory(2, 3)
	h.Record([]float64{0.9}, []int{0})

	c := newTestClient(t, &fakeValidator{step: 12, scores: []float64{0.3, 0}, history: h})

	st, err := c.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	if st.State != "running" || st.Step != 12 || st.Size != 2 {
		t.Errorf("status = %+v", st)
	}

	scores, err := c.Scores()
	if err != nil {
		t.Fatalf("scores: %v", err)
	}

	if len(scores) != 2 || scores[0] != 0.3 {
		t.Errorf("scores = %v", scores)
	}

	info, err := c.Score(0)
	if err != nil {
		t.Fatalf("score: %v", err)
	}

	if info.Score != 0.3 || len(info.Recent) != 1 || info.Recent[0] != 0.9 {
		t.Errorf("score info = %+v", info)
	}
}

func TestScoreOutOfRange(t *testing.T) {
	c := newTestClient(t, &fakeValidator{scores: []float64{1}})

	_, err := c.Score(3)
	if err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Errorf("expected out of range error, got %v", err)
	}
}

func TestWaitForStepTimeout(t *testing.T) {
	c := newTestClient(t, &fakeValidator{step: 1})

	if _, err := c.WaitForStep(1, time.Second); err != nil {
		t.Fatalf("reached step: %v", err)
	}

	if _, err := c.WaitForStep(5, 50*time.Millisecond); err == nil {
		t.Error("expected timeout")
	}
}
