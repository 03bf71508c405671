package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestTurnStageWindowSnapshot(t *testing.T) {
	w := newTurnStageWindow(8)
	w.Observe(StageGenerate, 500)
	w.Observe(StageGenerate, 700)
	w.Observe(StageGenerate, 900)
	w.Observe("", 100)
	w.Observe(StageRecall, -1)
	w.ObserveIndicator("recall_semantic")
	w.ObserveIndicator("recall_semantic")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageGenerate || s.Samples != 3 {
		t.Fatalf("unexpected stage stats: %+v", s)
	}
	if s.LastMS != 900 || s.P50MS != 700 {
		t.Fatalf("LastMS = %.2f, P50MS = %.2f, want 900 and 700", s.LastMS, s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 3000 {
		t.Fatalf("TargetP95MS = %.2f, want 3000", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("unexpected indicators: %+v", snap.Indicators)
	}
}

func TestTurnStageWindowWraps(t *testing.T) {
	w := newTurnStageWindow(2)
	for _, v := range []float64{1, 2, 3} {
		w.Observe(StageRecall, v)
	}
	s := w.Snapshot().Stages[0]
	if s.Samples != 2 || s.AvgMS != 2.5 {
		t.Fatalf("unexpected wrapped stats: %+v", s)
	}

	w.Reset()
	if got := len(w.Snapshot().Stages); got != 0 {
		t.Fatalf("len(Stages) after Reset = %d, want 0", got)
	}
}

func TestMetricsInstancesAreIndependent(t *testing.T) {
	a := NewMetrics("joi")
	b := NewMetrics("joi")
	a.ObserveStage(StageTurnTotal, 1500*time.Millisecond)
	a.ObserveRecall("recency")
	a.FactsExtracted.Inc()

	if got := len(b.TurnStages().Stages); got != 0 {
		t.Fatalf("second instance saw %d stages", got)
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`joi_turn_stage_latency_ms_count{stage="turn_total"} 1`,
		`joi_memory_recalls_total{source="recency"} 1`,
		`joi_facts_extracted_total 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
