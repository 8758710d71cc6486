package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewTimerStartsImmediately(t *testing.T) {
	timer := NewTimer()
	if timer.start.IsZero() {
		t.Error("NewTimer() start time is zero")
	}
}

func TestTimerDurationAdvances(t *testing.T) {
	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)

	if d := timer.Duration(); d < 10*time.Millisecond {
		t.Errorf("Duration() = %v, want >= 10ms", d)
	}
}

func TestTimerObserveSecondsRecordsToHistogram(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_observe_seconds",
		Help:    "scratch histogram for TestTimerObserveSecondsRecordsToHistogram",
		Buckets: prometheus.DefBuckets,
	})

	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	timer.ObserveSeconds(histogram)

	ch := make(chan prometheus.Metric, 1)
	histogram.Collect(ch)
	metric := <-ch

	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("writing metric: %v", err)
	}
	if m.Histogram.GetSampleCount() != 1 {
		t.Errorf("expected exactly one observation, got %d", m.Histogram.GetSampleCount())
	}
}

func TestHandlerIsNotNil(t *testing.T) {
	if Handler() == nil {
		t.Fatal("Handler() returned nil")
	}
}

func TestCollectorsAreRegistered(t *testing.T) {
	collectors := []prometheus.Collector{
		RunsTotal, RunDuration, RunSizeMB, DestinationOutcomesTotal,
		RetentionDeletionsTotal, SchedulesActive, WorkerPoolQueueDepth,
		NotificationsSentTotal,
	}
	for _, c := range collectors {
		if err := prometheus.Register(c); err == nil {
			t.Error("expected AlreadyRegisteredError for a collector registered in init()")
		} else if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			t.Errorf("expected AlreadyRegisteredError, got %T: %v", err, err)
		}
	}
}
