package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordCommandExecution(t *testing.T) {
	commandExecutionTotal.Reset()

	RecordCommandExecution("ffmpeg", "local", "success")

	metric := &dto.Metric{}
	if err := commandExecutionTotal.WithLabelValues("ffmpeg", "local", "success").Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1 {
		t.Errorf("Expected counter value 1, got %f", metric.Counter.GetValue())
	}

	RecordCommandExecution("ffmpeg", "local", "success")
	if got := testutil.ToFloat64(commandExecutionTotal.WithLabelValues("ffmpeg", "local", "success")); got != 2 {
		t.Errorf("Expected counter value 2, got %f", got)
	}
}

func TestRecordCommandDuration(t *testing.T) {
	commandExecutionDuration.Reset()

	RecordCommandDuration("python", "remote", 5.5)
	RecordCommandDuration("python", "remote", 10.0)
	RecordCommandDuration("ffmpeg", "local", 1.5)

	if n := testutil.CollectAndCount(commandExecutionDuration); n != 2 {
		t.Errorf("Expected 2 histogram series, got %d", n)
	}
}

func TestRecordDegradationEvent(t *testing.T) {
	degradationEventsTotal.Reset()

	RecordDegradationEvent("remote", "local")

	if got := testutil.ToFloat64(degradationEventsTotal.WithLabelValues("remote", "local")); got != 1 {
		t.Errorf("Expected counter value 1, got %f", got)
	}
}

func TestTaskMetrics(t *testing.T) {
	taskTransitionsTotal.Reset()

	RecordTaskTransition("processing")
	RecordTaskTransition("completed")
	RecordTaskTransition("completed")

	if got := testutil.ToFloat64(taskTransitionsTotal.WithLabelValues("completed")); got != 2 {
		t.Errorf("completed transitions = %f, want 2", got)
	}

	before := testutil.ToFloat64(tasksInFlight)
	TaskStarted()
	TaskStarted()
	TaskFinished()
	if got := testutil.ToFloat64(tasksInFlight); got != before+1 {
		t.Errorf("in-flight = %f, want %f", got, before+1)
	}

	evicted := testutil.ToFloat64(tasksEvictedTotal)
	RecordTaskEvicted(3)
	if got := testutil.ToFloat64(tasksEvictedTotal); got != evicted+3 {
		t.Errorf("evicted = %f, want %f", got, evicted+3)
	}
}

func TestRecordOCRRequest(t *testing.T) {
	tests := []struct {
		engine  string
		outcome string
	}{
		{"plate", "found"},
		{"plate", "not_found"},
		{"trocr", "bad_input"},
		{"trocr", "error"},
	}

	for _, tt := range tests {
		t.Run(tt.engine+"_"+tt.outcome, func(t *testing.T) {
			ocrRequestsTotal.Reset()
			RecordOCRRequest(tt.engine, tt.outcome)
			if got := testutil.ToFloat64(ocrRequestsTotal.WithLabelValues(tt.engine, tt.outcome)); got != 1 {
				t.Errorf("Expected counter value 1, got %f", got)
			}
		})
	}
}
