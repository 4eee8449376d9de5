package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordGeneration(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordGeneration("success", 2*time.Second)
	m.RecordGeneration("success", 0)
	m.RecordGeneration("transport", time.Second)

	if got := testutil.ToFloat64(m.GenerationsTotal.WithLabelValues("success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.GenerationsTotal.WithLabelValues("transport")); got != 1 {
		t.Fatalf("expected 1 transport failure, got %v", got)
	}
	if got := testutil.CollectAndCount(m.GenerationDuration); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}
}

func TestGaugesAndNilReceiver(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetConversationLength(4)
	m.SetQueueDepth(2)
	if got := testutil.ToFloat64(m.ConversationMessages); got != 4 {
		t.Fatalf("conversation gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.QueueDepth); got != 2 {
		t.Fatalf("queue gauge = %v", got)
	}

	var none *Metrics
	none.RecordGeneration("success", time.Second)
	none.SetConversationLength(1)
	none.SetQueueDepth(1)
	none.RecordRequest("GET", "/", "200")
}
