package metrics

import (
	"sync"
	"testing"
)

func TestMetrics_Increments(t *testing.T) {
	m := NewMetrics()
	m.IncrementEnqueued()
	m.IncrementEnqueued()
	m.IncrementSubmitted()
	m.IncrementSucceeded()
	m.IncrementRetried()
	m.IncrementExhausted()
	m.IncrementRejectedEnqueue()

	snapshot := m.GetSnapshot()

	expected := map[string]int64{
		"enqueued_jobs":     2,
		"submitted_jobs":    1,
		"succeeded_jobs":    1,
		"retried_jobs":      1,
		"exhausted_jobs":    1,
		"rejected_enqueues": 1,
	}

	for key, expectedValue := range expected {
		if snapshot[key] != expectedValue {
			t.Errorf("expected %s %d, got %d", key, expectedValue, snapshot[key])
		}
	}
}

func TestMetrics_ConcurrentAccess(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementEnqueued()
			m.IncrementSubmitted()
			m.IncrementSucceeded()
			m.IncrementRetried()
		}()
	}

	wg.Wait()

	snapshot := m.GetSnapshot()
	if snapshot["enqueued_jobs"] != 100 {
		t.Errorf("expected enqueued_jobs 100, got %d", snapshot["enqueued_jobs"])
	}
	if snapshot["succeeded_jobs"] != 100 {
		t.Errorf("expected succeeded_jobs 100, got %d", snapshot["succeeded_jobs"])
	}
}
