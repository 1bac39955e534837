package state

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestProviderRecordsCommitMetrics(t *testing.T) {
	root := t.TempDir()
	metrics := NewMetrics(nil)
	p := NewProvider(root, nil, metrics)

	store, err := p.Open("op-a", 0, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	store.Put([]byte("k"), []byte("v"))
	if _, err := store.CommitUpdates(0); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var m dto.Metric
	if err := metrics.commits.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Fatalf("commits_total = %v, want 1", got)
	}

	gauge := metrics.keysCurrent.WithLabelValues("op-a", "0")
	var gm dto.Metric
	if err := gauge.Write(&gm); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if got := gm.GetGauge().GetValue(); got != 1 {
		t.Fatalf("keys_current = %v, want 1", got)
	}
}

func TestProviderRecordsAbortMetrics(t *testing.T) {
	root := t.TempDir()
	metrics := NewMetrics(nil)
	p := NewProvider(root, nil, metrics)

	store, err := p.Open("op-b", 0, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	store.Put([]byte("k"), []byte("v"))
	store.AbortUpdates()

	var m dto.Metric
	if err := metrics.aborts.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Fatalf("aborts_total = %v, want 1", got)
	}
}
