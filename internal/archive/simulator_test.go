package archive

import (
	"context"
	"strings"
	"testing"
)

func TestSimulator_DeterministicURL(t *testing.T) {
	sim := NewSimulator("archive-bucket", "https://storage.example.com")

	u1, err := sim.StoreBatch(context.Background(), "100", "100/1.json", []byte(`[{}]`))
	if err != nil {
		t.Fatal(err)
	}
	u2, err := sim.StoreBatch(context.Background(), "100", "100/1.json", []byte(`[{}]`))
	if err != nil {
		t.Fatal(err)
	}

	if u1 != u2 {
		t.Errorf("expected deterministic url, got %s and %s", u1, u2)
	}
	if !strings.HasPrefix(u1, "https://storage.example.com/archive-bucket/batches/") {
		t.Errorf("unexpected url shape: %s", u1)
	}
}

func TestSimulator_DistinctKeysDistinctURLs(t *testing.T) {
	sim := NewSimulator("b", "https://s.example.com")

	u1, _ := sim.StoreBatch(context.Background(), "100", "100/1.json", []byte(`x`))
	u2, _ := sim.StoreBatch(context.Background(), "100", "100/2.json", []byte(`x`))
	if u1 == u2 {
		t.Error("different keys must map to different urls")
	}
}

func TestSimulator_RejectsEmptyBatch(t *testing.T) {
	sim := NewSimulator("", "")

	if _, err := sim.StoreBatch(context.Background(), "100", "k", nil); err == nil {
		t.Error("expected error for empty batch")
	}
}
