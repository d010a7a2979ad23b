package baseline

import (
	"context"
	"errors"
	"os"
	"testing"
)

// TestPostgresStore_RoundTrip exercises the real backend, including the
// schema auto-create on a fresh database. Set POSTGRES_TEST_CONN to run it.
func TestPostgresStore_RoundTrip(t *testing.T) {
	connStr := os.Getenv("POSTGRES_TEST_CONN")
	if connStr == "" {
		t.Skip("POSTGRES_TEST_CONN not set")
	}

	ctx := context.Background()
	store, err := NewPostgresStore(connStr)
	if err != nil {
		t.Fatalf("NewPostgresStore failed: %v", err)
	}
	defer store.Close()

	name := "postgres-roundtrip-test"
	defer store.Delete(ctx, name)

	in := &Baseline{Name: name, Metrics: map[string]float64{"statistical_parity_diff": 0.04}}
	if err := store.Save(ctx, in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load(ctx, name)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Metrics["statistical_parity_diff"] != 0.04 {
		t.Errorf("Metrics = %v", got.Metrics)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Errorf("timestamps not set: %+v", got)
	}

	if err := store.Delete(ctx, name); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(ctx, name); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after Delete = %v, want ErrNotFound", err)
	}
}
