package baseline

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func TestMemoryStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore("")
	if err != nil {
		t.Fatalf("NewMemoryStore failed: %v", err)
	}
	defer store.Close()

	in := &Baseline{
		Name:    "production",
		Metrics: map[string]float64{"statistical_parity_diff": 0.04, "disparate_impact_ratio": 0.91},
	}
	if err := store.Save(ctx, in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load(ctx, "production")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(got.Metrics, in.Metrics) {
		t.Errorf("Metrics = %v, want %v", got.Metrics, in.Metrics)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Errorf("timestamps not stamped: %+v", got)
	}

	// Loads return copies; mutating one must not leak into the store.
	got.Metrics["statistical_parity_diff"] = 99
	again, err := store.Load(ctx, "production")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if again.Metrics["statistical_parity_diff"] != 0.04 {
		t.Error("Load exposed internal state")
	}
}

func TestMemoryStore_OverwriteKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	store, _ := NewMemoryStore("")
	defer store.Close()

	if err := store.Save(ctx, &Baseline{Name: "b", Metrics: map[string]float64{"m": 0.1}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	first, _ := store.Load(ctx, "b")

	if err := store.Save(ctx, &Baseline{Name: "b", Metrics: map[string]float64{"m": 0.2}}); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	second, _ := store.Load(ctx, "b")

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on overwrite: %v vs %v", second.CreatedAt, first.CreatedAt)
	}
	if second.Metrics["m"] != 0.2 {
		t.Errorf("metrics not replaced: %v", second.Metrics)
	}
	if second.UpdatedAt.Before(first.UpdatedAt) {
		t.Errorf("UpdatedAt went backwards: %v vs %v", second.UpdatedAt, first.UpdatedAt)
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store, _ := NewMemoryStore("")
	defer store.Close()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_EmptyName(t *testing.T) {
	ctx := context.Background()
	store, _ := NewMemoryStore("")
	defer store.Close()

	if err := store.Save(ctx, &Baseline{Name: ""}); err == nil {
		t.Error("Save with empty name should fail")
	}
	if _, err := store.Load(ctx, ""); err == nil {
		t.Error("Load with empty name should fail")
	}
	if err := store.Delete(ctx, ""); err == nil {
		t.Error("Delete with empty name should fail")
	}
}

func TestMemoryStore_ListSorted(t *testing.T) {
	ctx := context.Background()
	store, _ := NewMemoryStore("")
	defer store.Close()

	for _, name := range []string{"staging", "production", "canary"} {
		if err := store.Save(ctx, &Baseline{Name: name, Metrics: map[string]float64{"m": 0.1}}); err != nil {
			t.Fatalf("Save %s failed: %v", name, err)
		}
	}

	names, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"canary", "production", "staging"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("List = %v, want %v", names, want)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store, _ := NewMemoryStore("")
	defer store.Close()

	store.Save(ctx, &Baseline{Name: "b", Metrics: map[string]float64{"m": 0.1}})
	if err := store.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after Delete = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_SnapshotPersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "baselines.json")

	store, err := NewMemoryStore(path)
	if err != nil {
		t.Fatalf("NewMemoryStore failed: %v", err)
	}
	if err := store.Save(ctx, &Baseline{Name: "prod", Metrics: map[string]float64{"accuracy_diff": 0.02}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewMemoryStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load(ctx, "prod")
	if err != nil {
		t.Fatalf("Load after reopen failed: %v", err)
	}
	if got.Metrics["accuracy_diff"] != 0.02 {
		t.Errorf("reloaded metrics = %v", got.Metrics)
	}
}

func TestMemoryStore_MissingSnapshotFileIsFine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never-written.json")
	store, err := NewMemoryStore(path)
	if err != nil {
		t.Fatalf("NewMemoryStore = %v, want nil for a missing snapshot file", err)
	}
	store.Close()
}
