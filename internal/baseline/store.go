// Package baseline persists named fairness metric snapshots so drift
// detection survives restarts. Three backends share one interface:
// in-memory with optional file snapshot, Redis and Postgres.
package baseline

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the named baseline does not exist.
var ErrNotFound = errors.New("baseline not found")

// Baseline is a named metric snapshot. Saving under an existing name
// replaces the metrics and bumps UpdatedAt while keeping CreatedAt.
type Baseline struct {
	Name      string             `json:"name"`
	Metrics   map[string]float64 `json:"metrics"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Store persists baselines.
type Store interface {
	// Save writes the baseline, replacing any existing one of the same
	// name.
	Save(ctx context.Context, b *Baseline) error

	// Load returns the named baseline or ErrNotFound.
	Load(ctx context.Context, name string) (*Baseline, error)

	// List returns all baseline names in lexical order.
	List(ctx context.Context) ([]string, error)

	// Delete removes the named baseline, returning ErrNotFound when it
	// does not exist.
	Delete(ctx context.Context, name string) error

	// Close releases backend resources.
	Close() error
}

func validateName(name string) error {
	if name == "" {
		return errors.New("baseline name is empty")
	}
	return nil
}

// stamp fills in the write timestamps, preserving CreatedAt when the caller
// carried one over from an earlier load.
func stamp(b *Baseline) {
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}
