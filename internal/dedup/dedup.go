// Package dedup admits each provider place id exactly once across all
// jobs, backed by the store's seen_places index.
package dedup

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/leadgrid/leadgen-cli/internal/store"
)

// Deduplicator filters already-seen place ids. The store insert is the
// source of truth; the in-process set only short-circuits repeat lookups
// within a run.
type Deduplicator struct {
	store store.Store

	mu   sync.Mutex
	seen map[string]struct{}
}

// New creates a Deduplicator over the given store.
func New(st store.Store) *Deduplicator {
	return &Deduplicator{
		store: st,
		seen:  make(map[string]struct{}),
	}
}

// Admit reports whether placeID is new. The first caller for an id gets
// true; every later caller, in this process or any other sharing the
// store, gets false.
func (d *Deduplicator) Admit(ctx context.Context, placeID string) (bool, error) {
	if placeID == "" {
		return false, eris.New("dedup: empty place id")
	}

	d.mu.Lock()
	if _, ok := d.seen[placeID]; ok {
		d.mu.Unlock()
		return false, nil
	}
	d.mu.Unlock()

	admitted, err := d.store.AdmitPlaceID(ctx, placeID)
	if err != nil {
		return false, eris.Wrap(err, "dedup: admit")
	}

	d.mu.Lock()
	d.seen[placeID] = struct{}{}
	d.mu.Unlock()

	return admitted, nil
}
