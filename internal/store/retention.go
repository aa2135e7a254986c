package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// KeepLatest deletes every record sharing (ownerID, name) except the most
// recently updated one. It keeps going past individual delete failures and
// returns them joined together with the number of records removed.
func KeepLatest(ctx context.Context, s Store, ownerID, name string) (int, error) {
	recs, err := s.ListByOwnerAndName(ctx, ownerID, name)
	if err != nil {
		return 0, fmt.Errorf("list duplicates: %w", err)
	}
	if len(recs) <= 1 {
		return 0, nil
	}
	slices.SortStableFunc(recs, func(a, b Record) int { return b.UpdatedAt.Compare(a.UpdatedAt) })

	deleted := 0
	var errs []error
	for _, r := range recs[1:] {
		if err := s.Delete(ctx, r.ID); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", r.ID, err))
			continue
		}
		deleted++
	}
	return deleted, errors.Join(errs...)
}

// RetentionCleaner runs KeepLatest inline against a store.
type RetentionCleaner struct {
	Store Store
}

// Cleanup removes stale duplicates of (ownerID, name).
func (c RetentionCleaner) Cleanup(ctx context.Context, ownerID, name string) (int, error) {
	return KeepLatest(ctx, c.Store, ownerID, name)
}
