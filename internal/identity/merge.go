package identity

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kozaktomas/photo-people/internal/apperr"
	"github.com/kozaktomas/photo-people/internal/constants"
	"github.com/kozaktomas/photo-people/internal/database"
)

// MergeResult is the surviving target and the ids merged into it.
type MergeResult struct {
	Target database.Person `json:"target"`
	Merged []string        `json:"merged"`
}

// normalizeIDs rejects blank ids and drops duplicates, keeping first occurrences.
func normalizeIDs(op, what string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, apperr.Invalid(op, "no "+what+" ids given")
	}
	if len(ids) > constants.MaxBulkIDs {
		return nil, apperr.Invalid(op, fmt.Sprintf("at most %d %s ids per request", constants.MaxBulkIDs, what))
	}
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return nil, apperr.Invalid(op, what+" id cannot be blank")
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

// Merge moves every face of the sources onto the target and deletes the
// sources. Source order is priority order for name and thumbnail adoption.
// Either every source is merged or nothing changes.
func (s *Service) Merge(ctx context.Context, owner, targetID string, sourceIDs []string) (*MergeResult, error) {
	const op = "identity.Merge"
	sources, err := normalizeIDs(op, "source", sourceIDs)
	if err != nil {
		return nil, err
	}
	if slices.Contains(sources, targetID) {
		return nil, apperr.Invalid(op, "cannot merge a person into itself", targetID)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var result MergeResult
	err = s.inTx(ctx, op, func(tx database.Tx) error {
		all := append([]string{targetID}, sources...)
		locked, err := tx.LockPeople(ctx, owner, all)
		if err != nil {
			return err
		}
		var missing []string
		for _, id := range all {
			if _, ok := locked[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return apperr.NotFoundf(op, "person", missing...)
		}

		target := locked[targetID]
		gained := 0
		for _, id := range sources {
			src := locked[id]
			n, err := tx.MoveFaces(ctx, owner, id, targetID)
			if err != nil {
				return err
			}
			gained += n
			if target.Name == "" && src.Name != "" {
				target.Name = src.Name
			}
			if target.Thumbnail == "" && src.Thumbnail != "" {
				target.Thumbnail = src.Thumbnail
			}
			if err := tx.DeletePerson(ctx, owner, id); err != nil {
				return err
			}
		}
		if gained > 0 {
			target.Protected = false
		}
		if err := tx.UpdatePerson(ctx, target); err != nil {
			return err
		}

		result = MergeResult{Target: *target, Merged: sources}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.stats.Invalidate(owner, targetID)
	s.stats.Invalidate(owner, sources...)
	s.logger.Info("merged people", "owner", owner, "target", targetID, "sources", sources)
	return &result, nil
}
