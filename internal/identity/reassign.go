package identity

import (
	"context"
	"slices"

	"github.com/kozaktomas/photo-people/internal/apperr"
	"github.com/kozaktomas/photo-people/internal/database"
)

// FaceFailure describes a face id that could not be moved.
type FaceFailure struct {
	ID      string `json:"id"`
	Kind    string `json:"error"`
	Message string `json:"message"`
}

// BulkFaceResult reports a reassignment batch. Resolvable faces are committed
// even when others fail.
type BulkFaceResult struct {
	Succeeded []string          `json:"succeeded"`
	Failed    []FaceFailure     `json:"failed"`
	Persons   []database.Person `json:"persons"` // surviving people touched by the batch
	Deleted   []string          `json:"deleted"` // people removed because they lost their last face
}

// ReassignFaces moves the faces to targetID. The whole batch fails with
// NotFound if the target does not exist.
func (s *Service) ReassignFaces(ctx context.Context, owner, targetID string, faceIDs []string) (*BulkFaceResult, error) {
	const op = "identity.ReassignFaces"
	if targetID == "" {
		return nil, apperr.Invalid(op, "target person id is required")
	}
	return s.moveFaces(ctx, op, owner, targetID, faceIDs)
}

// UnassignFaces orphans the faces.
func (s *Service) UnassignFaces(ctx context.Context, owner string, faceIDs []string) (*BulkFaceResult, error) {
	return s.moveFaces(ctx, "identity.UnassignFaces", owner, "", faceIDs)
}

// moveFaces points faces at targetID ("" to orphan them) and settles every
// prior owner: emptied people are deleted unless protected, and a thumbnail
// that moved away is re-pointed to the lowest remaining face id.
func (s *Service) moveFaces(ctx context.Context, op, owner, targetID string, faceIDs []string) (*BulkFaceResult, error) {
	ids, err := normalizeIDs(op, "face", faceIDs)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var result BulkFaceResult
	var touched []string
	err = s.inTx(ctx, op, func(tx database.Tx) error {
		result = BulkFaceResult{Succeeded: []string{}, Failed: []FaceFailure{}, Persons: []database.Person{}, Deleted: []string{}}
		touched = nil

		faces, err := tx.LockFaces(ctx, owner, ids)
		if err != nil {
			return err
		}

		var moving []string
		movedFrom := make(map[string][]string)
		for _, id := range ids {
			f, ok := faces[id]
			if !ok {
				result.Failed = append(result.Failed, FaceFailure{
					ID: id, Kind: apperr.NotFound.String(), Message: "face not found",
				})
				continue
			}
			result.Succeeded = append(result.Succeeded, id)
			if f.PersonID == targetID {
				continue
			}
			moving = append(moving, id)
			if f.PersonID != "" {
				movedFrom[f.PersonID] = append(movedFrom[f.PersonID], id)
			}
		}

		// Faces first, then every person involved in one ascending-id lock.
		priorIDs := make([]string, 0, len(movedFrom))
		for id := range movedFrom {
			priorIDs = append(priorIDs, id)
		}
		slices.Sort(priorIDs)
		lockIDs := priorIDs
		if targetID != "" {
			lockIDs = append(slices.Clone(priorIDs), targetID)
		}
		locked, err := tx.LockPeople(ctx, owner, lockIDs)
		if err != nil {
			return err
		}

		var target *database.Person
		if targetID != "" {
			if target = locked[targetID]; target == nil {
				return apperr.NotFoundf(op, "person", targetID)
			}
		}

		if len(moving) > 0 {
			if err := tx.AssignFaces(ctx, owner, moving, targetID); err != nil {
				return err
			}
		}

		for _, id := range priorIDs {
			p, ok := locked[id]
			if !ok {
				continue
			}
			touched = append(touched, id)
			remaining, err := tx.FaceIDsByPerson(ctx, owner, id)
			if err != nil {
				return err
			}
			if len(remaining) == 0 && !p.Protected {
				if err := tx.DeletePerson(ctx, owner, id); err != nil {
					return err
				}
				result.Deleted = append(result.Deleted, id)
				continue
			}
			if slices.Contains(movedFrom[id], p.Thumbnail) {
				p.Thumbnail = ""
				if len(remaining) > 0 {
					p.Thumbnail = remaining[0]
				}
				if err := tx.UpdatePerson(ctx, p); err != nil {
					return err
				}
			}
			result.Persons = append(result.Persons, *p)
		}

		if target != nil {
			touched = append(touched, targetID)
			if len(moving) > 0 {
				if target.Thumbnail == "" {
					target.Thumbnail = moving[0]
				}
				target.Protected = false
				if err := tx.UpdatePerson(ctx, target); err != nil {
					return err
				}
			}
			result.Persons = append(result.Persons, *target)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.stats.Invalidate(owner, touched...)
	s.logger.Info("reassigned faces", "op", op, "owner", owner, "target", targetID,
		"succeeded", len(result.Succeeded), "failed", len(result.Failed), "deleted", len(result.Deleted))
	return &result, nil
}
