package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/kozaktomas/photo-people/internal/apperr"
	"github.com/kozaktomas/photo-people/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// Serialization failures and deadlocks are safe to retry.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// classifyTxError maps driver errors to application error kinds and leaves
// application errors untouched.
func classifyTxError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected:
			return apperr.Wrap(apperr.Conflict, "postgres.InTx", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.Unavailable, "postgres.InTx", err)
	}
	return err
}

// InTx runs fn in a READ COMMITTED transaction. Consistency comes from the
// row locks taken by LockPeople and LockFaces, always in ascending id order.
func (s *Store) InTx(ctx context.Context, fn func(tx database.Tx) error) error {
	sqlTx, err := s.pool.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classifyTxError(err)
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

	tx := &pgTx{tx: sqlTx}
	if err := fn(tx); err != nil {
		return classifyTxError(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return classifyTxError(fmt.Errorf("commit transaction: %w", err))
	}

	s.refreshIndex(tx.upserted)
	return nil
}

type pgTx struct {
	tx       *sql.Tx
	upserted []database.Asset
}

func sortedIDs(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func (t *pgTx) LockPeople(ctx context.Context, owner string, ids []string) (map[string]*database.Person, error) {
	found := make(map[string]*database.Person, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+personColumns+`
		FROM people p
		WHERE p.owner_id = $1 AND p.id = ANY($2)
		ORDER BY p.id
		FOR UPDATE
	`, owner, pq.Array(sortedIDs(ids)))
	if err != nil {
		return nil, fmt.Errorf("lock people: %w", err)
	}
	defer rows.Close()

	people, err := scanPeople(rows)
	if err != nil {
		return nil, err
	}
	for i := range people {
		found[people[i].ID] = &people[i]
	}
	return found, nil
}

func (t *pgTx) LockFaces(ctx context.Context, owner string, ids []string) (map[string]*database.Face, error) {
	found := make(map[string]*database.Face, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+faceColumns+`
		FROM faces f
		WHERE f.owner_id = $1 AND f.id = ANY($2)
		ORDER BY f.id
		FOR UPDATE
	`, owner, pq.Array(sortedIDs(ids)))
	if err != nil {
		return nil, fmt.Errorf("lock faces: %w", err)
	}
	defer rows.Close()

	faces, err := scanFaces(rows)
	if err != nil {
		return nil, err
	}
	for i := range faces {
		found[faces[i].ID] = &faces[i]
	}
	return found, nil
}

func (t *pgTx) FaceIDsByPerson(ctx context.Context, owner, personID string) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id FROM faces WHERE owner_id = $1 AND person_id = $2 ORDER BY id`, owner, personID)
	if err != nil {
		return nil, fmt.Errorf("query face ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan face id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face ids: %w", err)
	}
	return ids, nil
}

func (t *pgTx) InsertPerson(ctx context.Context, p *database.Person) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO people (id, owner_id, name, thumbnail_face_id, is_hidden, birth_date, protected)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, p.ID, p.OwnerID, p.Name, p.Thumbnail, p.Hidden, birthDateArg(p.BirthDate), p.Protected,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert person %s: %w", p.ID, err)
	}
	return nil
}

func (t *pgTx) UpdatePerson(ctx context.Context, p *database.Person) error {
	err := t.tx.QueryRowContext(ctx, `
		UPDATE people
		SET name = $3, thumbnail_face_id = $4, is_hidden = $5, birth_date = $6, protected = $7,
		    updated_at = NOW()
		WHERE owner_id = $1 AND id = $2
		RETURNING updated_at
	`, p.OwnerID, p.ID, p.Name, p.Thumbnail, p.Hidden, birthDateArg(p.BirthDate), p.Protected,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("person %s does not exist", p.ID)
	}
	if err != nil {
		return fmt.Errorf("update person %s: %w", p.ID, err)
	}
	return nil
}

func (t *pgTx) DeletePerson(ctx context.Context, owner, id string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM people WHERE owner_id = $1 AND id = $2`, owner, id); err != nil {
		return fmt.Errorf("delete person %s: %w", id, err)
	}
	return nil
}

func (t *pgTx) AssignFaces(ctx context.Context, owner string, faceIDs []string, personID string) error {
	if len(faceIDs) == 0 {
		return nil
	}
	_, err := t.tx.ExecContext(ctx,
		`UPDATE faces SET person_id = NULLIF($3, '') WHERE owner_id = $1 AND id = ANY($2)`,
		owner, pq.Array(faceIDs), personID)
	if err != nil {
		return fmt.Errorf("assign faces: %w", err)
	}
	return nil
}

func (t *pgTx) MoveFaces(ctx context.Context, owner, fromPersonID, toPersonID string) (int, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE faces SET person_id = $3 WHERE owner_id = $1 AND person_id = $2`,
		owner, fromPersonID, toPersonID)
	if err != nil {
		return 0, fmt.Errorf("move faces: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("move faces: %w", err)
	}
	return int(n), nil
}

// UpsertAsset inserts or refreshes an asset. Rows of another owner are never
// touched: the conflict update is guarded and yields no row.
func (t *pgTx) UpsertAsset(ctx context.Context, a *database.Asset) error {
	const op = "postgres.UpsertAsset"
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	var vec *pgvector.Vector
	var revision int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO assets (id, owner_id, type, file_name, tags, taken_at, is_motion, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::vector)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			file_name = EXCLUDED.file_name,
			tags = EXCLUDED.tags,
			taken_at = EXCLUDED.taken_at,
			is_motion = EXCLUDED.is_motion,
			embedding = COALESCE(EXCLUDED.embedding, assets.embedding),
			revision = nextval('asset_revision_seq')
		WHERE assets.owner_id = EXCLUDED.owner_id
		RETURNING embedding, revision
	`, a.ID, a.OwnerID, string(a.Type), a.FileName, pq.Array(tags), a.TakenAt, a.IsMotion, vectorArg(a.Embedding),
	).Scan(&vec, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.New(apperr.PermissionDenied, op, "asset belongs to another account", a.ID)
	}
	if err != nil {
		return fmt.Errorf("upsert asset %s: %w", a.ID, err)
	}
	stored := *a
	stored.Revision = revision
	if vec != nil {
		stored.Embedding = vec.Slice()
	}
	a.Revision = revision
	t.upserted = append(t.upserted, stored)
	return nil
}

// UpsertFace inserts or refreshes a face, with the same owner guard as UpsertAsset.
func (t *pgTx) UpsertFace(ctx context.Context, f *database.Face) error {
	const op = "postgres.UpsertFace"
	var id string
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO faces (id, owner_id, asset_id, person_id,
			bbox_x1, bbox_y1, bbox_x2, bbox_y2, image_width, image_height, embedding)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11::vector)
		ON CONFLICT (id) DO UPDATE SET
			asset_id = EXCLUDED.asset_id,
			person_id = EXCLUDED.person_id,
			bbox_x1 = EXCLUDED.bbox_x1,
			bbox_y1 = EXCLUDED.bbox_y1,
			bbox_x2 = EXCLUDED.bbox_x2,
			bbox_y2 = EXCLUDED.bbox_y2,
			image_width = EXCLUDED.image_width,
			image_height = EXCLUDED.image_height,
			embedding = COALESCE(EXCLUDED.embedding, faces.embedding)
		WHERE faces.owner_id = EXCLUDED.owner_id
		RETURNING id
	`, f.ID, f.OwnerID, f.AssetID, f.PersonID,
		f.BBox.X1, f.BBox.Y1, f.BBox.X2, f.BBox.Y2, f.BBox.ImageWidth, f.BBox.ImageHeight,
		vectorArg(f.Embedding)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.New(apperr.PermissionDenied, op, "face belongs to another account", f.ID)
	}
	if err != nil {
		return fmt.Errorf("upsert face %s: %w", f.ID, err)
	}
	return nil
}
