package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-people/internal/database"
	"github.com/pgvector/pgvector-go"
)

const faceColumns = `f.id, f.owner_id, f.asset_id, COALESCE(f.person_id, ''),
	f.bbox_x1, f.bbox_y1, f.bbox_x2, f.bbox_y2, f.image_width, f.image_height, f.embedding`

func scanFaceRow(scanner rowScanner) (database.Face, error) {
	var f database.Face
	var vec *pgvector.Vector

	if err := scanner.Scan(
		&f.ID, &f.OwnerID, &f.AssetID, &f.PersonID,
		&f.BBox.X1, &f.BBox.Y1, &f.BBox.X2, &f.BBox.Y2, &f.BBox.ImageWidth, &f.BBox.ImageHeight,
		&vec,
	); err != nil {
		return f, fmt.Errorf("scan face: %w", err)
	}
	if vec != nil {
		f.Embedding = vec.Slice()
	}
	return f, nil
}

func scanFaces(rows *sql.Rows) ([]database.Face, error) {
	var faces []database.Face
	for rows.Next() {
		f, err := scanFaceRow(rows)
		if err != nil {
			return nil, err
		}
		faces = append(faces, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}

// vectorArg converts an optional embedding to a vector parameter.
func vectorArg(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

// GetFace retrieves a face by id, returns nil if not found
func (s *Store) GetFace(ctx context.Context, owner, id string) (*database.Face, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+faceColumns+` FROM faces f WHERE f.owner_id = $1 AND f.id = $2`, owner, id)
	f, err := scanFaceRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// FacesByPerson returns the person's faces ordered by id.
func (s *Store) FacesByPerson(ctx context.Context, owner, personID string) ([]database.Face, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+faceColumns+` FROM faces f WHERE f.owner_id = $1 AND f.person_id = $2 ORDER BY f.id`,
		owner, personID)
	if err != nil {
		return nil, fmt.Errorf("query faces by person: %w", err)
	}
	defer rows.Close()

	return scanFaces(rows)
}
