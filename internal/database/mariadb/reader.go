package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Subject is a PhotoPrism person that has at least one valid face marker.
type Subject struct {
	UID    string
	Name   string
	Hidden bool
}

// Photo is a PhotoPrism photo joined with its primary file.
type Photo struct {
	ID       int64
	UID      string
	Type     string // PhotoPrism photo_type: image, raw, live, video, animated, vector
	FileUID  string
	FileName string
	Width    int
	Height   int
	TakenAt  time.Time
}

// Marker is a face marker. Coordinates are relative to the file dimensions.
type Marker struct {
	UID        string
	FileUID    string
	SubjectUID string // empty when the face is not assigned
	X, Y, W, H float64
	Embedding  []float32
}

// placeholders returns n comma separated ? markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// parseEmbedding decodes markers.embeddings_json, a list of lists of which
// the first entry is the face embedding.
func parseEmbedding(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var wrapped [][]float32
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("unmarshal embedding: %w", err)
	}
	if len(wrapped) == 0 || len(wrapped[0]) == 0 {
		return nil, nil
	}
	return wrapped[0], nil
}

// Subjects returns the people that still have valid face markers, ordered by uid.
func (p *Pool) Subjects(ctx context.Context) ([]Subject, error) {
	query := `
		SELECT s.subj_uid, s.subj_name, s.subj_hidden
		FROM subjects s
		WHERE s.subj_type = 'person' AND s.deleted_at IS NULL
			AND EXISTS (
				SELECT 1 FROM markers m
				WHERE m.subj_uid = s.subj_uid AND m.marker_type = 'face' AND m.marker_invalid = 0
			)
		ORDER BY s.subj_uid
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	var subjects []Subject
	for rows.Next() {
		var s Subject
		if err := rows.Scan(&s.UID, &s.Name, &s.Hidden); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subjects = append(subjects, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}
	return subjects, nil
}

// CountPhotos returns the number of photos that are not deleted.
func (p *Pool) CountPhotos(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM photos WHERE deleted_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count photos: %w", err)
	}
	return n, nil
}

// PhotoBatch returns up to limit photos with an id greater than afterID, ordered by id.
func (p *Pool) PhotoBatch(ctx context.Context, afterID int64, limit int) ([]Photo, error) {
	query := `
		SELECT p.id, p.photo_uid, p.photo_type, f.file_uid, f.file_name, f.file_width, f.file_height, p.taken_at
		FROM photos p
		JOIN files f ON f.photo_id = p.id AND f.file_primary = 1 AND f.deleted_at IS NULL
		WHERE p.deleted_at IS NULL AND p.id > ?
		ORDER BY p.id
		LIMIT ?
	`

	rows, err := p.db.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query photos: %w", err)
	}
	defer rows.Close()

	var photos []Photo
	for rows.Next() {
		var ph Photo
		if err := rows.Scan(&ph.ID, &ph.UID, &ph.Type, &ph.FileUID, &ph.FileName, &ph.Width, &ph.Height, &ph.TakenAt); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, ph)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}
	return photos, nil
}

// Markers returns the valid face markers of the given files, ordered by marker uid.
func (p *Pool) Markers(ctx context.Context, fileUIDs []string) ([]Marker, error) {
	if len(fileUIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT marker_uid, file_uid, subj_uid, x, y, w, h, embeddings_json
		FROM markers
		WHERE marker_type = 'face' AND marker_invalid = 0 AND file_uid IN (` + placeholders(len(fileUIDs)) + `)
		ORDER BY marker_uid
	`
	args := make([]any, len(fileUIDs))
	for i, uid := range fileUIDs {
		args[i] = uid
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query markers: %w", err)
	}
	defer rows.Close()

	var markers []Marker
	for rows.Next() {
		var m Marker
		var subject sql.NullString
		var data []byte
		if err := rows.Scan(&m.UID, &m.FileUID, &subject, &m.X, &m.Y, &m.W, &m.H, &data); err != nil {
			return nil, fmt.Errorf("scan marker: %w", err)
		}
		m.SubjectUID = subject.String
		if m.Embedding, err = parseEmbedding(data); err != nil {
			return nil, fmt.Errorf("marker %s: %w", m.UID, err)
		}
		markers = append(markers, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate markers: %w", err)
	}
	return markers, nil
}

// Labels returns the label names of the given photos keyed by photo id.
func (p *Pool) Labels(ctx context.Context, photoIDs []int64) (map[int64][]string, error) {
	labels := make(map[int64][]string)
	if len(photoIDs) == 0 {
		return labels, nil
	}
	query := `
		SELECT pl.photo_id, l.label_name
		FROM photos_labels pl
		JOIN labels l ON l.id = pl.label_id
		WHERE pl.uncertainty < 100 AND l.deleted_at IS NULL AND pl.photo_id IN (` + placeholders(len(photoIDs)) + `)
		ORDER BY pl.photo_id, l.label_name
	`
	args := make([]any, len(photoIDs))
	for i, id := range photoIDs {
		args[i] = id
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels[id] = append(labels[id], name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}
	return labels, nil
}
