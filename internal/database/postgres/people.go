package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/photo-people/internal/database"
	"github.com/kozaktomas/photo-people/internal/textnorm"
)

const personColumns = `p.id, p.owner_id, p.name, p.thumbnail_face_id, p.is_hidden, p.birth_date, p.protected,
	p.stats_version, p.created_at, p.updated_at`

type rowScanner interface{ Scan(...any) error }

// scanPersonRow scans the personColumns, with optional extra destinations appended.
func scanPersonRow(scanner rowScanner, extraDest ...any) (database.Person, error) {
	var p database.Person
	var birth sql.NullTime

	dest := append([]any{
		&p.ID, &p.OwnerID, &p.Name, &p.Thumbnail, &p.Hidden, &birth, &p.Protected,
		&p.StatsVersion, &p.CreatedAt, &p.UpdatedAt,
	}, extraDest...)

	if err := scanner.Scan(dest...); err != nil {
		return p, fmt.Errorf("scan person: %w", err)
	}
	if birth.Valid {
		d := birth.Time
		p.BirthDate = &d
	}
	return p, nil
}

func scanPeople(rows *sql.Rows) ([]database.Person, error) {
	var people []database.Person
	for rows.Next() {
		p, err := scanPersonRow(rows)
		if err != nil {
			return nil, err
		}
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate people: %w", err)
	}
	return people, nil
}

// birthDateArg converts an optional birth date to a DATE parameter.
func birthDateArg(d *time.Time) any {
	if d == nil {
		return nil
	}
	return d.Format(time.DateOnly)
}

// GetPerson retrieves a person by id, returns nil if not found
func (s *Store) GetPerson(ctx context.Context, owner, id string) (*database.Person, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+personColumns+` FROM people p WHERE p.owner_id = $1 AND p.id = $2`, owner, id)
	p, err := scanPersonRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPeople returns people in listing order.
func (s *Store) ListPeople(ctx context.Context, owner string, withHidden bool) ([]database.Person, error) {
	query := `
		SELECT ` + personColumns + `
		FROM people p
		LEFT JOIN (
			SELECT f.person_id, MAX(a.taken_at) AS newest
			FROM faces f
			JOIN assets a ON a.id = f.asset_id
			WHERE f.owner_id = $1 AND f.person_id IS NOT NULL
			GROUP BY f.person_id
		) n ON n.person_id = p.id
		WHERE p.owner_id = $1 AND ($2 OR NOT p.is_hidden)
		ORDER BY p.is_hidden ASC, (p.name = '') ASC, n.newest DESC NULLS LAST, p.id ASC
	`

	rows, err := s.pool.Query(ctx, query, owner, withHidden)
	if err != nil {
		return nil, fmt.Errorf("query people: %w", err)
	}
	defer rows.Close()

	return scanPeople(rows)
}

// CountPeople returns the total and hidden people counts.
func (s *Store) CountPeople(ctx context.Context, owner string) (database.PeopleCounts, error) {
	var c database.PeopleCounts
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_hidden) FROM people WHERE owner_id = $1`, owner,
	).Scan(&c.Total, &c.Hidden)
	if err != nil {
		return c, fmt.Errorf("count people: %w", err)
	}
	return c, nil
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// SearchPeople matches names case- and accent-insensitively. The term is
// folded in Go the same way unaccent+LOWER folds the column.
func (s *Store) SearchPeople(ctx context.Context, owner, term string, withHidden bool) ([]database.Person, error) {
	query := `
		SELECT ` + personColumns + `
		FROM people p
		WHERE p.owner_id = $1 AND p.name <> '' AND ($3 OR NOT p.is_hidden)
		  AND LOWER(unaccent(p.name)) LIKE $2 ESCAPE '\'
		ORDER BY LOWER(unaccent(p.name)), p.id
	`

	pattern := "%" + escapeLike(textnorm.Fold(term)) + "%"
	rows, err := s.pool.Query(ctx, query, owner, pattern, withHidden)
	if err != nil {
		return nil, fmt.Errorf("search people: %w", err)
	}
	defer rows.Close()

	return scanPeople(rows)
}

// PersonAssets returns distinct assets of the person's faces, newest first.
func (s *Store) PersonAssets(ctx context.Context, owner, personID string) ([]database.Asset, error) {
	query := `
		SELECT ` + assetColumns + `
		FROM assets a
		WHERE a.owner_id = $1
		  AND a.id IN (SELECT f.asset_id FROM faces f WHERE f.owner_id = $1 AND f.person_id = $2)
		ORDER BY a.taken_at DESC, a.id ASC
	`

	rows, err := s.pool.Query(ctx, query, owner, personID)
	if err != nil {
		return nil, fmt.Errorf("query person assets: %w", err)
	}
	defer rows.Close()

	return scanAssets(rows)
}

// PersonStatistics aggregates the person's current face set.
func (s *Store) PersonStatistics(ctx context.Context, owner, personID string) (database.PersonStatistics, error) {
	var stats database.PersonStatistics
	var oldest, newest sql.NullTime

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT a.id), MIN(a.taken_at), MAX(a.taken_at)
		FROM faces f
		JOIN assets a ON a.id = f.asset_id
		WHERE f.owner_id = $1 AND f.person_id = $2
	`, owner, personID).Scan(&stats.AssetCount, &oldest, &newest)
	if err != nil {
		return stats, fmt.Errorf("person statistics: %w", err)
	}

	if oldest.Valid {
		t := oldest.Time
		stats.OldestAssetDate = &t
	}
	if newest.Valid {
		t := newest.Time
		stats.NewestAssetDate = &t
	}
	return stats, nil
}
