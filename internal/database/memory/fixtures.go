package memory

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/kozaktomas/photo-people/internal/database"
	"gopkg.in/yaml.v3"
)

// Fixture is the YAML document accepted by Load.
//
//	people:
//	  - {id: p1, owner: u1, name: Alice}
//	assets:
//	  - {id: a1, owner: u1, type: IMAGE, file: beach.jpg, taken_at: 2024-07-01T10:00:00Z}
//	faces:
//	  - {id: f1, owner: u1, asset: a1, person: p1}
type Fixture struct {
	People []database.Person `yaml:"people"`
	Assets []database.Asset  `yaml:"assets"`
	Faces  []database.Face   `yaml:"faces"`
}

// Load decodes a fixture and inserts it in one transaction.
func (s *Store) Load(ctx context.Context, r io.Reader) error {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		return fmt.Errorf("decode fixture: %w", err)
	}

	return s.InTx(ctx, func(tx database.Tx) error {
		for i := range fx.People {
			if err := tx.InsertPerson(ctx, &fx.People[i]); err != nil {
				return fmt.Errorf("insert person %s: %w", fx.People[i].ID, err)
			}
		}
		for i := range fx.Assets {
			if err := tx.UpsertAsset(ctx, &fx.Assets[i]); err != nil {
				return fmt.Errorf("insert asset %s: %w", fx.Assets[i].ID, err)
			}
		}
		for i := range fx.Faces {
			if err := tx.UpsertFace(ctx, &fx.Faces[i]); err != nil {
				return fmt.Errorf("insert face %s: %w", fx.Faces[i].ID, err)
			}
		}
		return nil
	})
}

// LoadFile opens path and loads it as a fixture.
func (s *Store) LoadFile(ctx context.Context, path string) error {
	f, err := os.Open(path) //nolint:gosec // path is from a trusted flag
	if err != nil {
		return fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()
	return s.Load(ctx, f)
}
