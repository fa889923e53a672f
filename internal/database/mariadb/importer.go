package mariadb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/kozaktomas/photo-people/internal/apperr"
	"github.com/kozaktomas/photo-people/internal/constants"
	"github.com/kozaktomas/photo-people/internal/database"
	"golang.org/x/sync/errgroup"
)

// Source is the PhotoPrism data the importer reads. *Pool implements it.
type Source interface {
	Subjects(ctx context.Context) ([]Subject, error)
	PhotoBatch(ctx context.Context, afterID int64, limit int) ([]Photo, error)
	Markers(ctx context.Context, fileUIDs []string) ([]Marker, error)
	Labels(ctx context.Context, photoIDs []int64) (map[int64][]string, error)
}

type ImportOptions struct {
	BatchSize    int // photos per store transaction, defaults to constants.ImportBatchSize
	Concurrency  int // batches in flight, defaults to constants.ImportConcurrency
	EmbeddingDim int // face embeddings of another length are dropped, 0 keeps all
	Logger       *slog.Logger
	// Progress is called with the number of photos of every committed batch.
	Progress func(photos int)
}

// ImportStats counts what a run wrote.
type ImportStats struct {
	People int `json:"people"` // newly created
	Assets int `json:"assets"`
	Faces  int `json:"faces"`
}

// Importer copies PhotoPrism people, photos and face markers into a store.
//
// Import is additive: PhotoPrism subjects become people only when their id is
// new, photos refresh their asset metadata, and markers already present as
// faces keep their current person so local merges and reassignments survive.
type Importer struct {
	src    Source
	store  database.Store
	opts   ImportOptions
	logger *slog.Logger
}

// NewImporter creates an importer reading from src and writing to store.
func NewImporter(src Source, store database.Store, opts ImportOptions) *Importer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = constants.ImportBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = constants.ImportConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{src: src, store: store, opts: opts, logger: logger}
}

// Run imports everything for owner.
func (im *Importer) Run(ctx context.Context, owner string) (ImportStats, error) {
	var stats ImportStats
	if owner == "" {
		return stats, errors.New("import owner is required")
	}

	subjects, err := im.src.Subjects(ctx)
	if err != nil {
		return stats, err
	}
	people, created, err := im.importPeople(ctx, owner, subjects)
	if err != nil {
		return stats, err
	}
	stats.People = created

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.opts.Concurrency)

	var after int64
	for {
		batch, err := im.src.PhotoBatch(gctx, after, im.opts.BatchSize)
		if err != nil {
			if werr := g.Wait(); werr != nil {
				return stats, werr
			}
			return stats, err
		}
		if len(batch) == 0 {
			break
		}
		after = batch[len(batch)-1].ID

		g.Go(func() error {
			assets, faces, err := im.importBatch(gctx, owner, batch, people)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			stats.Assets += assets
			stats.Faces += faces
			if im.opts.Progress != nil {
				im.opts.Progress(len(batch))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	if err := im.settlePeople(ctx, owner, people); err != nil {
		return stats, err
	}
	im.logger.Info("import finished", "owner", owner,
		"people", stats.People, "assets", stats.Assets, "faces", stats.Faces)
	return stats, nil
}

// importPeople inserts subjects that are not yet people and returns the set
// of every subject uid present for owner.
func (im *Importer) importPeople(ctx context.Context, owner string, subjects []Subject) (map[string]bool, int, error) {
	people := make(map[string]bool, len(subjects))
	if len(subjects) == 0 {
		return people, 0, nil
	}
	ids := make([]string, len(subjects))
	for i, s := range subjects {
		ids[i] = s.UID
	}

	created := 0
	err := im.store.InTx(ctx, func(tx database.Tx) error {
		created = 0
		existing, err := tx.LockPeople(ctx, owner, ids)
		if err != nil {
			return err
		}
		for _, s := range subjects {
			if _, ok := existing[s.UID]; ok {
				continue
			}
			p := database.Person{ID: s.UID, OwnerID: owner, Name: strings.TrimSpace(s.Name), Hidden: s.Hidden}
			if err := tx.InsertPerson(ctx, &p); err != nil {
				return fmt.Errorf("import subject %s: %w", s.UID, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	for _, id := range ids {
		people[id] = true
	}
	return people, created, nil
}

// assetType maps a PhotoPrism photo type; live photos are motion images.
func assetType(photoType string) (database.AssetType, bool) {
	switch strings.ToLower(photoType) {
	case "video":
		return database.AssetTypeVideo, false
	case "live":
		return database.AssetTypeImage, true
	case "", "image", "raw", "animated", "vector":
		return database.AssetTypeImage, false
	default:
		return database.AssetTypeOther, false
	}
}

func toAsset(owner string, ph Photo, tags []string) database.Asset {
	typ, motion := assetType(ph.Type)
	return database.Asset{
		ID:       ph.UID,
		OwnerID:  owner,
		Type:     typ,
		FileName: path.Base(ph.FileName),
		Tags:     tags,
		TakenAt:  ph.TakenAt.UTC(),
		IsMotion: motion,
	}
}

// markerBox converts relative marker coordinates to pixels.
func markerBox(m Marker, width, height int) database.BoundingBox {
	px := func(v float64, size int) int { return int(math.Round(v * float64(size))) }
	return database.BoundingBox{
		X1:          px(m.X, width),
		Y1:          px(m.Y, height),
		X2:          px(m.X+m.W, width),
		Y2:          px(m.Y+m.H, height),
		ImageWidth:  width,
		ImageHeight: height,
	}
}

func (im *Importer) importBatch(ctx context.Context, owner string, batch []Photo, people map[string]bool) (int, int, error) {
	fileUIDs := make([]string, len(batch))
	photoIDs := make([]int64, len(batch))
	byFile := make(map[string]Photo, len(batch))
	for i, ph := range batch {
		fileUIDs[i] = ph.FileUID
		photoIDs[i] = ph.ID
		byFile[ph.FileUID] = ph
	}

	markers, err := im.src.Markers(ctx, fileUIDs)
	if err != nil {
		return 0, 0, err
	}
	labels, err := im.src.Labels(ctx, photoIDs)
	if err != nil {
		return 0, 0, err
	}

	assets := make([]database.Asset, len(batch))
	for i, ph := range batch {
		assets[i] = toAsset(owner, ph, labels[ph.ID])
	}

	faces := make([]database.Face, 0, len(markers))
	for _, m := range markers {
		ph, ok := byFile[m.FileUID]
		if !ok {
			continue
		}
		f := database.Face{
			ID:        m.UID,
			OwnerID:   owner,
			AssetID:   ph.UID,
			BBox:      markerBox(m, ph.Width, ph.Height),
			Embedding: m.Embedding,
		}
		if im.opts.EmbeddingDim > 0 && len(f.Embedding) != 0 && len(f.Embedding) != im.opts.EmbeddingDim {
			im.logger.Debug("dropping face embedding", "face", m.UID, "dim", len(f.Embedding))
			f.Embedding = nil
		}
		if people[m.SubjectUID] {
			f.PersonID = m.SubjectUID
		}
		faces = append(faces, f)
	}

	faceIDs := make([]string, len(faces))
	for i := range faces {
		faceIDs[i] = faces[i].ID
	}

	err = im.inTx(ctx, func(tx database.Tx) error {
		existing, err := tx.LockFaces(ctx, owner, faceIDs)
		if err != nil {
			return err
		}
		// Face and capture time writes advance the statistics version of the
		// people involved, so lock them up front in id order.
		var personIDs []string
		for i := range faces {
			if prev, ok := existing[faces[i].ID]; ok && prev.PersonID != "" {
				personIDs = append(personIDs, prev.PersonID)
			}
			if faces[i].PersonID != "" {
				personIDs = append(personIDs, faces[i].PersonID)
			}
		}
		if _, err := tx.LockPeople(ctx, owner, personIDs); err != nil {
			return err
		}

		for i := range assets {
			a := assets[i]
			if err := tx.UpsertAsset(ctx, &a); err != nil {
				return err
			}
		}
		for i := range faces {
			f := faces[i]
			if prev, ok := existing[f.ID]; ok {
				f.PersonID = prev.PersonID
			}
			if err := tx.UpsertFace(ctx, &f); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("import photo batch starting at %d: %w", batch[0].ID, err)
	}
	return len(assets), len(faces), nil
}

// inTx runs fn in a store transaction, retrying Conflict failures such as
// deadlocks between concurrent batches.
func (im *Importer) inTx(ctx context.Context, fn func(tx database.Tx) error) error {
	var err error
	for attempt := 1; attempt <= constants.ImportTxAttempts; attempt++ {
		err = im.store.InTx(ctx, fn)
		if apperr.KindOf(err) != apperr.Conflict || ctx.Err() != nil {
			return err
		}
		im.logger.Warn("import transaction conflict, retrying", "attempt", attempt)
	}
	return err
}

// settlePeople gives imported people without a thumbnail their lowest face
// id and deletes the ones that ended up without faces.
func (im *Importer) settlePeople(ctx context.Context, owner string, people map[string]bool) error {
	if len(people) == 0 {
		return nil
	}
	ids := make([]string, 0, len(people))
	for id := range people {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return im.inTx(ctx, func(tx database.Tx) error {
		locked, err := tx.LockPeople(ctx, owner, ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			p, ok := locked[id]
			if !ok {
				continue
			}
			faceIDs, err := tx.FaceIDsByPerson(ctx, owner, id)
			if err != nil {
				return err
			}
			if len(faceIDs) == 0 {
				if p.Protected {
					continue
				}
				if err := tx.DeletePerson(ctx, owner, id); err != nil {
					return err
				}
				im.logger.Info("removed imported person without faces", "owner", owner, "person", id)
				continue
			}
			if p.Thumbnail != "" && slices.Contains(faceIDs, p.Thumbnail) {
				continue
			}
			p.Thumbnail = faceIDs[0]
			if err := tx.UpdatePerson(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
}
