// Package identity maintains the person/face identity graph: person records,
// merges, face reassignment and the per-person statistics derived from them.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/photo-people/internal/apperr"
	"github.com/kozaktomas/photo-people/internal/constants"
	"github.com/kozaktomas/photo-people/internal/database"
)

// maxTxAttempts bounds retries of transactions that failed with Conflict.
const maxTxAttempts = 3

// Options configures a Service.
type Options struct {
	StoreTimeout   time.Duration // 0 disables the per-operation deadline
	StatsCacheSize int           // 0 disables statistics caching
	Logger         *slog.Logger
	Now            func() time.Time
	NewID          func() string
}

// Service is the entry point for every identity operation. All reads and
// writes are scoped to the owner passed by the caller.
type Service struct {
	store   database.Store
	stats   *StatisticsCache
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
	newID   func() string
}

// NewService creates a service over store.
func NewService(store database.Store, opts Options) (*Service, error) {
	stats, err := NewStatisticsCache(opts.StatsCacheSize)
	if err != nil {
		return nil, err
	}

	s := &Service{
		store:   store,
		stats:   stats,
		logger:  opts.Logger,
		timeout: opts.StoreTimeout,
		now:     opts.Now,
		newID:   opts.NewID,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// inTx runs fn in a store transaction, retrying Conflict failures. fn must
// reset any state it accumulates since it may run more than once.
func (s *Service) inTx(ctx context.Context, op string, fn func(tx database.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.store.InTx(ctx, fn)
		if apperr.KindOf(err) != apperr.Conflict || ctx.Err() != nil {
			break
		}
		s.logger.Warn("transaction conflict, retrying", "op", op, "attempt", attempt)
	}
	return apperr.Classify(op, err)
}

// DateField is an optional date in an update. Set distinguishes an absent
// field from an explicit null, which clears the value.
type DateField struct {
	Set   bool
	Value *time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *DateField) UnmarshalJSON(b []byte) error {
	d.Set = true
	if string(b) == "null" {
		d.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("birth date must be a string: %w", err)
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return fmt.Errorf("birth date must be YYYY-MM-DD: %w", err)
	}
	d.Value = &t
	return nil
}

// PersonUpdate lists the fields to change; nil fields are left untouched.
type PersonUpdate struct {
	ID            string    `json:"id,omitempty"`
	Name          *string   `json:"name,omitempty"`
	Hidden        *bool     `json:"isHidden,omitempty"`
	BirthDate     DateField `json:"birthDate"`
	FeatureFaceID *string   `json:"featureFaceId,omitempty"`
}

func (u *PersonUpdate) validate(op string, now time.Time) error {
	if u.BirthDate.Set && u.BirthDate.Value != nil && u.BirthDate.Value.After(now) {
		return apperr.Invalid(op, "birth date cannot be in the future", u.ID)
	}
	if u.FeatureFaceID != nil && strings.TrimSpace(*u.FeatureFaceID) == "" {
		return apperr.Invalid(op, "feature face id cannot be blank", u.ID)
	}
	return nil
}

// apply copies the scalar fields onto p.
func (u *PersonUpdate) apply(p *database.Person) {
	if u.Name != nil {
		p.Name = strings.TrimSpace(*u.Name)
	}
	if u.Hidden != nil {
		p.Hidden = *u.Hidden
	}
	if u.BirthDate.Set {
		p.BirthDate = u.BirthDate.Value
	}
}

// BulkIDResult reports the outcome for one id of a bulk operation.
type BulkIDResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PeopleList is a people listing with account-wide totals.
type PeopleList struct {
	Total  int               `json:"total"`
	Hidden int               `json:"hidden"`
	People []database.Person `json:"people"`
}

// CreatePerson creates an empty person that survives without faces until it
// receives its first one. Name, hidden flag and birth date may be preset.
func (s *Service) CreatePerson(ctx context.Context, owner string, fields PersonUpdate) (*database.Person, error) {
	const op = "identity.CreatePerson"
	if err := fields.validate(op, s.now()); err != nil {
		return nil, err
	}
	if fields.FeatureFaceID != nil {
		return nil, apperr.Invalid(op, "a new person has no faces to feature")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p := database.Person{ID: s.newID(), OwnerID: owner, Protected: true}
	fields.apply(&p)

	err := s.inTx(ctx, op, func(tx database.Tx) error {
		return tx.InsertPerson(ctx, &p)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("created person", "owner", owner, "person", p.ID)
	return &p, nil
}

// GetPerson returns the person or NotFound.
func (s *Service) GetPerson(ctx context.Context, owner, id string) (*database.Person, error) {
	const op = "identity.GetPerson"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.store.GetPerson(ctx, owner, id)
	if err != nil {
		return nil, apperr.Classify(op, err)
	}
	if p == nil {
		return nil, apperr.NotFoundf(op, "person", id)
	}
	return p, nil
}

// UpdatePerson applies upd to the person with the given id.
func (s *Service) UpdatePerson(ctx context.Context, owner, id string, upd PersonUpdate) (*database.Person, error) {
	const op = "identity.UpdatePerson"
	upd.ID = id
	if err := upd.validate(op, s.now()); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var updated *database.Person
	err := s.inTx(ctx, op, func(tx database.Tx) error {
		// Faces before people, the same order reassign uses.
		var faces map[string]*database.Face
		if upd.FeatureFaceID != nil {
			var err error
			if faces, err = tx.LockFaces(ctx, owner, []string{*upd.FeatureFaceID}); err != nil {
				return err
			}
		}
		locked, err := tx.LockPeople(ctx, owner, []string{id})
		if err != nil {
			return err
		}
		p, ok := locked[id]
		if !ok {
			return apperr.NotFoundf(op, "person", id)
		}

		if upd.FeatureFaceID != nil {
			faceID := *upd.FeatureFaceID
			f, ok := faces[faceID]
			if !ok {
				return apperr.NotFoundf(op, "face", faceID)
			}
			if f.PersonID != id {
				return apperr.Invalid(op, "face does not belong to person", faceID, id)
			}
			p.Thumbnail = faceID
		}

		upd.apply(p)
		if err := tx.UpdatePerson(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdatePeople applies each update in its own transaction and reports per-id results.
func (s *Service) UpdatePeople(ctx context.Context, owner string, updates []PersonUpdate) ([]BulkIDResult, error) {
	const op = "identity.UpdatePeople"
	if len(updates) == 0 {
		return nil, apperr.Invalid(op, "no people to update")
	}
	if len(updates) > constants.MaxBulkIDs {
		return nil, apperr.Invalid(op, fmt.Sprintf("at most %d people per request", constants.MaxBulkIDs))
	}
	for _, u := range updates {
		if strings.TrimSpace(u.ID) == "" {
			return nil, apperr.Invalid(op, "every update needs an id")
		}
	}

	results := make([]BulkIDResult, 0, len(updates))
	for _, u := range updates {
		_, err := s.UpdatePerson(ctx, owner, u.ID, u)
		r := BulkIDResult{ID: u.ID, Success: err == nil}
		if err != nil {
			r.Error = apperr.KindOf(err).String()
		}
		results = append(results, r)
	}
	return results, nil
}

// ListPeople returns the owner's people in listing order with totals.
func (s *Service) ListPeople(ctx context.Context, owner string, withHidden bool) (*PeopleList, error) {
	const op = "identity.ListPeople"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	people, err := s.store.ListPeople(ctx, owner, withHidden)
	if err != nil {
		return nil, apperr.Classify(op, err)
	}
	counts, err := s.store.CountPeople(ctx, owner)
	if err != nil {
		return nil, apperr.Classify(op, err)
	}
	if people == nil {
		people = []database.Person{}
	}
	return &PeopleList{Total: counts.Total, Hidden: counts.Hidden, People: people}, nil
}

// GetPersonAssets returns the distinct assets the person appears in, newest first.
func (s *Service) GetPersonAssets(ctx context.Context, owner, id string) ([]database.Asset, error) {
	const op = "identity.GetPersonAssets"
	if _, err := s.GetPerson(ctx, owner, id); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	assets, err := s.store.PersonAssets(ctx, owner, id)
	if err != nil {
		return nil, apperr.Classify(op, err)
	}
	if assets == nil {
		assets = []database.Asset{}
	}
	return assets, nil
}
