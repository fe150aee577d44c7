package local

import (
	"context"

	authflow "github.com/citypages/go-authflow"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Profiles is the bun-backed authflow.ProfileStore of the embedded backend.
type Profiles struct {
	repository.Repository[*authflow.Profile]
	db *bun.DB
}

var _ authflow.ProfileStore = (*Profiles)(nil)

// NewProfilesRepository builds the profile store.
func NewProfilesRepository(db *bun.DB) *Profiles {
	repo := repository.NewRepository[*authflow.Profile](db, repository.ModelHandlers[*authflow.Profile]{
		NewRecord: func() *authflow.Profile { return &authflow.Profile{} },
		GetID: func(p *authflow.Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *authflow.Profile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "user_id"
		},
	})

	return &Profiles{Repository: repo, db: db}
}

// FetchBySubjectID returns the single profile for the subject, or
// authflow.ErrProfileNotFound when no row exists.
func (p *Profiles) FetchBySubjectID(ctx context.Context, subjectID string) (*authflow.Profile, error) {
	record := &authflow.Profile{}
	err := p.db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", subjectID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, authflow.ErrProfileNotFound.WithMetadata(map[string]any{
				"subject_id": subjectID,
			})
		}
		return nil, err
	}
	return record, nil
}

// Update issues a partial update of only the set fields, keyed by profile id.
func (p *Profiles) Update(ctx context.Context, id uuid.UUID, update authflow.ProfileUpdate) error {
	changes := update.Changes()
	if len(changes) == 0 {
		return nil
	}

	q := p.db.NewUpdate().
		Model((*authflow.Profile)(nil)).
		Where("?TableAlias.id = ?", id)

	for column, value := range changes {
		q = q.Set("? = ?", bun.Ident(column), value)
	}
	q = q.Set("updated_at = current_timestamp")

	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return authflow.ErrProfileNotFound.WithMetadata(map[string]any{
			"id": id.String(),
		})
	}
	return nil
}
