package local

import (
	"context"
	"time"

	authflow "github.com/citypages/go-authflow"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// ProvisionProfileMessage asks for the application profile row of a freshly
// verified account. Fired out-of-band after email confirmation; the
// lifecycle core never creates profiles itself.
type ProvisionProfileMessage struct {
	SubjectID string         `json:"subject_id"`
	Email     string         `json:"email"`
	Metadata  map[string]any `json:"metadata"`
	UseHashid bool
}

func (e ProvisionProfileMessage) Type() string { return "profile.provision" }

// ProvisionProfileHandler creates the profile from the sign-up seed
// metadata. Idempotent: an existing profile for the subject is left alone.
type ProvisionProfileHandler struct {
	db       *bun.DB
	profiles *Profiles
}

func NewProvisionProfileHandler(db *bun.DB, profiles *Profiles) *ProvisionProfileHandler {
	return &ProvisionProfileHandler{db: db, profiles: profiles}
}

func (h *ProvisionProfileHandler) Execute(ctx context.Context, event ProvisionProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile provisioning",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ProvisionProfileHandler) execute(ctx context.Context, event ProvisionProfileMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.SubjectID == "" {
		return goerrors.New("subject id is required", goerrors.CategoryValidation)
	}

	return h.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if existing, err := h.profiles.FetchBySubjectID(ctx, event.SubjectID); err == nil && existing != nil {
			return nil
		} else if err != nil && !authflow.IsProfileNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing profile")
		}

		profile := profileFromSeed(event)
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				profile.ID = id
			}
		}

		if _, err := h.profiles.Repository.CreateTx(ctx, tx, profile); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create profile")
		}

		return nil
	})
}

func profileFromSeed(event ProvisionProfileMessage) *authflow.Profile {
	seed := func(key string) string {
		if event.Metadata == nil {
			return ""
		}
		if v, ok := event.Metadata[key].(string); ok {
			return v
		}
		return ""
	}

	role := authflow.Role(seed("role"))
	if !role.IsValid() {
		role = authflow.RoleUser
	}

	return &authflow.Profile{
		SubjectID:           event.SubjectID,
		Email:               event.Email,
		Name:                seed("full_name"),
		Role:                role,
		Phone:               seed("phone"),
		BusinessName:        seed("business_name"),
		BusinessDescription: seed("business_description"),
		BusinessAddress:     seed("business_address"),
		BusinessWebsite:     seed("business_website"),
	}
}
