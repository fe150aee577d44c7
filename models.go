package authflow

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Profile is the application-level record keyed to a session's subject id.
// Exactly zero or one profile exists per subject; zero is the valid
// "registered but onboarding incomplete" state.
type Profile struct {
	bun.BaseModel `bun:"table:user_profiles,alias:prf"`

	ID                  uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	SubjectID           string     `bun:"user_id,notnull,unique" json:"user_id,omitempty"`
	Email               string     `bun:"email,notnull" json:"email,omitempty"`
	Name                string     `bun:"name,notnull" json:"name,omitempty"`
	Role                Role       `bun:"role,notnull" json:"role,omitempty"`
	AvatarURL           string     `bun:"avatar_url" json:"avatar_url,omitempty"`
	Phone               string     `bun:"phone" json:"phone,omitempty"`
	BusinessName        string     `bun:"business_name" json:"business_name,omitempty"`
	BusinessDescription string     `bun:"business_description" json:"business_description,omitempty"`
	BusinessAddress     string     `bun:"business_address" json:"business_address,omitempty"`
	BusinessWebsite     string     `bun:"business_website" json:"business_website,omitempty"`
	Verified            bool       `bun:"is_verified" json:"is_verified,omitempty"`
	CreatedAt           *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt           *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Clone returns a copy so state snapshots never alias the stored record.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := *p
	if p.CreatedAt != nil {
		t := *p.CreatedAt
		out.CreatedAt = &t
	}
	if p.UpdatedAt != nil {
		t := *p.UpdatedAt
		out.UpdatedAt = &t
	}
	return &out
}

// ProfileUpdate is a partial profile write. Nil fields are left untouched;
// set fields are written to the store and merged into the in-memory user.
type ProfileUpdate struct {
	Name                *string `json:"name,omitempty"`
	AvatarURL           *string `json:"avatar_url,omitempty"`
	Phone               *string `json:"phone,omitempty"`
	BusinessName        *string `json:"business_name,omitempty"`
	BusinessDescription *string `json:"business_description,omitempty"`
	BusinessAddress     *string `json:"business_address,omitempty"`
	BusinessWebsite     *string `json:"business_website,omitempty"`
}

// IsZero reports whether the update carries no fields.
func (u ProfileUpdate) IsZero() bool {
	return u.Name == nil && u.AvatarURL == nil && u.Phone == nil &&
		u.BusinessName == nil && u.BusinessDescription == nil &&
		u.BusinessAddress == nil && u.BusinessWebsite == nil
}

// ApplyTo merges the set fields into profile, leaving everything else as is.
func (u ProfileUpdate) ApplyTo(profile *Profile) {
	if profile == nil {
		return
	}
	if u.Name != nil {
		profile.Name = *u.Name
	}
	if u.AvatarURL != nil {
		profile.AvatarURL = *u.AvatarURL
	}
	if u.Phone != nil {
		profile.Phone = *u.Phone
	}
	if u.BusinessName != nil {
		profile.BusinessName = *u.BusinessName
	}
	if u.BusinessDescription != nil {
		profile.BusinessDescription = *u.BusinessDescription
	}
	if u.BusinessAddress != nil {
		profile.BusinessAddress = *u.BusinessAddress
	}
	if u.BusinessWebsite != nil {
		profile.BusinessWebsite = *u.BusinessWebsite
	}
}

// Changes returns the column to value mapping of the set fields, for store
// implementations that issue partial updates.
func (u ProfileUpdate) Changes() map[string]any {
	out := map[string]any{}
	if u.Name != nil {
		out["name"] = *u.Name
	}
	if u.AvatarURL != nil {
		out["avatar_url"] = *u.AvatarURL
	}
	if u.Phone != nil {
		out["phone"] = *u.Phone
	}
	if u.BusinessName != nil {
		out["business_name"] = *u.BusinessName
	}
	if u.BusinessDescription != nil {
		out["business_description"] = *u.BusinessDescription
	}
	if u.BusinessAddress != nil {
		out["business_address"] = *u.BusinessAddress
	}
	if u.BusinessWebsite != nil {
		out["business_website"] = *u.BusinessWebsite
	}
	return out
}

// RegisterData is the sign-up payload. The profile fields travel as seed
// metadata; the profile row itself is provisioned out-of-band once the email
// is verified.
type RegisterData struct {
	Email               string `json:"email"`
	Password            string `json:"password"`
	Name                string `json:"name"`
	Role                Role   `json:"role"`
	Phone               string `json:"phone,omitempty"`
	BusinessName        string `json:"business_name,omitempty"`
	BusinessDescription string `json:"business_description,omitempty"`
	BusinessAddress     string `json:"business_address,omitempty"`
	BusinessWebsite     string `json:"business_website,omitempty"`
}

// SeedMetadata is the metadata map attached to the backend sign-up request.
func (d RegisterData) SeedMetadata() map[string]any {
	return map[string]any{
		"full_name":            d.Name,
		"role":                 string(d.Role),
		"phone":                d.Phone,
		"business_name":        d.BusinessName,
		"business_description": d.BusinessDescription,
		"business_address":     d.BusinessAddress,
		"business_website":     d.BusinessWebsite,
	}
}
