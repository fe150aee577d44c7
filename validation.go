package authflow

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the payload before it reaches the backend.
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(
			&c.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&c.Password,
			validation.Required,
			validation.Length(8, 100),
		),
	)
}

// Validate checks the sign-up payload. Business accounts must carry a
// business name; email uniqueness is left to the backend's authoritative
// error rather than pre-checked against the profile table.
func (d RegisterData) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&d.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&d.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&d.Role, validation.Required, validation.By(validateRole)),
		validation.Field(&d.Phone, validation.By(validatePhone)),
		validation.Field(&d.BusinessName,
			validation.By(validateBusinessName(d.Role)),
			validation.Length(0, 200),
		),
		validation.Field(&d.BusinessWebsite, is.URL),
	)
}

// Validate rejects updates whose set fields carry invalid values. An empty
// update is valid and is treated as a no-op by the manager.
func (u ProfileUpdate) Validate() error {
	if u.Phone != nil && *u.Phone != "" {
		if err := validatePhone(*u.Phone); err != nil {
			return err
		}
	}
	if u.BusinessWebsite != nil && *u.BusinessWebsite != "" {
		return validation.Validate(*u.BusinessWebsite, is.URL)
	}
	return nil
}

// validateBusinessName makes the business name mandatory for business
// accounts; for other roles it stays optional.
func validateBusinessName(role Role) func(any) error {
	return func(value any) error {
		name, ok := value.(string)
		if !ok {
			return fmt.Errorf("invalid business name type %T", value)
		}
		if role == RoleBusiness && strings.TrimSpace(name) == "" {
			return fmt.Errorf("business accounts need a business name")
		}
		return nil
	}
}

func validateRole(value any) error {
	role, ok := value.(Role)
	if !ok {
		return fmt.Errorf("invalid role type %T", value)
	}
	if !role.IsValid() {
		return fmt.Errorf("unknown role %q", role)
	}
	return nil
}

// defaultPhoneRegion anchors parsing of national-format numbers.
var defaultPhoneRegion = "US"

func validatePhone(value any) error {
	raw, ok := value.(string)
	if !ok {
		return fmt.Errorf("invalid phone type %T", value)
	}
	if raw == "" {
		return nil
	}
	parsed, err := phonenumbers.Parse(raw, defaultPhoneRegion)
	if err != nil {
		return fmt.Errorf("unparseable phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return fmt.Errorf("invalid phone number %q", raw)
	}
	return nil
}
