package professional

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Professional struct {
	ID            uuid.UUID `db:"id" json:"id"`
	FirstName     string    `db:"first_name" json:"first_name"`
	LastName      string    `db:"last_name" json:"last_name"`
	Specialty     *string   `db:"specialty" json:"specialty,omitempty"`
	LicenseNumber *string   `db:"license_number" json:"license_number,omitempty"`
	Email         *string   `db:"email" json:"email,omitempty"`
	Phone         *string   `db:"phone" json:"phone,omitempty"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// DisplayName is "Last, First", the form used in agenda listings.
func (p *Professional) DisplayName() string {
	switch {
	case p.LastName == "":
		return p.FirstName
	case p.FirstName == "":
		return p.LastName
	}
	return p.LastName + ", " + p.FirstName
}

// ListFilter narrows a directory listing.
type ListFilter struct {
	// Query matches first name, last name or specialty, case-insensitively.
	Query      string
	Specialty  string
	ActiveOnly bool
}

func (f ListFilter) normalized() ListFilter {
	f.Query = strings.TrimSpace(f.Query)
	f.Specialty = strings.TrimSpace(f.Specialty)
	return f
}
