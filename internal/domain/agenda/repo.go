package agenda

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListOptions filters ListEntries. Without IncludeHistorical, rows whose
// period ended before Today are omitted.
type ListOptions struct {
	IncludeHistorical bool
	Today             Date
}

// Repository persists weekly entries. Apply must run the whole changeset in
// one transaction and bump the professional's agenda version.
type Repository interface {
	ListEntries(ctx context.Context, professionalID uuid.UUID, opts ListOptions) ([]*WeeklyEntry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (*WeeklyEntry, error)
	AgendaVersion(ctx context.Context, professionalID uuid.UUID) (int, error)
	Apply(ctx context.Context, cs *Changeset) (int, error)
}

type OverlayRepository interface {
	ListExceptions(ctx context.Context, professionalID uuid.UUID, r DateRange) ([]*ExceptionDate, error)
	GetException(ctx context.Context, id uuid.UUID) (*ExceptionDate, error)
	GetExceptionByDate(ctx context.Context, professionalID uuid.UUID, d Date) (*ExceptionDate, error)
	CreateException(ctx context.Context, x *ExceptionDate) error
	DeleteException(ctx context.Context, id uuid.UUID) error

	ListBlocks(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]*BlockPeriod, error)
	GetBlock(ctx context.Context, id uuid.UUID) (*BlockPeriod, error)
	CreateBlock(ctx context.Context, b *BlockPeriod) error
	DeleteBlock(ctx context.Context, id uuid.UUID) error
}

// AvailabilityCache stores resolved availability per professional.
// Invalidate drops everything cached for the professional. Get reports the
// cache generation it looked in; a value computed after a miss is passed back
// to Set with that generation, and is dropped if Invalidate ran in between.
type AvailabilityCache interface {
	Get(ctx context.Context, professionalID uuid.UUID, key string) (value []byte, generation int64, hit bool, err error)
	Set(ctx context.Context, professionalID uuid.UUID, generation int64, key string, value []byte) error
	Invalidate(ctx context.Context, professionalID uuid.UUID) error
}

// ProfessionalRef is the display data of a professional.
type ProfessionalRef struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Specialty *string   `json:"specialty,omitempty"`
}

// Directory resolves display data only; nothing in the engine validates against it.
type Directory interface {
	Lookup(ctx context.Context, id uuid.UUID) (*ProfessionalRef, error)
}

// Metrics receives engine outcomes.
type Metrics interface {
	ObserveMutation(op, outcome string, seconds float64)
	ObserveResolution(status string)
}
