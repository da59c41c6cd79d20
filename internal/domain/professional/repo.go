package professional

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("professional not found")

type Repository interface {
	Create(ctx context.Context, p *Professional) error
	GetByID(ctx context.Context, id uuid.UUID) (*Professional, error)
	Update(ctx context.Context, p *Professional) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Professional, int, error)
}
