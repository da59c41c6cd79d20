package professional

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func validate(p *Professional) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, p *Professional) error {
	if err := validate(p); err != nil {
		return err
	}
	p.Active = true
	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Str("professional_id", p.ID.String()).Msg("professional created")
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Professional, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, p *Professional) error {
	if err := validate(p); err != nil {
		return err
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Professional, int, error) {
	return s.repo.List(ctx, f.normalized(), limit, offset)
}
