package agenda

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// -- Exceptions --

func (s *Service) CreateException(ctx context.Context, x *ExceptionDate) error {
	ctx, span := tracer.Start(ctx, "agenda.CreateException", trace.WithAttributes(
		attribute.String("professional.id", x.ProfessionalID.String()),
		attribute.String("exception.date", x.Date.String())))
	defer span.End()
	started := time.Now()

	verr := &ValidationError{}
	if x.ProfessionalID == uuid.Nil {
		verr.add("professional_id", "is required")
	}
	if x.Date.IsZero() {
		verr.add("date", "is required")
	}
	if !x.Window().Valid() {
		verr.add("end_time", "must be after start_time")
	}
	if !x.Window().WholeMinutes() {
		verr.add("start_time", "must be a whole minute")
	}
	if !validDuration(x.SlotDurationMinutes) {
		verr.add("slot_duration_minutes", fmt.Sprintf("must be between %d and %d", MinSlotDuration, MaxSlotDuration))
	}
	if err := verr.orNil(); err != nil {
		return s.fail(span, "create_exception", started, err)
	}

	existing, err := s.overlays.GetExceptionByDate(ctx, x.ProfessionalID, x.Date)
	switch {
	case err == nil && existing != nil:
		return s.fail(span, "create_exception", started, ErrDuplicateException)
	case err != nil && !errors.Is(err, ErrNotFound):
		return s.fail(span, "create_exception", started, err)
	}
	if err := s.overlays.CreateException(ctx, x); err != nil {
		return s.fail(span, "create_exception", started, err)
	}
	s.invalidate(ctx, x.ProfessionalID)
	s.succeed("create_exception", started)
	return nil
}

func (s *Service) ListExceptions(ctx context.Context, professionalID uuid.UUID, r DateRange) ([]*ExceptionDate, error) {
	if professionalID == uuid.Nil {
		return nil, invalid("professional_id", "is required")
	}
	if err := validateRange(r, 0); err != nil {
		return nil, err
	}
	return s.overlays.ListExceptions(ctx, professionalID, r)
}

func (s *Service) DeleteException(ctx context.Context, id uuid.UUID) error {
	started := time.Now()
	x, err := s.overlays.GetException(ctx, id)
	if err != nil {
		return err
	}
	if err := s.overlays.DeleteException(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, x.ProfessionalID)
	s.succeed("delete_exception", started)
	return nil
}

// -- Blocks --

// BlockRequest creates a block either from explicit instants or, with WholeDay,
// from Date covering 00:00 to 23:59 in the facility time zone.
type BlockRequest struct {
	ProfessionalID uuid.UUID  `json:"-"`
	StartAt        *time.Time `json:"start_at,omitempty"`
	EndAt          *time.Time `json:"end_at,omitempty"`
	WholeDay       bool       `json:"whole_day,omitempty"`
	Date           Date       `json:"date"`
	Reason         *string    `json:"reason,omitempty"`
}

var endOfDay = NewClock(23, 59, 0)

func (s *Service) CreateBlock(ctx context.Context, req BlockRequest, today Date) (*BlockPeriod, error) {
	ctx, span := tracer.Start(ctx, "agenda.CreateBlock", trace.WithAttributes(
		attribute.String("professional.id", req.ProfessionalID.String())))
	defer span.End()
	started := time.Now()

	b := &BlockPeriod{ProfessionalID: req.ProfessionalID, Reason: req.Reason}
	verr := &ValidationError{}
	if req.ProfessionalID == uuid.Nil {
		verr.add("professional_id", "is required")
	}
	switch {
	case req.WholeDay:
		if req.Date.IsZero() {
			verr.add("date", "is required for a whole-day block")
			break
		}
		b.StartAt = req.Date.At(0, s.loc)
		b.EndAt = req.Date.At(endOfDay, s.loc)
	case req.StartAt == nil || req.EndAt == nil:
		verr.add("start_at", "start_at and end_at are required")
	default:
		b.StartAt, b.EndAt = *req.StartAt, *req.EndAt
		if !b.StartAt.Before(b.EndAt) {
			verr.add("end_at", "must be after start_at")
		}
	}
	if err := verr.orNil(); err != nil {
		return nil, s.fail(span, "create_block", started, err)
	}

	if s.enforceBlockWeekdays {
		if err := s.checkBlockWeekdays(ctx, b, today); err != nil {
			return nil, s.fail(span, "create_block", started, err)
		}
	}
	if err := s.overlays.CreateBlock(ctx, b); err != nil {
		return nil, s.fail(span, "create_block", started, err)
	}
	s.invalidate(ctx, b.ProfessionalID)
	s.succeed("create_block", started)
	return b, nil
}

// checkBlockWeekdays requires the block's first and last day to fall on a
// weekday the current period works.
func (s *Service) checkBlockWeekdays(ctx context.Context, b *BlockPeriod, today Date) error {
	groups, err := s.loadGroups(ctx, b.ProfessionalID, today)
	if err != nil {
		return err
	}
	cur := CurrentPeriod(groups)
	if cur == nil || cur.IsPlaceholder() {
		return invalid("start_at", "the professional has no working weekdays in the current period")
	}
	working := cur.ActiveWeekdays()
	verr := &ValidationError{}
	if d := DateOf(b.StartAt.In(s.loc)); !containsWeekday(working, d.Weekday()) {
		verr.add("start_at", d.Weekday().Label()+" is not a working day")
	}
	if d := DateOf(b.EndAt.In(s.loc)); !containsWeekday(working, d.Weekday()) {
		verr.add("end_at", d.Weekday().Label()+" is not a working day")
	}
	return verr.orNil()
}

// ListBlocks returns blocks intersecting the facility-local days of r.
func (s *Service) ListBlocks(ctx context.Context, professionalID uuid.UUID, r DateRange) ([]*BlockPeriod, error) {
	if professionalID == uuid.Nil {
		return nil, invalid("professional_id", "is required")
	}
	if err := validateRange(r, 0); err != nil {
		return nil, err
	}
	return s.overlays.ListBlocks(ctx, professionalID, r.From.At(0, s.loc), r.To.AddDays(1).At(0, s.loc))
}

func (s *Service) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	started := time.Now()
	b, err := s.overlays.GetBlock(ctx, id)
	if err != nil {
		return err
	}
	if err := s.overlays.DeleteBlock(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, b.ProfessionalID)
	s.succeed("delete_block", started)
	return nil
}

// validateRange checks an inclusive day range. maxDays of zero means unbounded.
func validateRange(r DateRange, maxDays int) error {
	verr := &ValidationError{}
	if r.From.IsZero() {
		verr.add("from", "is required")
	}
	if r.To.IsZero() {
		verr.add("to", "is required")
	}
	if err := verr.orNil(); err != nil {
		return err
	}
	if r.To.Before(r.From) {
		return invalid("to", "must not be before from")
	}
	if maxDays > 0 && r.From.DaysUntil(r.To)+1 > maxDays {
		return invalid("to", fmt.Sprintf("range must not exceed %d days", maxDays))
	}
	return nil
}
