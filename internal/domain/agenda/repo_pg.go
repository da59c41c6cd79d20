package agenda

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/diegoabad/front-consul-sub001/internal/platform/db"
)

// =========== Weekly Entry Repository ===========

type entryRepoPG struct{ pool db.Querier }

func NewEntryRepoPG(pool db.Querier) Repository { return &entryRepoPG{pool: pool} }

func (r *entryRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const entryCols = `id, professional_id, weekday, start_time, end_time, slot_duration_minutes,
	active, valid_from, valid_to, version_id, created_at, updated_at`

func scanEntry(row pgx.Row) (*WeeklyEntry, error) {
	var (
		e          WeeklyEntry
		weekday    int
		start, end pgtype.Time
		from       time.Time
		to         *time.Time
	)
	err := row.Scan(&e.ID, &e.ProfessionalID, &weekday, &start, &end, &e.SlotDurationMinutes,
		&e.Active, &from, &to, &e.VersionID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Weekday = Weekday(weekday)
	e.StartTime, e.EndTime = clockFromPG(start), clockFromPG(end)
	e.ValidFrom = DateOf(from)
	if to != nil {
		d := DateOf(*to)
		e.ValidTo = &d
	}
	return &e, nil
}

func (r *entryRepoPG) ListEntries(ctx context.Context, professionalID uuid.UUID, opts ListOptions) ([]*WeeklyEntry, error) {
	query := `SELECT ` + entryCols + ` FROM weekly_schedule_entry WHERE professional_id = $1`
	args := []interface{}{professionalID}
	if !opts.IncludeHistorical {
		query += ` AND (valid_to IS NULL OR valid_to >= $2)`
		args = append(args, opts.Today.Time())
	}
	query += ` ORDER BY valid_from, weekday, start_time NULLS FIRST`
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list weekly entries: %w", err)
	}
	defer rows.Close()
	var items []*WeeklyEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan weekly entry: %w", err)
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *entryRepoPG) GetEntry(ctx context.Context, id uuid.UUID) (*WeeklyEntry, error) {
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx, `SELECT `+entryCols+` FROM weekly_schedule_entry WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (r *entryRepoPG) AgendaVersion(ctx context.Context, professionalID uuid.UUID) (int, error) {
	var v int
	err := r.conn(ctx).QueryRow(ctx, `SELECT version FROM professional_agenda WHERE professional_id = $1`, professionalID).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

// Apply runs a changeset in a single transaction. The agenda row is bumped
// first; its row lock serializes concurrent mutations of the same professional
// until commit, and a changeset planned against an older version is rejected.
func (r *entryRepoPG) Apply(ctx context.Context, cs *Changeset) (int, error) {
	tx, err := r.conn(ctx).Begin(ctx)
	if err != nil {
		return 0, &TransactionFailure{Op: "begin agenda transaction", Err: err}
	}
	defer tx.Rollback(ctx)

	var version int
	err = tx.QueryRow(ctx, `
		INSERT INTO professional_agenda (professional_id, version)
		VALUES ($1, 1)
		ON CONFLICT (professional_id) DO UPDATE
			SET version = professional_agenda.version + 1, updated_at = NOW()
		RETURNING version`, cs.ProfessionalID).Scan(&version)
	if err != nil {
		return 0, &TransactionFailure{Op: "bump agenda version", Err: err}
	}
	if cs.ExpectedVersion != nil && version != *cs.ExpectedVersion+1 {
		return 0, ErrVersionConflict
	}

	for _, id := range cs.Deletes {
		tag, err := tx.Exec(ctx, `DELETE FROM weekly_schedule_entry WHERE id = $1 AND professional_id = $2`, id, cs.ProfessionalID)
		if err != nil {
			return 0, &TransactionFailure{Op: "delete weekly entry", Err: err}
		}
		if tag.RowsAffected() == 0 {
			return 0, ErrVersionConflict
		}
	}
	for _, e := range cs.Updates {
		err := tx.QueryRow(ctx, `
			UPDATE weekly_schedule_entry SET weekday = $3, start_time = $4, end_time = $5,
				slot_duration_minutes = $6, active = $7, valid_from = $8, valid_to = $9,
				version_id = version_id + 1, updated_at = NOW()
			WHERE id = $1 AND professional_id = $2
			RETURNING version_id, updated_at`,
			e.ID, cs.ProfessionalID, int(e.Weekday), clockToPG(e, e.StartTime), clockToPG(e, e.EndTime),
			e.SlotDurationMinutes, e.Active, e.ValidFrom.Time(), dateArg(e.ValidTo),
		).Scan(&e.VersionID, &e.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrVersionConflict
		}
		if err != nil {
			return 0, &TransactionFailure{Op: "update weekly entry", Err: err}
		}
	}
	for _, e := range cs.Creates {
		e.ID = uuid.New()
		e.ProfessionalID = cs.ProfessionalID
		err := tx.QueryRow(ctx, `
			INSERT INTO weekly_schedule_entry (id, professional_id, weekday, start_time, end_time,
				slot_duration_minutes, active, valid_from, valid_to)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			RETURNING version_id, created_at, updated_at`,
			e.ID, e.ProfessionalID, int(e.Weekday), clockToPG(e, e.StartTime), clockToPG(e, e.EndTime),
			e.SlotDurationMinutes, e.Active, e.ValidFrom.Time(), dateArg(e.ValidTo),
		).Scan(&e.VersionID, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return 0, &TransactionFailure{Op: "insert weekly entry", Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, &TransactionFailure{Op: "commit agenda transaction", Err: err}
	}
	return version, nil
}

// =========== Exception / Block Repository ===========

type overlayRepoPG struct{ pool db.Querier }

func NewOverlayRepoPG(pool db.Querier) OverlayRepository { return &overlayRepoPG{pool: pool} }

func (r *overlayRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const exceptionCols = `id, professional_id, date, start_time, end_time, slot_duration_minutes,
	observations, created_at, updated_at`

func scanException(row pgx.Row) (*ExceptionDate, error) {
	var (
		x          ExceptionDate
		date       time.Time
		start, end pgtype.Time
	)
	err := row.Scan(&x.ID, &x.ProfessionalID, &date, &start, &end, &x.SlotDurationMinutes,
		&x.Observations, &x.CreatedAt, &x.UpdatedAt)
	if err != nil {
		return nil, err
	}
	x.Date = DateOf(date)
	x.StartTime, x.EndTime = clockFromPG(start), clockFromPG(end)
	return &x, nil
}

func (r *overlayRepoPG) ListExceptions(ctx context.Context, professionalID uuid.UUID, dr DateRange) ([]*ExceptionDate, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+exceptionCols+` FROM exception_date
		WHERE professional_id = $1 AND date BETWEEN $2 AND $3 ORDER BY date`,
		professionalID, dr.From.Time(), dr.To.Time())
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	defer rows.Close()
	var items []*ExceptionDate
	for rows.Next() {
		x, err := scanException(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exception: %w", err)
		}
		items = append(items, x)
	}
	return items, rows.Err()
}

func (r *overlayRepoPG) GetException(ctx context.Context, id uuid.UUID) (*ExceptionDate, error) {
	x, err := scanException(r.conn(ctx).QueryRow(ctx, `SELECT `+exceptionCols+` FROM exception_date WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return x, err
}

func (r *overlayRepoPG) GetExceptionByDate(ctx context.Context, professionalID uuid.UUID, d Date) (*ExceptionDate, error) {
	x, err := scanException(r.conn(ctx).QueryRow(ctx, `SELECT `+exceptionCols+` FROM exception_date
		WHERE professional_id = $1 AND date = $2`, professionalID, d.Time()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return x, err
}

func (r *overlayRepoPG) CreateException(ctx context.Context, x *ExceptionDate) error {
	x.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO exception_date (id, professional_id, date, start_time, end_time,
			slot_duration_minutes, observations)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		x.ID, x.ProfessionalID, x.Date.Time(), pgClock(x.StartTime), pgClock(x.EndTime),
		x.SlotDurationMinutes, x.Observations,
	).Scan(&x.CreatedAt, &x.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateException
	}
	return err
}

func (r *overlayRepoPG) DeleteException(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM exception_date WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const blockCols = `id, professional_id, start_at, end_at, reason, created_at, updated_at`

func scanBlock(row pgx.Row) (*BlockPeriod, error) {
	var b BlockPeriod
	err := row.Scan(&b.ID, &b.ProfessionalID, &b.StartAt, &b.EndAt, &b.Reason, &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *overlayRepoPG) ListBlocks(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]*BlockPeriod, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+blockCols+` FROM block_period
		WHERE professional_id = $1 AND start_at < $3 AND end_at > $2 ORDER BY start_at`,
		professionalID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()
	var items []*BlockPeriod
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (r *overlayRepoPG) GetBlock(ctx context.Context, id uuid.UUID) (*BlockPeriod, error) {
	b, err := scanBlock(r.conn(ctx).QueryRow(ctx, `SELECT `+blockCols+` FROM block_period WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func (r *overlayRepoPG) CreateBlock(ctx context.Context, b *BlockPeriod) error {
	b.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO block_period (id, professional_id, start_at, end_at, reason)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		b.ID, b.ProfessionalID, b.StartAt, b.EndAt, b.Reason,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (r *overlayRepoPG) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM block_period WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// -- column conversions --

func clockFromPG(t pgtype.Time) Clock {
	if !t.Valid {
		return 0
	}
	return Clock(t.Microseconds / 1_000_000)
}

func pgClock(c Clock) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * 1_000_000, Valid: true}
}

// clockToPG stores NULL times for "no fixed days" rows.
func clockToPG(e *WeeklyEntry, c Clock) pgtype.Time {
	if e.IsPlaceholder() {
		return pgtype.Time{}
	}
	return pgClock(c)
}

func dateArg(d *Date) interface{} {
	if d == nil {
		return nil
	}
	return d.Time()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
