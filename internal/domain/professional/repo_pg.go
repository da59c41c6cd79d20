package professional

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/diegoabad/front-consul-sub001/internal/platform/db"
)

type repoPG struct{ pool db.Querier }

func NewRepoPG(pool db.Querier) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const cols = `id, first_name, last_name, specialty, license_number, email, phone,
	active, created_at, updated_at`

func scan(row pgx.Row) (*Professional, error) {
	var p Professional
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Specialty, &p.LicenseNumber,
		&p.Email, &p.Phone, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Professional) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO professional (id, first_name, last_name, specialty, license_number, email, phone, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.Specialty, p.LicenseNumber, p.Email, p.Phone, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create professional: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Professional, error) {
	p, err := scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM professional WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get professional: %w", err)
	}
	return p, nil
}

func (r *repoPG) Update(ctx context.Context, p *Professional) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE professional SET
			first_name = $2, last_name = $3, specialty = $4, license_number = $5,
			email = $6, phone = $7, active = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.Specialty, p.LicenseNumber, p.Email, p.Phone, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update professional: %w", err)
	}
	return nil
}

// whereClause builds the shared filter of List and its count.
func whereClause(f ListFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(first_name ILIKE $%d OR last_name ILIKE $%d OR specialty ILIKE $%d)", n, n, n))
	}
	if f.Specialty != "" {
		args = append(args, f.Specialty)
		conds = append(conds, fmt.Sprintf("specialty = $%d", len(args)))
	}
	if f.ActiveOnly {
		conds = append(conds, "active")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Professional, int, error) {
	where, args := whereClause(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM professional`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count professionals: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT `+cols+` FROM professional%s ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list professionals: %w", err)
	}
	defer rows.Close()

	var items []*Professional
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan professional: %w", err)
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
