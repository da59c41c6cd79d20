package db

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// Each clinic lives in its own schema, clinic_<tenant>.
const schemaPrefix = "clinic_"

type (
	tenantKey struct{}
	connKey   struct{}
)

var validTenant = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// SchemaFor returns the PostgreSQL schema holding a clinic's data.
func SchemaFor(tenantID string) (string, error) {
	if !validTenant.MatchString(tenantID) {
		return "", fmt.Errorf("invalid tenant identifier: %q", tenantID)
	}
	return schemaPrefix + tenantID, nil
}

// tenantSources are consulted in order; the token claim set by the JWT
// middleware outranks anything the client sends.
var tenantSources = []func(echo.Context) string{
	func(c echo.Context) string { s, _ := c.Get("jwt_tenant_id").(string); return s },
	func(c echo.Context) string { return c.Request().Header.Get("X-Tenant-ID") },
	func(c echo.Context) string { return c.QueryParam("tenant_id") },
}

func resolveTenant(c echo.Context, fallback string) string {
	for _, source := range tenantSources {
		if id := source(c); id != "" {
			return id
		}
	}
	return fallback
}

// TenantMiddleware pins one pooled connection to the request with search_path
// set to the clinic schema. Repositories reach it through ConnFromContext, so
// every query of the request, transactions included, hits the same clinic.
func TenantMiddleware(pool *pgxpool.Pool, defaultTenant string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID := resolveTenant(c, defaultTenant)
			schema, err := SchemaFor(tenantID)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant identifier")
			}

			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()
			if _, err := conn.Exec(ctx, "SELECT set_config('search_path', $1, false)", schema+", public"); err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "tenant resolution failed")
			}
			defer conn.Exec(context.Background(), "RESET search_path")

			c.SetRequest(c.Request().WithContext(withConn(WithTenant(ctx, tenantID), conn)))
			c.Set("tenant_id", tenantID)
			return next(c)
		}
	}
}

func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

func withConn(ctx context.Context, conn *pgxpool.Conn) context.Context {
	return context.WithValue(ctx, connKey{}, conn)
}

// ConnFromContext returns the tenant-scoped connection, or nil outside a request.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(connKey{}).(*pgxpool.Conn)
	return conn
}

func TenantFromContext(ctx context.Context) string {
	id, _ := ctx.Value(tenantKey{}).(string)
	return id
}

// CreateTenantSchema creates the clinic schema and applies migrations to it.
// A nil migrations filesystem only creates the empty schema.
func CreateTenantSchema(ctx context.Context, pool Querier, tenantID string, migrations fs.FS) error {
	schema, err := SchemaFor(tenantID)
	if err != nil {
		return err
	}
	if migrations == nil {
		_, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema)
		return err
	}
	if _, err := NewMigrator(pool, migrations).Up(ctx, schema); err != nil {
		return fmt.Errorf("migrate %s: %w", schema, err)
	}
	return nil
}
