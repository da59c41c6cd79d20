package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// Checker is a dependency probed by the readiness endpoint.
type Checker interface {
	Name() string
	Ping(ctx context.Context) error
}

type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// PoolChecker adapts a pool to Checker.
type PoolChecker struct{ Pool *pgxpool.Pool }

func (p PoolChecker) Name() string                   { return "postgres" }
func (p PoolChecker) Ping(ctx context.Context) error { return p.Pool.Ping(ctx) }

// HealthHandler pings every checker and answers 503 when any of them fails.
// Pool statistics are included when pool is non-nil.
func HealthHandler(pool *pgxpool.Pool, checks ...Checker) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		status, results := "healthy", map[string]string{}
		for _, chk := range checks {
			if err := chk.Ping(ctx); err != nil {
				status = "unhealthy"
				results[chk.Name()] = err.Error()
				continue
			}
			results[chk.Name()] = "ok"
		}
		body := map[string]interface{}{"status": status, "checks": results}
		if pool != nil {
			body["pool"] = GetPoolStats(pool)
		}
		if status != "healthy" {
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		return c.JSON(http.StatusOK, body)
	}
}
