package db

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const healthTimeout = 3 * time.Second

// PoolStats is the connection pool snapshot included in the health report.
type PoolStats struct {
	TotalConns    int32 `json:"totalConns"`
	IdleConns     int32 `json:"idleConns"`
	AcquiredConns int32 `json:"acquiredConns"`
	MaxConns      int32 `json:"maxConns"`
}

// HealthReport is the body of GET /health/db.
type HealthReport struct {
	Status        string     `json:"status"`
	Message       string     `json:"message,omitempty"`
	PingMillis    int64      `json:"pingMs"`
	SchemaVersion int        `json:"schemaVersion"`
	Pool          *PoolStats `json:"pool,omitempty"`
}

// healthProbe is the subset of the pool the check needs.
type healthProbe interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HealthChecker reports whether the ward database is reachable and migrated.
type HealthChecker struct {
	probe  healthProbe
	stats  func() *PoolStats
	logger zerolog.Logger
}

func NewHealthChecker(pool *pgxpool.Pool, logger zerolog.Logger) *HealthChecker {
	return &HealthChecker{
		probe: pool,
		stats: func() *PoolStats {
			s := pool.Stat()
			return &PoolStats{
				TotalConns:    s.TotalConns(),
				IdleConns:     s.IdleConns(),
				AcquiredConns: s.AcquiredConns(),
				MaxConns:      s.MaxConns(),
			}
		},
		logger: logger.With().Str("component", "db-health").Logger(),
	}
}

// Check pings the database and reads the newest applied migration. A
// database with no migrations applied is reported as unmigrated, not down.
func (h *HealthChecker) Check(ctx context.Context) (*HealthReport, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	start := time.Now()
	if err := h.probe.Ping(ctx); err != nil {
		return nil, err
	}
	report := &HealthReport{Status: "healthy", PingMillis: time.Since(start).Milliseconds()}

	err := h.probe.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&report.SchemaVersion)
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == "42P01":
		report.Status = "unmigrated"
		report.Message = "Run `chemoward-server migrate up` before serving."
	case err != nil:
		return nil, err
	case report.SchemaVersion == 0:
		report.Status = "unmigrated"
		report.Message = "Run `chemoward-server migrate up` before serving."
	}
	if h.stats != nil {
		report.Pool = h.stats()
	}
	return report, nil
}

// Handler serves the report. Driver errors are logged, not returned.
func (h *HealthChecker) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		report, err := h.Check(c.Request().Context())
		if err != nil {
			h.logger.Error().Err(err).Msg("database health check failed")
			return c.JSON(http.StatusServiceUnavailable, &HealthReport{
				Status:  "unavailable",
				Message: "The ward database is unreachable.",
			})
		}
		code := http.StatusOK
		if report.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, report)
	}
}
