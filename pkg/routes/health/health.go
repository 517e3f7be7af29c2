package health

import (
	"context"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

type databasePinger interface {
	PingContext(ctx context.Context) error
}

type pinger interface {
	Ping() error
}

// Checker handles health check endpoints
type Checker struct {
	db        databasePinger
	redis     pinger
	extra     map[string]pinger
	version   string
	startTime time.Time
	ready     atomic.Bool
}

func NewChecker(db databasePinger, redis pinger, version string) *Checker {
	return &Checker{
		db:        db,
		redis:     redis,
		extra:     map[string]pinger{},
		version:   version,
		startTime: time.Now(),
	}
}

// AddCheck registers another dependency, such as the intake transport.
func (c *Checker) AddCheck(name string, p pinger) {
	c.extra[name] = p
}

func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/health", c.Health)
	e.GET("/api/v1/health/live", c.Live)
	e.GET("/api/v1/health/ready", c.Ready)
}

type HealthStatus struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Checks     map[string]*CheckResult `json:"checks"`
	ReportedAt time.Time               `json:"reported_at"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Health reports every dependency. The database is mandatory, redis and the extras only when configured.
func (c *Checker) Health(ctx echo.Context) error {
	status := &HealthStatus{
		Status:     "healthy",
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     make(map[string]*CheckResult),
		ReportedAt: time.Now(),
	}

	if c.db == nil {
		status.Checks["database"] = &CheckResult{Status: "unhealthy", Message: "database not configured"}
	} else {
		reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), 5*time.Second)
		status.Checks["database"] = check(func() error { return c.db.PingContext(reqCtx) })
		cancel()
	}

	if c.redis != nil {
		status.Checks["redis"] = check(c.redis.Ping)
	}

	names := make([]string, 0, len(c.extra))
	for name := range c.extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		status.Checks[name] = check(c.extra[name].Ping)
	}

	for _, result := range status.Checks {
		if result.Status == "unhealthy" {
			status.Status = "unhealthy"
		}
	}

	httpStatus := http.StatusOK
	if status.Status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	return ctx.JSON(httpStatus, status)
}

func check(ping func() error) *CheckResult {
	start := time.Now()
	err := ping()
	latency := time.Since(start)
	if err != nil {
		return &CheckResult{Status: "unhealthy", Message: err.Error()}
	}
	return &CheckResult{Status: "healthy", Latency: latency.String()}
}

func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

func (c *Checker) Ready(ctx echo.Context) error {
	if c.ready.Load() {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
	}
	return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}
