package handlers

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
)

const readinessTimeout = 2 * time.Second

// Pinger is satisfied by the Postgres and Redis handles.
type Pinger interface {
	Ping(ctx context.Context) error
}

// configurable is implemented by dependencies that may be switched off by configuration.
type configurable interface {
	Configured() bool
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	service string
	version string
	started time.Time
	names   []string
	probes  map[string]Pinger
}

// NewHealthHandler keys each dependency probe by the name reported in /health/ready.
func NewHealthHandler(service, version string, deps map[string]Pinger) *HealthHandler {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	return &HealthHandler{
		service: service,
		version: version,
		started: time.Now(),
		names:   names,
		probes:  deps,
	}
}

func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "alive",
		"service":        h.service,
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// Ready pings every dependency and answers 503 if any of them fails.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	report, healthy := h.probeAll(ctx)
	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "one or more dependencies unavailable",
				"details": report,
			},
		})
	}
	return c.JSON(fiber.Map{"status": "ready", "dependencies": report})
}

func (h *HealthHandler) probeAll(ctx context.Context) (fiber.Map, bool) {
	report := fiber.Map{}
	healthy := true
	for _, name := range h.names {
		probe := h.probes[name]
		if c, ok := probe.(configurable); ok && !c.Configured() {
			report[name] = "disabled"
			continue
		}
		if err := probe.Ping(ctx); err != nil {
			report[name] = err.Error()
			healthy = false
			continue
		}
		report[name] = "ok"
	}
	return report, healthy
}
