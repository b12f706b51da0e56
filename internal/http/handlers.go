package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sproutgrid/greenhouse-engine/internal/cloud"
	"github.com/sproutgrid/greenhouse-engine/internal/domain"
	"github.com/sproutgrid/greenhouse-engine/internal/service"
)

// ReportLister enumerates exported tick report keys.
type ReportLister interface {
	ListReports(ctx context.Context) ([]string, error)
}

// Register mounts the read API and operator actions. inference and
// reports may be nil when cloud services are disabled; the affected
// endpoints then report unavailable.
func Register(app *fiber.App, svcs *service.Services, inference *cloud.InferenceClient, reports ReportLister) {
	g := app.Group("/")

	g.Get("devices", func(c *fiber.Ctx) error {
		items, err := svcs.Repos.ListActiveDevices(c.Context())
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(items)
	})

	g.Get("devices/:id/telemetry", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 50)
		since := time.Now().Add(-24 * time.Hour)
		items, err := svcs.Repos.GetRecent(c.Context(), c.Params("id"), since, limit)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(items)
	})

	// Latest evaluation snapshot: recommendations plus fused risk. The
	// risk state distinguishes unknown from healthy; renderers must too.
	g.Get("devices/:id/recommendations", func(c *fiber.Ctx) error {
		eval, ok := svcs.Engine.Latest(c.Params("id"))
		if !ok {
			return c.Status(404).JSON(fiber.Map{"error": "device not evaluated yet"})
		}
		return c.JSON(eval)
	})

	// Authoritative server-side alert state per channel, plus history.
	g.Get("devices/:id/alerts", func(c *fiber.Ctx) error {
		deviceID := c.Params("id")
		states := svcs.Engine.Alerts().States(deviceID)
		events, err := svcs.Repos.ListAlertEvents(c.Context(), deviceID, c.QueryInt("limit", 50))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"states": states, "events": events})
	})

	// Operator accept path: persist a recommendation of any confidence
	// as an explicit config-write action.
	g.Post("devices/:id/recommendations/:actuator/accept", func(c *fiber.Ctx) error {
		deviceID := c.Params("id")
		act := domain.Actuator(c.Params("actuator"))
		if _, ok := domain.ActuatorMetric[act]; !ok {
			return c.Status(400).JSON(fiber.Map{"error": "unknown actuator"})
		}
		eval, ok := svcs.Engine.Latest(deviceID)
		if !ok {
			return c.Status(404).JSON(fiber.Map{"error": "device not evaluated yet"})
		}
		for _, rec := range eval.Recommendations {
			if rec.Actuator != act {
				continue
			}
			if err := svcs.Repos.SetThreshold(c.Context(), deviceID, act, rec.RecommendedThreshold, domain.ThresholdSourceOperator); err != nil {
				return c.Status(500).JSON(fiber.Map{"error": err.Error()})
			}
			return c.JSON(fiber.Map{"accepted": rec})
		}
		return c.Status(404).JSON(fiber.Map{"error": "no recommendation for actuator"})
	})

	// Exported tick summaries, for operations audits.
	g.Get("reports", func(c *fiber.Ctx) error {
		if reports == nil {
			return c.Status(503).JSON(fiber.Map{"error": "report export not configured"})
		}
		keys, err := reports.ListReports(c.Context())
		if err != nil {
			return c.Status(502).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"reports": keys})
	})

	g.Post("devices/:id/classify", func(c *fiber.Ctx) error {
		if inference == nil {
			return c.Status(503).JSON(fiber.Map{"error": "inference not configured"})
		}
		assessment, err := inference.Classify(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(502).JSON(fiber.Map{"error": err.Error()})
		}
		if err := svcs.Repos.InsertAssessment(c.Context(), assessment); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(assessment)
	})
}
