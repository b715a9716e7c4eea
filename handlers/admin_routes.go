// handlers/admin_routes.go
package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"promo-bot/middleware"
	"promo-bot/models"
	"promo-bot/sentinel"
	"promo-bot/services"
)

type ParticipantStore interface {
	Get(ctx context.Context, userID int64) (*models.Participant, error)
	List(ctx context.Context, stage models.Stage, limit, offset int) ([]models.Participant, error)
	Delete(ctx context.Context, userID int64) (*models.Participant, error)
	Stats(ctx context.Context, now time.Time) (*services.LedgerStats, error)
}

type CodeStore interface {
	Get(ctx context.Context, code string) (*models.PromoCode, error)
	ListAvailable(ctx context.Context) ([]models.PromoCode, error)
	CountByStatus(ctx context.Context) (services.InventoryCounts, error)
	Release(ctx context.Context, code string) error
}

type Auditor interface {
	Run(ctx context.Context) (*services.AuditReport, error)
	Repair(ctx context.Context) ([]string, error)
}

type HealthChecker interface {
	Health(ctx context.Context) *services.HealthReport
	Alerts(ctx context.Context) ([]services.Alert, error)
}

type Syncer interface {
	SyncOnce(ctx context.Context) error
}

// AdminDeps wires the admin API. Sync and Metrics are optional.
type AdminDeps struct {
	Participants ParticipantStore
	Codes        CodeStore
	Audit        Auditor
	Monitoring   HealthChecker
	Sync         Syncer
	Metrics      http.Handler
	Token        string
}

// storeError maps store errors to HTTP statuses.
func storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	case errors.Is(err, sentinel.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	log.Printf("❌ [ADMIN_API] %s %s failed: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "store unavailable",
		"cause": err.Error(),
	})
}

func userIDParam(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	return id, err == nil && id > 0
}

func badUserID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id must be a positive integer"})
}

func SetupAdminRoutes(app *fiber.App, deps AdminDeps) {
	// 🔐 Every route requires the admin bearer token
	secured := app.Group("/", middleware.AdminTokenMiddleware(deps.Token))

	secured.Get("/health", func(c *fiber.Ctx) error {
		report := deps.Monitoring.Health(c.UserContext())
		status := fiber.StatusOK
		if report.Status != "healthy" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(report)
	})

	if deps.Metrics != nil {
		secured.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}

	admin := secured.Group("/admin")

	admin.Get("/stats", func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		stats, err := deps.Participants.Stats(ctx, time.Now())
		if err != nil {
			return storeError(c, err)
		}
		counts, err := deps.Codes.CountByStatus(ctx)
		if err != nil {
			return storeError(c, err)
		}
		alerts, err := deps.Monitoring.Alerts(ctx)
		if err != nil {
			return storeError(c, err)
		}
		if alerts == nil {
			alerts = []services.Alert{}
		}
		return c.JSON(fiber.Map{
			"participants": stats,
			"codes":        counts,
			"alerts":       alerts,
		})
	})

	admin.Get("/audit", func(c *fiber.Ctx) error {
		report, err := deps.Audit.Run(c.UserContext())
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(fiber.Map{"clean": report.Clean(), "report": report})
	})

	admin.Post("/audit/repair", func(c *fiber.Ctx) error {
		released, err := deps.Audit.Repair(c.UserContext())
		if err != nil {
			return storeError(c, err)
		}
		if released == nil {
			released = []string{}
		}
		log.Printf("🔧 [ADMIN_API] Audit repair released %d code(s)", len(released))
		return c.JSON(fiber.Map{"released": released})
	})

	admin.Get("/participants", func(c *fiber.Ctx) error {
		stage := models.Stage(c.Query("stage"))
		if stage != "" && !stage.Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown stage"})
		}
		limit := c.QueryInt("limit", 50)
		offset := c.QueryInt("offset", 0)
		if limit < 0 || offset < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit and offset must not be negative"})
		}
		list, err := deps.Participants.List(c.UserContext(), stage, limit, offset)
		if err != nil {
			return storeError(c, err)
		}
		if list == nil {
			list = []models.Participant{}
		}
		return c.JSON(fiber.Map{"participants": list, "limit": limit, "offset": offset})
	})

	admin.Get("/participants/:id", func(c *fiber.Ctx) error {
		id, ok := userIDParam(c)
		if !ok {
			return badUserID(c)
		}
		p, err := deps.Participants.Get(c.UserContext(), id)
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(p)
	})

	admin.Delete("/participants/:id", func(c *fiber.Ctx) error {
		id, ok := userIDParam(c)
		if !ok {
			return badUserID(c)
		}
		p, err := deps.Participants.Delete(c.UserContext(), id)
		if err != nil {
			return storeError(c, err)
		}
		log.Printf("🗑️ [ADMIN_API] Participant %d deleted, code %q retired", id, p.PromoCodeValue())
		return c.JSON(fiber.Map{"deleted": id, "retired_code": p.PromoCodeValue()})
	})

	admin.Get("/codes/available", func(c *fiber.Ctx) error {
		codes, err := deps.Codes.ListAvailable(c.UserContext())
		if err != nil {
			return storeError(c, err)
		}
		if codes == nil {
			codes = []models.PromoCode{}
		}
		return c.JSON(fiber.Map{"count": len(codes), "codes": codes})
	})

	admin.Post("/codes/:code/release", func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		code := c.Params("code")
		if err := deps.Codes.Release(ctx, code); err != nil {
			return storeError(c, err)
		}
		current, err := deps.Codes.Get(ctx, code)
		if err != nil {
			return storeError(c, err)
		}
		if !current.IsAvailable() {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "code is held by a participant; delete the participant instead",
			})
		}
		return c.JSON(current)
	})

	admin.Post("/sync", func(c *fiber.Ctx) error {
		if deps.Sync == nil {
			return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "google sheets sync is not configured"})
		}
		if err := deps.Sync.SyncOnce(c.UserContext()); err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "sync failed", "cause": err.Error()})
		}
		return c.JSON(fiber.Map{"synced": true})
	})
}
