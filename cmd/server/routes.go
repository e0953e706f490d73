package main

import (
	"tcmclinic/internal/handlers"
	"tcmclinic/internal/jobs"
	"tcmclinic/internal/middleware"
	"tcmclinic/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

// routeDeps holds everything the HTTP routes are built from
type routeDeps struct {
	sessions  *auth.SessionManager
	allowList *auth.AllowList
	rateLimit *middleware.RateLimitConfig
	scheduler *jobs.JobScheduler // nil when no job is scheduled

	health        *handlers.HealthHandler
	auth          *handlers.AuthHandler
	importer      *handlers.ImportHandler
	patients      *handlers.PatientHandler
	records       *handlers.RecordsHandler
	notifications *handlers.NotificationHandler
	sync          *handlers.SyncHandler
	linkPreview   *handlers.LinkPreviewHandler
}

func registerRoutes(app *fiber.App, d routeDeps) {
	api := app.Group("/api")
	api.Use(middleware.GlobalAPIRateLimiter(d.rateLimit))
	api.Use(middleware.SessionAuth(d.sessions, d.allowList))

	// public
	api.Get("/health", d.health.Handle)
	api.Post("/auth/google", middleware.AuthRateLimiter(d.rateLimit), d.auth.Google)
	api.Get("/auth/session", d.auth.Session)
	api.Post("/auth/signout", d.auth.SignOut)
	api.Post("/link-preview", middleware.LinkPreviewRateLimiter(d.rateLimit), d.linkPreview.Preview)

	// signed in
	api.Post("/import/line-csv", middleware.ImportRateLimiter(d.rateLimit), d.importer.LineCSV)

	api.Get("/users", d.patients.Search)
	api.Post("/users", d.patients.Create)
	api.Get("/users/:id", d.patients.Get)
	api.Put("/users/:id/record", d.patients.UpdateRecord)

	api.Get("/records/weekly", d.records.Weekly)
	api.Get("/records/weekly/export", d.records.Export)

	api.Post("/notifications/send", d.notifications.Send)

	api.Get("/sync/line-users", d.sync.Describe)
	api.Post("/sync/line-users", d.sync.Run)

	api.Get("/jobs", func(c *fiber.Ctx) error {
		if d.scheduler == nil {
			return c.JSON(fiber.Map{"jobs": fiber.Map{}})
		}
		return c.JSON(fiber.Map{"jobs": d.scheduler.GetStatus()})
	})
}
