package api

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(app *fiber.App, handler *Handler) {
	app.Get("/healthz", handler.Health)

	api := app.Group("/api")

	mood := api.Group("/mood", handler.AuthRequired)
	mood.Get("/document", handler.GetMoodDocument)
	mood.Post("/document/reload", handler.ReloadMoodDocument)
	mood.Post("/day", handler.UpdateMoodDay)
	mood.Get("/entries", handler.GetMoodEntries)
	mood.Put("/entries/:date", handler.UpsertMoodEntry)
	mood.Delete("/entries", handler.DeleteAllMoodEntries)
	mood.Get("/analytics", handler.GetMoodAnalytics)

	lifecycle := api.Group("/app", handler.AuthRequired)
	lifecycle.Post("/background", handler.NotifyBackground)
	lifecycle.Post("/logout", handler.Logout)
}
