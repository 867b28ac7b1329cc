package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/thunderlink/internal/middleware"
)

// NewRouter wires the orchestrator API polled by the frontend.
func NewRouter(c *CampaignController) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging("/status", "/qr", "/healthz"))

	r.Get("/status", c.GetStatus)
	r.Get("/qr", c.GetQR)
	r.Post("/start-bulk", c.StartBulk)
	r.Post("/parse-csv", c.ParseCSV)
	r.Get("/stop-task", c.StopTask)
	r.Get("/force-kill", c.ForceKill)
	r.Get("/logout", c.Logout)
	r.Get("/api/screenshot", c.Screenshot)
	r.Get("/healthz", c.Healthz)

	return r
}
