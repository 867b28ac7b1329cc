package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/thunderlink/internal/middleware"
)

// NewRouter wires the bridge API.
func NewRouter(h *BridgeHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging("/status", "/qr"))

	r.Get("/qr", h.GetQR)
	r.Get("/status", h.GetStatus)
	r.Post("/send", h.Send)
	r.Get("/logout", h.Logout)
	r.Get("/screenshot", h.Screenshot)
	r.Post("/shutdown", h.Shutdown)

	return r
}
