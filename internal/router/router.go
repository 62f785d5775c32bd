package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"tempo-backend/internal/handlers"
	"tempo-backend/internal/middleware"
)

type Handlers struct {
	Tasks        *handlers.TimerHandler
	SubTaskTimer *handlers.TimerHandler
	SubTasks     *handlers.SubTaskHandler
	Productivity *handlers.ProductivityHandler
	WebSocket    http.HandlerFunc
}

func New(jwtAuth *middleware.JWTAuth, h Handlers, frontendURL string, ratePerMinute int) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	limiter := middleware.NewRateLimiter(ratePerMinute, time.Minute)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Authenticated via ?token=, not the bearer header
		if h.WebSocket != nil {
			r.Get("/ws", h.WebSocket)
		}

		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Use(limiter.Middleware)

			// ──── Task timer ────
			r.Route("/tasks/{id}", func(r chi.Router) {
				timerRoutes(r, h.Tasks)
				r.Post("/subtasks", h.SubTasks.Create)
			})

			// ──── Sub-task timer ────
			r.Route("/subtasks/{id}", func(r chi.Router) {
				timerRoutes(r, h.SubTaskTimer)
				r.Delete("/", h.SubTasks.Delete)
			})

			// ──── Productivity ────
			r.Route("/productivity", func(r chi.Router) {
				r.Get("/", h.Productivity.Daily)
				r.Get("/weekly", h.Productivity.Weekly)
				r.Get("/monthly", h.Productivity.Monthly)
				r.Get("/report", h.Productivity.Report)
			})
		})
	})

	return r
}

func timerRoutes(r chi.Router, h *handlers.TimerHandler) {
	r.Post("/start", h.Start)
	r.Post("/pause", h.Pause)
	r.Post("/resume", h.Resume)
	r.Post("/finish", h.Finish)
	r.Get("/started", h.Started)
	r.Get("/stats", h.Stats)
}
