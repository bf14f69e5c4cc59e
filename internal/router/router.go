package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"shijian-backend/internal/handlers"
	"shijian-backend/internal/middleware"
)

type Handlers struct {
	Health   *handlers.HealthHandler
	Auth     *handlers.AuthHandler
	Poem     *handlers.PoemHandler
	Analysis *handlers.AnalysisHandler
	Chat     *handlers.ChatHandler
}

// New builds the HTTP surface. The returned stop func releases the rate
// limiter janitors.
func New(jwtAuth *middleware.JWTAuth, h Handlers, frontendURL string) (http.Handler, func()) {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)
	// AI endpoints (30 req/min per IP)
	aiLimiter := middleware.NewRateLimiter(30, time.Minute)

	r.Get("/health", h.Health.Check)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health.Check)

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", h.Auth.Register)
			r.Post("/login", h.Auth.Login)
			r.Post("/refresh", h.Auth.Refresh)

			// Logout requires auth
			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", h.Auth.Logout)
			})
		})

		// ──── Poem Routes (public) ────
		r.Route("/poems", func(r chi.Router) {
			r.Get("/search", h.Poem.Search)
			r.Get("/popular", h.Poem.Popular)
			r.Get("/dynasties", h.Poem.Dynasties)
			r.Get("/types", h.Poem.Types)
			r.Get("/{id}", h.Poem.Get)
			r.Get("/{id}/related", h.Poem.Related)
			r.Get("/{id}/ws", h.Poem.Updates)
		})

		// ──── Author Routes (public) ────
		r.Route("/authors", func(r chi.Router) {
			r.Get("/", h.Poem.ListAuthors)
			r.Get("/{id}", h.Poem.GetAuthor)
			r.Get("/{id}/poems", h.Poem.AuthorPoems)
		})

		// ──── AI Routes ────
		r.Route("/ai", func(r chi.Router) {
			r.Use(aiLimiter.Middleware)
			r.Post("/analysis", h.Analysis.Analyze)
			r.Post("/chat", h.Chat.AskQuestion)
		})

		// ──── Chat Session Routes ────
		r.Route("/chat/sessions", func(r chi.Router) {
			// The websocket carries its token in the query string.
			r.Get("/{id}/ws", h.Chat.Stream)

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Optional)
				r.Post("/", h.Chat.CreateSession)
				r.Get("/{id}", h.Chat.GetSession)
				r.Delete("/{id}", h.Chat.DeleteSession)
				r.Post("/{id}/open", h.Chat.Open)
				r.Post("/{id}/close", h.Chat.Close)
				r.With(aiLimiter.Middleware).Post("/{id}/messages", h.Chat.SendMessage)
				r.Delete("/{id}/messages", h.Chat.ClearMessages)
			})
		})
	})

	return r, func() {
		authLimiter.Stop()
		aiLimiter.Stop()
	}
}
