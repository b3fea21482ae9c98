package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	debatehandler "github.com/zhouzirui/debate-arena/backend/internal/handler/debate"
	"github.com/zhouzirui/debate-arena/backend/internal/handler/directory"
	middlewarePkg "github.com/zhouzirui/debate-arena/backend/internal/middleware"
	debateservice "github.com/zhouzirui/debate-arena/backend/internal/service/debate"
	"github.com/zhouzirui/debate-arena/backend/pkg/utils"
)

// ServiceName is reported by the health and info endpoints.
const ServiceName = "debate-relay"

// NewRouter wires HTTP routes to core services.
func NewRouter(registry *debateservice.Registry, realtime *debatehandler.WebSocketHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS())

	r.Get("/", handleInfo)
	r.Get("/health", handleHealth)

	// Realtime event socket
	realtime.RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		directory.New(registry).RegisterRoutes(api)
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": ServiceName,
	})
}

func handleInfo(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"service": ServiceName,
		"endpoints": map[string]string{
			"websocket": "/ws",
			"health":    "/health",
			"debates":   "/api/debates",
			"messages":  "/api/debates/{roomID}/messages",
		},
	})
}
