package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/firstaidvox/gateway/internal/handler/chat"
	"github.com/firstaidvox/gateway/internal/handler/speech"
	"github.com/firstaidvox/gateway/internal/handler/stream"
	middlewarePkg "github.com/firstaidvox/gateway/internal/middleware"
	agentService "github.com/firstaidvox/gateway/internal/service/agent"
	speechService "github.com/firstaidvox/gateway/internal/service/speech"
	triageService "github.com/firstaidvox/gateway/internal/service/triage"
	"github.com/firstaidvox/gateway/pkg/utils"
)

// NewRouter wires HTTP routes to core services. agentSvc and speechSvc may be
// nil; the routes that need them then report unavailable.
func NewRouter(triageSvc *triageService.Service, agentSvc *agentService.Service, speechSvc *speechService.Service, placesEnabled bool) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(triageSvc)

	var streamHandler *stream.Handler
	if agentSvc != nil {
		streamHandler = stream.New(agentSvc, triageSvc)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"services": map[string]bool{
				"agent":  agentSvc != nil,
				"speech": speechSvc != nil && speechSvc.Enabled(),
				"places": placesEnabled,
			},
		})
	})

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)

		api.Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionID")
			userMessage := r.URL.Query().Get("message")

			if streamHandler == nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "streaming requires a local model")
				return
			}
			if userMessage == "" {
				utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
				return
			}

			if err := streamHandler.HandleStreamRequest(r.Context(), w, sessionID, userMessage); err != nil {
				log.Printf("[stream] error handling request: %v", err)
			}
		})

		if speechSvc != nil {
			speechHandler := speech.New(speechSvc, triageSvc)
			speechHandler.RegisterRoutes(api)
		}
	})

	return r
}
