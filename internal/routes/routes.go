package routes

import (
	"net/http"

	"damagedetect/internal/config"
	"damagedetect/internal/handlers"
	"damagedetect/internal/logger"
	"damagedetect/internal/metrics"
	"damagedetect/internal/middleware"
	"damagedetect/internal/services"
)

// SetupRoutes registers the upload page, API endpoints, metrics and log views,
// and wraps the mux with the authentication middleware.
func SetupRoutes(manager *services.Manager, cfg *config.Config, logger *logger.Logger, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	// Upload page
	mux.HandleFunc("GET /{$}", handlers.IndexHandler(manager, cfg, logger))
	mux.HandleFunc("POST /detect", handlers.DetectPageHandler(manager, cfg, logger))

	// API endpoints
	mux.HandleFunc("POST /api/detect", handlers.DetectAPIHandler(manager, cfg, logger))
	mux.HandleFunc("GET /api/status", handlers.StatusHandler(manager, logger))
	mux.HandleFunc("GET /api/live", handlers.LiveWebsocketHandler(manager, logger))

	// History endpoints
	mux.HandleFunc("GET /api/history", handlers.HistoryHandler(manager, logger))
	mux.HandleFunc("GET /api/history/image", handlers.HistoryImageHandler(manager))
	mux.HandleFunc("POST /api/history/delete", handlers.DeleteInferenceHandler(manager, logger))
	mux.HandleFunc("POST /api/history/clear", handlers.ClearHistoryHandler(manager, logger))

	// Metrics
	mux.Handle("GET /metrics", m.Handler())

	// Log endpoints
	for _, name := range []string{"info", "warning", "error"} {
		file := name + ".log"
		mux.HandleFunc("GET /logs/"+name, handlers.ShowLogsHandler(logger, file))
		mux.HandleFunc("POST /logs/"+name+"/clear", handlers.ClearLogsHandler(logger, file))
	}

	// Auth endpoints
	mux.HandleFunc("GET "+middleware.LoginPath, handlers.LoginPageHandler(logger))
	mux.HandleFunc("POST "+middleware.LoginPath, handlers.LoginHandler(cfg, logger))
	mux.HandleFunc(middleware.LogoutPath, handlers.LogoutHandler)

	return middleware.AuthMiddleware(cfg.Password)(mux)
}
