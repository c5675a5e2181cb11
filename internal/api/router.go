package api

import (
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// NewServer builds the echo instance with every route registered.
func NewServer(h *Handler, maxUploadMB int, logger *slog.Logger) *echo.Echo {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	if maxUploadMB > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", maxUploadMB)))
	}
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			)
			return nil
		},
	}))
	Register(e, h)
	return e
}

// Register mounts the routes on e. The /delete-document and
// /summarize-document paths are kept for older clients.
func Register(e *echo.Echo, h *Handler) {
	e.GET("/health", h.Health)

	e.POST("/upload-document", h.Upload)
	e.POST("/chat", h.Chat)

	e.GET("/documents", h.ListDocuments)
	e.GET("/documents/:id", h.GetDocument)
	e.DELETE("/documents/:id", h.DeleteDocument)
	e.POST("/documents/:id/summary", h.Summarize)

	e.DELETE("/delete-document/:id", h.DeleteDocument)
	e.POST("/summarize-document/:id", h.Summarize)

	e.POST("/index/rebuild", h.Rebuild)
}
