package api

import (
	"net/http"
	"time"

	"github.com/postpilot/postpilot-backend/pkg/config"
)

// NewServer wraps handler in an http.Server bound to the configured port.
// Write timeout leaves room for a synchronous stop or tick request.
func NewServer(cfg config.AppConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      6 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
}
