// Package api exposes the HTTP surface: credential endpoints, session
// management, token rotation, and the health probe.
package api

import (
	"log/slog"

	"github.com/finbridge/authcore/internal/auth"
)

// Handler carries the dependencies shared by all endpoint groups.
type Handler struct {
	service *auth.Service
	log     *slog.Logger

	// trustProxyHeaders controls whether X-Forwarded-For is believed when
	// extracting client IPs.
	trustProxyHeaders bool
}

func NewHandler(service *auth.Service, trustProxyHeaders bool, log *slog.Logger) *Handler {
	return &Handler{service: service, trustProxyHeaders: trustProxyHeaders, log: log}
}
