package http

import (
	"github.com/rs/zerolog"

	"github.com/gke-notify/internal/application/notification"
)

// Deps holds what the router needs from the application layer.
type Deps struct {
	Notifications notification.Service
	Logger        zerolog.Logger
}
