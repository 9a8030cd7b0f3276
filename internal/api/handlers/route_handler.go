package handlers

import (
	"context"
	"time"

	"direct_chat_service/internal/chat/app"
	"direct_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
)

// RouteHandler answers which view a front end path resolves to
type RouteHandler struct {
	auth    app.AuthClient
	timeout time.Duration
}

// NewRouteHandler create RouteHandler
func NewRouteHandler(auth app.AuthClient, timeout time.Duration) *RouteHandler {
	return &RouteHandler{auth: auth, timeout: timeout}
}

// Resolve GET /route?path=/dashboard
func (h *RouteHandler) Resolve(c *fiber.Ctx) error {
	path := c.Query("path", "/")

	gate := app.NewSessionGate(h.auth, h.timeout)
	defer gate.Stop()
	gate.Start(context.Background(), middlewares.TokenFromRequest(c))

	view, redirect := gate.Resolve(path)
	return c.JSON(fiber.Map{
		"path":          path,
		"view":          view,
		"redirect":      redirect,
		"authenticated": gate.IsAuthenticated(),
	})
}
