package router

import (
	"context"

	authapp "direct_chat_service/internal/auth/app"
	"direct_chat_service/internal/api/handlers"
	chatapp "direct_chat_service/internal/chat/app"
	"direct_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 注册 auth, route and websocket 路由
func RegisterRoutes(app *fiber.App, authHandler *authapp.AuthHandler, routeHandler *handlers.RouteHandler, chatWebsocket *chatapp.ChatWebsocketHandler) {
	app.Get("/", handlers.ConnectCheck)
	app.Post("/debug", handlers.DebugLogFlag)
	app.Get("/route", routeHandler.Resolve)

	authRoutes := app.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/session", authHandler.Session)
	authRoutes.Post("/logout", middlewares.JWTMiddleware(), authHandler.Logout)

	app.Use("/ws", middlewares.JWTMiddleware(), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		chatWebsocket.HandleConnection(context.Background(), c)
	}))
}
