package router

import (
	"context"

	"chat_realtime_service/internal/chat/app"
	"chat_realtime_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 注册 websocket 路由，token 在 upgrade 前驗證
func RegisterRoutes(r *fiber.App, chatWebsocket *app.ChatWebsocketHandler) {
	r.Use("/ws", middlewares.JWTMiddleware(), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		chatWebsocket.HandleConnection(context.Background(), c)
	}))
}
