package router

import (
	"chat_realtime_service/internal/api/handlers"
	"chat_realtime_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 注册 REST 路由
func RegisterRoutes(app *fiber.App, memberHandler *handlers.MemberHandler, chatHandler *handlers.ChatHandler) {
	app.Get("/", handlers.ConnectCheck)
	app.Post("/debug", handlers.DebugLogFlag)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	authRoutes := app.Group("/auth")
	authRoutes.Post("/register", memberHandler.Register)
	authRoutes.Post("/login", memberHandler.Login)
	authRoutes.Post("/refresh", memberHandler.Refresh)

	auth := middlewares.JWTMiddleware()

	authRoutes.Post("/logout", auth, memberHandler.Logout)
	authRoutes.Get("/me", auth, memberHandler.Me)

	// 固定路徑要在 /:id 之前
	userRoutes := app.Group("/users", auth)
	userRoutes.Get("/search", memberHandler.Search)
	userRoutes.Get("/contacts", memberHandler.Contacts)
	userRoutes.Get("/me", memberHandler.Me)
	userRoutes.Patch("/me", memberHandler.UpdateMe)
	userRoutes.Post("/me/change-password", memberHandler.ChangePassword)
	userRoutes.Get("/:id", memberHandler.Profile)
	userRoutes.Get("/:id/presence", memberHandler.Presence)

	chatRoutes := app.Group("/chats", auth)
	chatRoutes.Get("/", chatHandler.ListChats)
	chatRoutes.Get("/search", chatHandler.SearchChats)
	chatRoutes.Get("/:chatId", chatHandler.GetChat)
	chatRoutes.Patch("/:chatId", chatHandler.UpdateGroup)
	chatRoutes.Post("/private", chatHandler.OpenPrivate)
	chatRoutes.Post("/group", chatHandler.CreateGroup)
	chatRoutes.Post("/:chatId/join", chatHandler.JoinChat)
	chatRoutes.Post("/:chatId/leave", chatHandler.LeaveChat)
	chatRoutes.Post("/:chatId/members", chatHandler.AddMember)
	chatRoutes.Delete("/:chatId/members/:userId", chatHandler.RemoveMember)
	chatRoutes.Get("/:chatId/messages", chatHandler.History)
	chatRoutes.Post("/:chatId/messages", chatHandler.SendMessage)
	chatRoutes.Post("/:chatId/messages/read", chatHandler.MarkRead)
	chatRoutes.Get("/:chatId/messages/unread-count", chatHandler.UnreadCount)

	messageRoutes := app.Group("/messages", auth)
	messageRoutes.Patch("/:id", chatHandler.EditMessage)
	messageRoutes.Delete("/:id", chatHandler.DeleteMessage)

	notificationRoutes := app.Group("/notifications", auth)
	notificationRoutes.Get("/", chatHandler.ListNotifications)
	notificationRoutes.Get("/unread-count", chatHandler.NotificationUnreadCount)
	notificationRoutes.Patch("/read-all", chatHandler.MarkAllNotificationsRead)
	notificationRoutes.Patch("/:id/read", chatHandler.MarkNotificationRead)
	notificationRoutes.Delete("/:id", chatHandler.DeleteNotification)

	app.Post("/attachments", auth, chatHandler.UploadAttachments)
}
