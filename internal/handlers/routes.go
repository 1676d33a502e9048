package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes wires the public endpoints. auth guards everything except
// registration.
func RegisterRoutes(router gin.IRouter, messages *MessageHandler, notifications *NotificationHandler, users *UserHandler, auth gin.HandlerFunc, limit gin.HandlerFunc) {
	router.POST("/users", users.Register)

	api := router.Group("/", auth)
	api.DELETE("/users/me", users.DeleteMe)
	api.GET("/users/me/edits", messages.MyEdits)

	api.POST("/messages", limit, messages.PostMessage)
	api.GET("/messages/unread", messages.ListUnread)
	api.GET("/messages/unread/count", messages.UnreadCount)
	api.GET("/messages/unread/summary", messages.UnreadSummary)
	api.POST("/messages/read-all", limit, messages.MarkAllRead)
	api.GET("/messages/:message_id", messages.GetMessage)
	api.PATCH("/messages/:message_id", limit, messages.EditMessage)
	api.DELETE("/messages/:message_id", limit, messages.DeleteMessage)
	api.POST("/messages/:message_id/read", messages.MarkRead)
	api.POST("/messages/:message_id/revert/:history_id", limit, messages.RevertMessage)
	api.GET("/messages/:message_id/history", messages.History)
	api.GET("/messages/:message_id/timeline", messages.Timeline)
	api.GET("/messages/:message_id/original", messages.Original)
	api.GET("/messages/:message_id/thread", messages.Thread)
	api.GET("/conversations/:user_id", messages.Conversation)

	api.GET("/notifications", notifications.List)
	api.POST("/notifications/read", notifications.MarkRead)
}
