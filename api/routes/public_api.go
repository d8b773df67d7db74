package routes

import (
	"github.com/gin-gonic/gin"

	"tapspot/api/handlers"
	"tapspot/api/middleware"
)

// Handlers набор обработчиков, из которых собирается API
type Handlers struct {
	Auth     *handlers.AuthHandlers
	Users    *handlers.UserHandlers
	Posts    *handlers.PostHandlers
	Comments *handlers.CommentHandlers
	Dialogs  *handlers.DialogHandlers
	WS       *handlers.WSHandler
	Health   *handlers.HealthHandler
}

func PublicApi(router *gin.Engine, h Handlers, tokens middleware.TokenParser, limiter middleware.Limiter) *gin.RouterGroup {
	api := router.Group("/api")
	api.GET("/health", h.Health.Health)
	api.POST("/register", h.Auth.Register)
	api.POST("/login", h.Auth.Login)

	// Чтение доступно без токена
	public := api.Group("/", middleware.OptionalAuth(tokens))
	{
		public.GET("posts", h.Posts.ListPosts)
		public.GET("posts/:id", h.Posts.GetPost)
		public.GET("posts/:id/comments", h.Comments.ListComments)
		public.GET("posts/:id/best-comment", h.Posts.BestComment)
		public.GET("posts/comments/count", h.Posts.CommentCounts)
		public.GET("comments/likes/count", h.Comments.LikeCounts)
		public.GET("users/search", h.Users.Search)
		public.GET("users/:id", h.Users.GetUser)
		public.GET("users/:id/posts", h.Users.UserPosts)
	}

	private := api.Group("/", middleware.AuthRequired(tokens))
	{
		private.POST("logout", h.Auth.Logout)
		private.GET("me", h.Auth.Me)
		private.PUT("me", h.Auth.UpdateMe)

		private.GET("posts/my", h.Posts.MyPosts)
		private.POST("posts", h.Posts.CreatePost)
		private.DELETE("posts/:id", h.Posts.DeletePost)
		private.POST("posts/:id/like", h.Posts.LikePost)
		private.POST("posts/:id/comments", h.Comments.CreateComment)
		private.GET("likes/check", h.Posts.CheckLikes)
		private.GET("likes/my", h.Posts.MyLikes)

		private.DELETE("comments/:id", h.Comments.DeleteComment)
		private.POST("comments/:id/like", h.Comments.LikeComment)
		private.GET("comments/likes/check", h.Comments.CheckLikes)

		private.GET("conversations", h.Dialogs.ListConversations)
		private.GET("conversations/with", h.Dialogs.WithUser)
		private.GET("conversations/:id/messages", h.Dialogs.ListMessages)
		private.POST("conversations/:id/read", h.Dialogs.MarkRead)
		private.GET("messages/unread", h.Dialogs.UnreadTotal)
		private.GET("ws", h.WS.Serve)
	}

	send := private.Group("/")
	if limiter != nil {
		send.Use(middleware.RateLimit(limiter))
	}
	send.POST("messages", h.Dialogs.SendMessage)

	return api
}
