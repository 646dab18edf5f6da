package api

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	stream := s.router.Group("/stream")
	{
		stream.POST("/connect", s.streamHandler.Connect)
		stream.POST("/demo/:id", s.streamHandler.ConnectDemo)
		stream.GET("/demos", s.streamHandler.ListDemos)
		stream.POST("/disconnect", s.streamHandler.Disconnect)
		stream.GET("/status", s.streamHandler.Status)
		stream.POST("/media-error", s.streamHandler.ReportMediaError)
		stream.PUT("/alerts", s.streamHandler.SetAlerts)
		stream.GET("/preview.mjpeg", s.streamHandler.Preview)
	}

	s.router.GET("/events", s.eventsHandler.SSE)
	s.router.GET("/ws", s.eventsHandler.WebSocket)

	uploads := s.router.Group("/uploads")
	{
		uploads.POST("", s.uploadHandler.Create)
		uploads.GET("/:id", s.uploadHandler.Get)
	}

	system := s.router.Group("/system")
	{
		system.GET("/stats", s.systemHandler.GetStats)
	}
}
