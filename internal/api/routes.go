package api

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		scans := v1.Group("/scans")
		{
			scans.POST("", s.handleStartScan)
			scans.GET("", s.handleListScans)
			scans.GET("/:id", s.handleScanStatus)
			scans.GET("/:id/recommendations", s.handleScanRecommendations)
		}
	}

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/", s.handleRoot)
}
