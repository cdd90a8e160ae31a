package server

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteStatic, ChainMiddleware(s.StaticHandler(), s.LoggingMiddleware))

	s.RegisterRouteFunc("GET "+RouteRoot+"{$}", ChainMiddleware(s.IndexHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteFunc("GET "+RouteAccount, ChainMiddleware(s.AccountHandler(), s.HTMLMiddleWare(s.RequireLogin)...))

	s.RegisterRouteFunc("GET "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.BaseMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteURSCallback, ChainMiddleware(s.URSCallbackHandler(), s.BaseMiddleware()...))

	// No refresh before these two: logout discards the tokens and refresh_token refreshes itself.
	s.RegisterRouteFunc("GET "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.BaseMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteRefreshToken, ChainMiddleware(s.RefreshTokenHandler(), s.BaseMiddleware()...))

	s.RegisterRouteFunc("GET "+RouteSession, ChainMiddleware(s.SessionStatusHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteRecentDatasets, ChainMiddleware(s.RecentDatasetsHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteRecentDatasets, ChainMiddleware(s.UseDatasetHandler(), s.APIMiddleware()...))

	s.RegisterRouteFunc("POST "+RouteOrders, ChainMiddleware(s.CreateOrderHandler(), s.APIMiddleware(s.RequireLogin, s.OrderRateLimitMiddleware)...))
}
