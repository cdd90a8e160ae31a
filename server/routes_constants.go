package server

// Route path constants
const (
	RouteRoot   = "/"
	RouteStatic = "/static/"

	// Login & Logout
	RouteLogin        = "/login"
	RouteLogout       = "/logout"
	RouteURSCallback  = "/urs_callback"
	RouteRefreshToken = "/refresh_token"
	RouteSession      = "/session"
	RouteAccount      = "/account"

	// Datasets
	RouteRecentDatasets = "/datasets/recent"

	// Orders
	RouteOrders = "/orders"
)
