package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/middleware"
)

// Router registers the API on an echo instance.
type Router struct {
	engine   *phoneauth.Engine
	handlers *Handler
	basePath string
	metrics  http.Handler
}

// NewRouter returns a router for engine mounted under basePath. metrics, when
// non-nil, is served on GET /metrics outside basePath.
func NewRouter(engine *phoneauth.Engine, basePath string, metrics http.Handler) *Router {
	return &Router{engine: engine, handlers: NewHandler(engine), basePath: basePath, metrics: metrics}
}

// Setup installs the shared middleware and every route.
func (r *Router) Setup(e *echo.Echo) {
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	e.GET("/healthz", r.handlers.Health)
	if r.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(r.metrics))
	}

	h := r.handlers
	api := e.Group(r.basePath)

	auth := api.Group("/auth")
	auth.POST("/phone/send", h.SendCode)
	auth.POST("/phone/verify", h.VerifyCode)
	auth.POST("/federated", h.FederatedLogin)
	auth.POST("/federated/phone/send", h.SendFederatedPhoneCode)
	auth.POST("/federated/phone/verify", h.VerifyFederatedPhone)
	auth.POST("/refresh", h.Refresh)

	protected := api.Group("", echo.WrapMiddleware(middleware.RequireSession(r.engine)))
	protected.POST("/auth/logout", h.Logout)
	protected.GET("/me", h.Me)
	protected.DELETE("/me", h.ScheduleDeletion)
	protected.GET("/me/devices", h.ListDevices)
	protected.PUT("/me/devices/current/push-token", h.UpdatePushToken)
	protected.POST("/me/onboarding/profile", h.SaveProfile)
	protected.POST("/me/onboarding/interests", h.SaveInterests)
	protected.POST("/me/onboarding/recommendations", h.AcknowledgeRecommendations)
	protected.POST("/me/email/change", h.RequestEmailChange)
	protected.POST("/me/email/change/confirm", h.ConfirmEmailChange)
	protected.POST("/me/phone/change", h.RequestPhoneChange)
	protected.POST("/me/phone/change/confirm", h.ConfirmPhoneChange)
	protected.POST("/me/email/verify", h.RequestEmailVerification)
	protected.POST("/me/email/verify/confirm", h.ConfirmEmailVerification)

	admin := protected.Group("/admin", echo.WrapMiddleware(middleware.RequireRole(phoneauth.RoleAdmin)))
	admin.GET("/security-report", h.SecurityReport)
}
