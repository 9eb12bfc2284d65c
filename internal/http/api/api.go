// Package api wires the HTTP routes of the marketplace.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/router-for-me/GroupBuyBusiness/internal/apperr"
	"github.com/router-for-me/GroupBuyBusiness/internal/auth"
	"github.com/router-for-me/GroupBuyBusiness/internal/catalog"
	"github.com/router-for-me/GroupBuyBusiness/internal/http/api/handlers"
	"github.com/router-for-me/GroupBuyBusiness/internal/lifecycle"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"github.com/router-for-me/GroupBuyBusiness/internal/notify"
	"github.com/router-for-me/GroupBuyBusiness/internal/ratelimit"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const requestIDHeader = "X-Request-ID"

// Fixed per-route budgets for the unauthenticated auth endpoints.
var (
	registerRule = ratelimit.Rule{Name: "register", Limit: 5, Window: 15 * time.Minute}
	loginRule    = ratelimit.Rule{Name: "login", Limit: 10, Window: 15 * time.Minute}
	resendRule   = ratelimit.Rule{Name: "resend-otp", Limit: 3, Window: 10 * time.Minute}
	forgotRule   = ratelimit.Rule{Name: "request-reset-password", Limit: 3, Window: 10 * time.Minute}
	resetRule    = ratelimit.Rule{Name: "reset-password", Limit: 5, Window: 15 * time.Minute}
	refreshRule  = ratelimit.Rule{Name: "refresh", Limit: 30, Window: 15 * time.Minute}
)

// Deps carries the services behind the routes.
type Deps struct {
	DB      *gorm.DB
	Auth    *auth.Service
	Catalog *catalog.Service
	Groups  *lifecycle.Service
	Inbox   *notify.StoreNotifier
	Limits  *ratelimit.Manager
	// VerifyRule bounds OTP verification attempts per client.
	VerifyRule ratelimit.Rule
}

// NewRouter builds a gin engine with every route registered.
func NewRouter(deps Deps) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(accessLogMiddleware())
	engine.Use(corsMiddleware())
	RegisterRoutes(engine, deps)
	return engine
}

// RegisterRoutes registers the public API.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	authn := authMiddleware(deps.Auth)

	authHandler := handlers.NewAuthHandler(deps.Auth)
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", ratelimit.Middleware(deps.Limits, registerRule), authHandler.Register)
	authGroup.POST("/verify-otp", ratelimit.Middleware(deps.Limits, deps.VerifyRule), authHandler.VerifyOTP)
	authGroup.POST("/resend-otp", ratelimit.Middleware(deps.Limits, resendRule), authHandler.ResendOTP)
	authGroup.POST("/login", ratelimit.Middleware(deps.Limits, loginRule), authHandler.Login)
	authGroup.POST("/refresh", ratelimit.Middleware(deps.Limits, refreshRule), authHandler.Refresh)
	authGroup.POST("/logout", authHandler.Logout)
	authGroup.POST("/request-reset-password", ratelimit.Middleware(deps.Limits, forgotRule), authHandler.RequestPasswordReset)
	authGroup.POST("/reset-password", ratelimit.Middleware(deps.Limits, resetRule), authHandler.ResetPassword)
	authGroup.GET("/me", authn, authHandler.Me)

	productHandler := handlers.NewProductHandler(deps.Catalog)
	v1.GET("/products", productHandler.List)
	v1.GET("/products/:id", productHandler.Get)
	v1.POST("/products", authn, requireRole(models.UserRoleSupplier), productHandler.Create)
	v1.POST("/products/:id/archive", authn, requireRole(models.UserRoleSupplier, models.UserRoleAdmin), productHandler.Archive)

	groupHandler := handlers.NewGroupHandler(deps.Groups)
	v1.GET("/groups", groupHandler.List)
	v1.GET("/groups/:id", groupHandler.Get)
	v1.POST("/groups", authn, requireRole(models.UserRoleSupplier, models.UserRoleAdmin), groupHandler.Create)
	v1.POST("/groups/:id/join", authn, groupHandler.Join)
	v1.POST("/groups/:id/leave", authn, groupHandler.Leave)
	v1.POST("/groups/:id/final-payment", authn, groupHandler.PayFinal)
	v1.PATCH("/groups/:id", authn, requireRole(models.UserRoleSupplier, models.UserRoleAdmin), groupHandler.Update)
	v1.POST("/groups/:id/cancel", authn, requireRole(models.UserRoleSupplier, models.UserRoleAdmin), groupHandler.Cancel)

	me := v1.Group("/users/me")
	me.Use(authn)
	me.GET("/groups", groupHandler.ListMine)
	me.GET("/products", requireRole(models.UserRoleSupplier), productHandler.ListMine)

	notificationHandler := handlers.NewNotificationHandler(deps.Inbox)
	me.GET("/notifications", notificationHandler.List)
	me.POST("/notifications/:id/read", notificationHandler.MarkRead)

	admin := v1.Group("/admin")
	admin.Use(authn, requireRole(models.UserRoleAdmin))
	admin.GET("/products", productHandler.ListForReview)
	admin.POST("/products/:id/review", productHandler.Review)
}

// authMiddleware validates bearer tokens and loads the user into the context.
func authMiddleware(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header", "kind": apperr.KindUnauthorized.String()})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format", "kind": apperr.KindUnauthorized.String()})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token", "kind": apperr.KindUnauthorized.String()})
			return
		}

		user, errAuth := svc.Authenticate(c.Request.Context(), token)
		if errAuth != nil {
			handlers.WriteError(c, errAuth)
			return
		}
		c.Set(handlers.ContextUserKey, user)
		c.Next()
	}
}

// requireRole rejects users whose role is not listed.
func requireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := handlers.CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "kind": apperr.KindUnauthorized.String()})
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role", "kind": apperr.KindForbidden.String()})
	}
}

// requestIDMiddleware propagates or assigns a request id.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := log.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
			"request_id": c.GetString("requestID"),
		}
		if user := handlers.CurrentUser(c); user != nil {
			fields["user_id"] = user.ID
		}
		entry := log.WithFields(fields)
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request")
			return
		}
		entry.Debug("request")
	}
}

// corsMiddleware enables permissive CORS for browser clients.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
