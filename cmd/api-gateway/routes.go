package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/swebuk/portal-api/internal/handler"
	internalmiddleware "github.com/swebuk/portal-api/internal/middleware"
	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/pkg/config"
	"github.com/swebuk/portal-api/pkg/logger"
	corsmiddleware "github.com/swebuk/portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/swebuk/portal-api/pkg/middleware/requestid"
)

type routeDeps struct {
	auth    internalmiddleware.TokenValidator
	metrics internalmiddleware.RequestObserver
	audit   internalmiddleware.AuditWriter

	health    *handler.MetricsHandler
	auths     *handler.AuthHandler
	users     *handler.UserHandler
	fyps      *handler.FYPHandler
	files     *handler.FileHandler
	sessions  *handler.SessionHandler
	clusters  *handler.ClusterHandler
	events    *handler.EventHandler
	posts     *handler.BlogHandler
	dashboard *handler.DashboardHandler
}

// multipartOverhead covers form fields and part headers around the file.
const multipartOverhead = 1 << 20

func uploadBodyLimit(maxFile int64) int64 {
	if maxFile <= 0 {
		return 0
	}
	return maxFile + multipartOverhead
}

func newRouter(cfg *config.Config, logr *zap.Logger, d routeDeps) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(d.metrics))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", d.health.Health)
	r.GET("/ready", d.health.Ready)
	r.GET("/metrics", d.health.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Flat-body contract kept for existing event pages.
	r.POST("/api/events/guest-register", d.events.GuestRegister)

	authRequired := internalmiddleware.JWT(d.auth)
	authOptional := internalmiddleware.OptionalJWT(d.auth)
	staff := internalmiddleware.RequireRoles(models.RoleStaff, models.RoleAdmin)
	uploadLimit := internalmiddleware.LimitBody(uploadBodyLimit(cfg.Storage.MaxFileSizeBytes))
	audit := func(action, resource string) gin.HandlerFunc {
		return internalmiddleware.Audit(d.audit, logr, action, resource)
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/signup", d.auths.Signup)
	auth.POST("/login", d.auths.Login)
	auth.POST("/refresh", d.auths.Refresh)
	auth.POST("/logout", authRequired, d.auths.Logout)
	auth.GET("/me", authRequired, d.auths.Me)
	auth.POST("/change-password", authRequired, d.auths.ChangePassword)

	api.GET("/files/download", d.files.Download)

	secured := api.Group("")
	secured.Use(authRequired)

	users := secured.Group("/users")
	users.GET("", staff, d.users.List)
	users.PATCH("/:id/role", internalmiddleware.RequireRoles(models.RoleAdmin), d.users.SetRole)
	users.PATCH("/:id/level", staff, d.users.SetLevel)

	fyp := secured.Group("/fyp")
	fyp.POST("/proposal", uploadLimit, d.fyps.SubmitProposal)
	fyp.GET("/me", d.fyps.Mine)
	fyp.GET("", staff, d.fyps.List)
	fyp.GET("/export", staff, d.fyps.Export)
	fyp.POST("/submissions", uploadLimit, d.fyps.SubmitDocument)
	fyp.POST("/submissions/:id/review", staff, d.fyps.Review)
	fyp.GET("/submissions/:id/download-url", d.fyps.DownloadURL)
	fyp.GET("/:id", d.fyps.Get)
	fyp.GET("/:id/submissions", d.fyps.History)
	fyp.PATCH("/:id/progress", d.fyps.UpdateProgress)
	fyp.PATCH("/:id/status", d.fyps.SetStatus)
	fyp.PUT("/:id/supervisor", staff, audit(models.AuditActionSupervisor, "fyp"), d.fyps.AssignSupervisor)

	sessions := secured.Group("/sessions")
	sessions.GET("", d.sessions.List)
	sessions.GET("/active", d.sessions.Active)
	sessions.POST("", staff, audit(models.AuditActionSessionCreate, "session"), d.sessions.Create)
	sessions.POST("/:id/activate", staff, audit(models.AuditActionSessionSwitch, "session"), d.sessions.Activate)
	sessions.POST("/roll-forward", staff, d.sessions.RollForward)

	clusters := secured.Group("/clusters")
	clusters.POST("", staff, audit(models.AuditActionClusterCreate, "cluster"), d.clusters.CreateCluster)
	clusters.GET("", d.clusters.ListClusters)
	clusters.GET("/:id", d.clusters.GetCluster)
	clusters.PUT("/:id/leadership", staff, audit(models.AuditActionLeadership, "cluster"), d.clusters.UpdateLeadership)
	clusters.POST("/:id/join", d.clusters.Join(models.GroupCluster))
	clusters.GET("/:id/members", d.clusters.Members(models.GroupCluster))
	clusters.POST("/:id/members/:memberId/review", d.clusters.ReviewMember(models.GroupCluster))

	projects := secured.Group("/projects")
	projects.POST("", d.clusters.CreateProject)
	projects.GET("", d.clusters.ListProjects)
	projects.GET("/:id", d.clusters.GetProject)
	projects.POST("/:id/join", d.clusters.Join(models.GroupProject))
	projects.GET("/:id/members", d.clusters.Members(models.GroupProject))
	projects.POST("/:id/members/:memberId/review", d.clusters.ReviewMember(models.GroupProject))

	secured.GET("/memberships/me", d.clusters.MyMemberships)

	// Anonymous readers see published events and posts only.
	api.GET("/events", authOptional, d.events.List)
	api.GET("/events/:id", authOptional, d.events.Get)
	events := secured.Group("/events")
	events.POST("", d.events.Create)
	events.PATCH("/:id/status", audit(models.AuditActionEventStatus, "event"), d.events.SetStatus)
	events.POST("/:id/register", d.events.Register)
	events.DELETE("/:id/register", d.events.CancelRegistration)
	events.GET("/:id/registrations/export", d.events.ExportRegistrations)

	api.GET("/posts", authOptional, d.posts.List)
	api.GET("/posts/:id", authOptional, d.posts.Get)
	posts := secured.Group("/posts")
	posts.POST("", d.posts.Create)
	posts.PUT("/:id", d.posts.Update)
	posts.POST("/:id/submit", d.posts.Submit)
	posts.POST("/:id/moderate", audit(models.AuditActionPostModerate, "post"), d.posts.Moderate)

	secured.GET("/dashboard", d.dashboard.Summary)

	return r
}
