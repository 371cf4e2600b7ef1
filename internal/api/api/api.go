package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"leadcapture/cmd/middleware"
	"leadcapture/internal/service"
)

type Routers struct {
	Service     service.Service
	AdminSecret string
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())
	apiGroup := app.Group("/v1")

	apiGroup.GET("/events", r.Service.GetAllEvents)
	apiGroup.GET("/events/:id", r.Service.GetInfo)
	apiGroup.POST("/events/:id/registrations", r.Service.Register)

	admin := apiGroup.Group("", middleware.AdminAuth(r.AdminSecret))
	admin.POST("/events", r.Service.CreateEvent)
	admin.GET("/events/:id/registrations", r.Service.ListRegistrations)
	admin.GET("/events/:id/export", r.Service.Export)

	app.GET("/healthz", func(c *ginext.Context) {
		c.JSON(200, map[string]string{"status": "ok"})
	})

	return app
}
