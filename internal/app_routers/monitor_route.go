package approuters

import (
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/configuration"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func MonitorRouters(router *gin.Engine, container *configuration.Container) {
	router.GET("/health", container.MonitorHandler.GetHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	monitorRoute := router.Group("/api/monitor")
	{
		monitorRoute.GET("/stats", container.MonitorHandler.GetHubStats)
	}
}
