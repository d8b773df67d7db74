package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tapspot/api/middleware"
)

const serviceName = "tapspot"

// NewRouter собирает gin с общими middleware, API и /metrics
func NewRouter(log *zap.Logger, h Handlers, tokens middleware.TokenParser, limiter middleware.Limiter, corsOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.PrometheusMiddleware(serviceName))
	router.Use(cors.New(corsConfig(corsOrigins)))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	PublicApi(router, h, tokens, limiter)
	return router
}

func corsConfig(origins []string) cors.Config {
	conf := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		conf.AllowAllOrigins = true
		conf.AllowCredentials = false
	} else {
		conf.AllowOrigins = origins
	}
	return conf
}
