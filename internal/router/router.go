package router

import (
	"github.com/gin-gonic/gin"

	"multitalk-worker/internal/handler"
	"multitalk-worker/internal/service"
)

func SetupRouter(r *gin.Engine, svc *service.Service) {
	hdl := handler.NewHandler(svc)

	r.POST("/run", hdl.RunJob)
	r.GET("/history", hdl.JobHistory)
	r.GET("/healthz", hdl.Healthz)
}
