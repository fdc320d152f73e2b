package server

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"multitalk-worker/config"
	"multitalk-worker/internal/router"
	"multitalk-worker/internal/service"
	"multitalk-worker/log"
)

// StartBackend builds the pipeline and serves the worker API. Blocks until
// the listener fails.
func StartBackend() error {
	svc, err := service.NewService()
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	router.SetupRouter(engine, svc)

	addr := fmt.Sprintf("%s:%d", config.Conf.Server.Host, config.Conf.Server.Port)
	log.GetLogger().Info("worker listening", zap.String("addr", addr))
	return engine.Run(addr)
}
