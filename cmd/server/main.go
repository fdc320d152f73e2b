package main

import (
	"os"

	"go.uber.org/zap"

	"multitalk-worker/config"
	"multitalk-worker/internal/server"
	"multitalk-worker/internal/storage"
	"multitalk-worker/log"
)

func main() {
	created, err := config.LoadOrCreateConfig()
	if err != nil {
		panic("cannot load config: " + err.Error())
	}

	log.InitLogger(config.Conf.Paths.LogDir)
	defer log.GetLogger().Sync()

	if created {
		log.GetLogger().Info("default config written, continuing with defaults")
	}

	if err := config.CheckConfig(); err != nil {
		log.GetLogger().Error("invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	if err := storage.InitDB(config.Conf.Paths.DB); err != nil {
		log.GetLogger().Error("cannot initialize job history store", zap.Error(err))
		os.Exit(1)
	}

	if err := server.StartBackend(); err != nil {
		log.GetLogger().Error("worker failed", zap.Error(err))
		os.Exit(1)
	}
}
