package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"multitalk-worker/internal/dto"
	"multitalk-worker/internal/response"
	"multitalk-worker/internal/service"
	"multitalk-worker/internal/storage"
	"multitalk-worker/log"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) Handler {
	return Handler{svc: svc}
}

// RunJob accepts one job payload, processes it synchronously, and returns the
// structured result. The platform hands the worker one job at a time.
func (h Handler) RunJob(c *gin.Context) {
	// Decode with UseNumber so 16-digit seeds survive intact; the default
	// float64 decoding rounds integers above 2^53.
	decoder := json.NewDecoder(c.Request.Body)
	decoder.UseNumber()
	var input map[string]any
	if err := decoder.Decode(&input); err != nil {
		log.GetLogger().Error("RunJob payload error", zap.Error(err))
		response.R(c, response.Result{Status: 400, Message: "Invalid job payload: " + err.Error()})
		return
	}

	req, err := dto.ParseJobRequest(input)
	if err != nil {
		log.GetLogger().Error("RunJob param error", zap.Error(err))
		response.R(c, response.Failure(err))
		return
	}

	payload, err := h.svc.ProcessJob(req)
	if err != nil {
		log.GetLogger().Error("RunJob failed", zap.Error(err))
		response.R(c, response.Failure(err))
		return
	}

	response.R(c, response.Success("Video created successfully", payload))
}

// JobHistory lists the most recently finished jobs.
func (h Handler) JobHistory(c *gin.Context) {
	records, err := storage.RecentRecords(50)
	if err != nil {
		log.GetLogger().Error("JobHistory failed", zap.Error(err))
		response.R(c, response.Failure(err))
		return
	}
	response.R(c, response.Success("success", records))
}

// Healthz is the worker's own liveness probe.
func (h Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
