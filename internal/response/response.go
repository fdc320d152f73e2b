package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "multitalk-worker/pkg/errors"
)

// Result is the worker's wire-level result envelope. Status follows HTTP
// semantics: 200 success, 400 malformed request, 500 any downstream failure.
type Result struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
}

// Success returns a 200 result with payload.
func Success(message string, payload any) Result {
	return Result{Status: 200, Message: message, Payload: payload}
}

// Failure maps an error to a result. Invalid-parameter errors are the
// caller's fault (400); everything else is a downstream failure (500).
func Failure(err error) Result {
	status := 500
	if apperrors.Is(err, apperrors.CodeInvalidParams) {
		status = 400
	}
	return Result{Status: status, Message: apperrors.GetMessage(err)}
}

// R writes a result. The transport-level status is always 200; the job
// outcome lives in the envelope, matching the serverless platform contract.
func R(c *gin.Context, result Result) {
	c.JSON(http.StatusOK, result)
}
