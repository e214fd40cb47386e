package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/drorchestrator/backend-go/internal/domain"
)

// statusFor maps domain sentinels to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPlanNotFound), errors.Is(err, domain.ErrExecutionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCyclicDependency),
		errors.Is(err, domain.ErrUnknownComponent),
		errors.Is(err, domain.ErrInvalidPlan),
		errors.Is(err, domain.ErrUnsupportedComponentType):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPlanInUse), errors.Is(err, domain.ErrExecutionFinished):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEmergencyStop):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"detail": err.Error()})
}
