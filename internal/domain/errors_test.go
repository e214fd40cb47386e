package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors(t *testing.T) {
	taxonomy := []error{
		ErrPlanNotFound, ErrCyclicDependency, ErrInsufficientResources,
		ErrComponentRestore, ErrHealthCheckTimeout, ErrPostActionFailed,
		ErrVerificationFailed, ErrRollbackFailed,
	}

	for i, a := range taxonomy {
		for j, b := range taxonomy {
			assert.Equal(t, i == j, errors.Is(a, b), "%v vs %v", a, b)
		}
	}
}

func TestWrappedErrorsMatch(t *testing.T) {
	err := fmt.Errorf("%w: components [a b] never became eligible", ErrCyclicDependency)

	assert.True(t, errors.Is(err, ErrCyclicDependency))
	assert.False(t, errors.Is(err, ErrInvalidPlan))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "plan not found", ErrPlanNotFound.Error())
	assert.Equal(t, "emergency stop is active", ErrEmergencyStop.Error())
	assert.Equal(t, "operation timed out", ErrTimeout.Error())
}
