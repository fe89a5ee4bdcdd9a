package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPermanentCloneError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"NilError", nil, false},
		{"Unauthorized", errors.New("401 Unauthorized"), true},
		{"Forbidden", errors.New("403 Forbidden"), true},
		{"NotFound", errors.New("404 Not Found"), true},
		{"TooManyRequests", errors.New("429 Too Many Requests"), false},
		{"Unrelated", errors.New("connection reset by peer"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsPermanentCloneError(tt.err))
		})
	}
}

func TestIsTooManyRequestsError(t *testing.T) {
	assert.True(t, IsTooManyRequestsError(errors.New("429 Too Many Requests")))
	assert.False(t, IsTooManyRequestsError(errors.New("500 Internal Server Error")))
	assert.False(t, IsTooManyRequestsError(nil))
}

func TestIsServiceUnavailableError(t *testing.T) {
	assert.True(t, IsServiceUnavailableError(errors.New("503 Service Unavailable")))
	assert.False(t, IsServiceUnavailableError(nil))
}
