package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpectedStartBuffer(t *testing.T) {
	tests := []struct {
		delay time.Duration
		want  time.Duration
	}{
		{KickoffDelay, time.Duration(0.3*float64(KickoffDelay)) + 10*time.Minute},
		{DispatcherInterval, time.Duration(0.3*float64(DispatcherInterval)) + 10*time.Minute},
		{0, 10 * time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, expectedStartBuffer(tt.delay))
	}
}
