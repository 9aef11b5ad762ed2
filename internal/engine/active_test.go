package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveTimeRange(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		timeRange string
		wantDays  int
		wantErr   bool
	}{
		{"singular day", "1day", 1, false},
		{"plural days", "7days", 7, false},
		{"extra whitespace", "  30 days ", 30, false},
		{"zero days rejected", "0days", 0, true},
		{"negative rejected", "-3days", 0, true},
		{"garbage rejected", "a week", 0, true},
		{"empty rejected", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := resolveTimeRange(tt.timeRange, now)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.True(t, end.Equal(now), "end = %v, want %v", end, now)
			wantStart := now.Add(-time.Duration(tt.wantDays) * 24 * time.Hour)
			require.True(t, start.Equal(wantStart), "start = %v, want %v", start, wantStart)
		})
	}
}

func TestErrLockHeld_Error(t *testing.T) {
	err := ErrLockHeld{HeldKind: "passive"}
	require.Equal(t, "another passive workflow is already running", err.Error())
}
