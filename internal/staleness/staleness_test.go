package staleness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestForElapsed(t *testing.T) {
	tests := []struct {
		elapsed int64
		want    string
	}{
		{elapsed: -3, want: "Just Now"},
		{elapsed: 0, want: "Just Now"},
		{elapsed: 1, want: "Just Now"},
		{elapsed: 3, want: "Just Now"},
		{elapsed: 4, want: "Just Now"},
		{elapsed: 5, want: "Just Now"},
		{elapsed: 8, want: "Just Now"},
		{elapsed: 10, want: "Just Now"},
		{elapsed: 11, want: "Few Seconds Ago"},
		{elapsed: 30, want: "Few Seconds Ago"},
		{elapsed: 31, want: "31 Seconds Ago"},
		{elapsed: 45, want: "45 Seconds Ago"},
		{elapsed: 59, want: "59 Seconds Ago"},
		{elapsed: 60, want: "1 Minutes Ago"},
		{elapsed: 89, want: "1 Minutes Ago"},
		{elapsed: 90, want: "2 Minutes Ago"},
		{elapsed: 125, want: "2 Minutes Ago"},
		{elapsed: 150, want: "3 Minutes Ago"},
		{elapsed: 3600, want: "60 Minutes Ago"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ForElapsed(tt.elapsed), "elapsed=%d", tt.elapsed)
	}
}

func TestLabel_Never(t *testing.T) {
	assert.Equal(t, Never, Label(time.Now(), time.Time{}))
}

func TestLabel_FromTimestamps(t *testing.T) {
	last := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		after time.Duration
		want  string
	}{
		{"three seconds", 3 * time.Second, "Just Now"},
		{"forty five seconds", 45 * time.Second, "45 Seconds Ago"},
		{"two minutes five seconds", 125 * time.Second, "2 Minutes Ago"},
		{"same instant", 0, "Just Now"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Label(last.Add(tt.after), last))
		})
	}
}

func TestElapsed_RoundsToNearestSecond(t *testing.T) {
	last := time.Date(2024, 3, 1, 12, 0, 0, 400*int(time.Millisecond), time.UTC)
	now := last.Add(2600 * time.Millisecond) // 12:00:03.000

	assert.Equal(t, int64(3), Elapsed(now, last))
}
