package services

import (
	"testing"
	"time"
)

func TestGetRunAfterDoubles(t *testing.T) {
	tests := []struct {
		attempt  uint8
		expected time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{0, 1 * time.Second}, // clamped
	}
	for _, tt := range tests {
		before := time.Now().UTC()
		runAfter := GetRunAfter(tt.attempt)
		delay := runAfter.Sub(before)
		// Allow a little slack for the clock reads around the call.
		if delay < tt.expected-50*time.Millisecond || delay > tt.expected+50*time.Millisecond {
			t.Errorf("attempt %d: delay %v, expected about %v", tt.attempt, delay, tt.expected)
		}
	}
}
