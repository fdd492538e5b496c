package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffPolicyDelay(t *testing.T) {
	p := NewBackoffPolicy(30*time.Second, 900*time.Second)

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{4, 240 * time.Second},
		{5, 480 * time.Second},
		{6, 900 * time.Second},
		{7, 900 * time.Second},
		{50, 900 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestBackoffPolicyBaseAboveMax(t *testing.T) {
	p := NewBackoffPolicy(time.Minute, 10*time.Second)
	assert.Equal(t, 10*time.Second, p.Delay(1))
	assert.Equal(t, 10*time.Second, p.Delay(3))
}
