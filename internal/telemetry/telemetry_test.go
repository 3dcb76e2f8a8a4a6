package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestPublisher(limit int) *Publisher {
	return &Publisher{
		log:         zap.NewNop(),
		limit:       limit,
		windowStart: time.Now(),
	}
}

func TestAllowRespectsLimitWithinWindow(t *testing.T) {
	p := newTestPublisher(2)
	assert.True(t, p.allow())
	assert.True(t, p.allow())
	assert.False(t, p.allow())
}

func TestAllowResetsAfterWindowElapses(t *testing.T) {
	p := newTestPublisher(1)
	require := assert.New(t)
	require.True(p.allow())
	require.False(p.allow())

	p.windowStart = time.Now().Add(-2 * time.Second)
	require.True(p.allow())
}
