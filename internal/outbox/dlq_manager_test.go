package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelayDoublesPerAttempt(t *testing.T) {
	manager := NewDLQManager(nil, 5, time.Minute)

	require.Equal(t, time.Minute, manager.backoffDelay(1))
	require.Equal(t, 2*time.Minute, manager.backoffDelay(2))
	require.Equal(t, 4*time.Minute, manager.backoffDelay(3))
	require.Equal(t, 8*time.Minute, manager.backoffDelay(4))
}

func TestBackoffDelayCapsAtOneHour(t *testing.T) {
	manager := NewDLQManager(nil, 20, time.Minute)

	require.Equal(t, time.Hour, manager.backoffDelay(12))
}
