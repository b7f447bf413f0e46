package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthMonitorAggregatesComponents(t *testing.T) {
	m := NewHealthMonitor(HealthMonitorConfig{})
	assert.False(t, m.IsHealthy())

	var alerts []ComponentHealth
	m.SetAlertCallback(func(h ComponentHealth) { alerts = append(alerts, h) })

	failing := errors.New("connection refused")
	var probeErr error
	m.RegisterComponent("gateway", APIHealthCheck(func(context.Context) error { return probeErr }, time.Minute))
	m.RegisterComponent("idle", func(context.Context) ComponentHealth {
		return ComponentHealth{Status: HealthStatusDegraded, Message: "quiet"}
	})

	health := m.CheckNow(context.Background())
	assert.Equal(t, HealthStatusDegraded, health.Status)
	assert.True(t, m.IsHealthy())
	require.Len(t, health.Components, 3)
	assert.Equal(t, []string{"gateway", "goroutines", "idle"},
		[]string{health.Components[0].Name, health.Components[1].Name, health.Components[2].Name})
	assert.Empty(t, alerts)

	probeErr = failing
	health = m.CheckNow(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, health.Status)
	assert.False(t, m.IsHealthy())
	require.Len(t, alerts, 1)
	assert.Equal(t, "gateway", alerts[0].Name)
	assert.Contains(t, alerts[0].Message, "connection refused")

	// still failing, no repeat alert
	m.CheckNow(context.Background())
	assert.Len(t, alerts, 1)
	assert.EqualValues(t, 2, m.GetHealth().FailedChecks)

	gw, ok := m.GetComponentHealth("gateway")
	require.True(t, ok)
	assert.Equal(t, HealthStatusUnhealthy, gw.Status)
}

func TestHealthMonitorRecoversPanickingCheck(t *testing.T) {
	m := NewHealthMonitor(HealthMonitorConfig{})
	m.RegisterComponent("broken", func(context.Context) ComponentHealth { panic("nil venue") })

	health := m.CheckNow(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, health.Status)
	assert.EqualValues(t, 1, health.PanicRecoveries)

	h, ok := m.GetComponentHealth("broken")
	require.True(t, ok)
	assert.Contains(t, h.Message, "nil venue")
}

func TestStreamHealthCheck(t *testing.T) {
	connected := false
	last := time.Time{}
	check := StreamHealthCheck(func() bool { return connected }, func() time.Time { return last }, time.Minute)

	assert.Equal(t, HealthStatusUnhealthy, check(context.Background()).Status)

	connected = true
	assert.Equal(t, HealthStatusDegraded, check(context.Background()).Status)

	last = time.Now().Add(-2 * time.Minute)
	assert.Equal(t, HealthStatusDegraded, check(context.Background()).Status)

	last = time.Now()
	assert.Equal(t, HealthStatusHealthy, check(context.Background()).Status)
}

func TestAPIHealthCheckFlagsSlowProbe(t *testing.T) {
	check := APIHealthCheck(func(context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}, time.Millisecond)
	h := check(context.Background())
	assert.Equal(t, HealthStatusDegraded, h.Status)
	assert.GreaterOrEqual(t, h.Latency, 5*time.Millisecond)
}

func TestBreakerHealthCheck(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("gateway", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Cooldown: time.Minute})
	cb.now = func() time.Time { return now }
	check := BreakerHealthCheck(cb)

	assert.Equal(t, HealthStatusHealthy, check(context.Background()).Status)

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("timeout") })
	require.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, HealthStatusUnhealthy, check(context.Background()).Status)
}
