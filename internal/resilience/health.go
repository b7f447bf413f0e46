package resilience

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message"`
	LastCheck time.Time     `json:"last_check"`
	Latency   time.Duration `json:"latency"`
}

// HealthCheck probes one component.
type HealthCheck func(ctx context.Context) ComponentHealth

// HealthMonitorConfig holds health monitor configuration.
type HealthMonitorConfig struct {
	CheckInterval      time.Duration
	CheckTimeout       time.Duration
	GoroutineThreshold int
}

// DefaultHealthMonitorConfig returns default configuration.
func DefaultHealthMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		CheckInterval:      30 * time.Second,
		CheckTimeout:       10 * time.Second,
		GoroutineThreshold: 1000,
	}
}

// HealthMonitor runs registered checks on an interval and keeps the last
// result of each.
type HealthMonitor struct {
	mu  sync.RWMutex
	cfg HealthMonitorConfig

	startTime       time.Time
	components      map[string]HealthCheck
	componentHealth map[string]ComponentHealth
	overallStatus   HealthStatus

	// called when a component turns unhealthy
	onAlert func(ComponentHealth)

	totalChecks     int64
	failedChecks    int64
	panicRecoveries int64
}

// NewHealthMonitor creates a health monitor.
func NewHealthMonitor(cfg HealthMonitorConfig) *HealthMonitor {
	def := DefaultHealthMonitorConfig()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = def.CheckTimeout
	}
	if cfg.GoroutineThreshold <= 0 {
		cfg.GoroutineThreshold = def.GoroutineThreshold
	}
	return &HealthMonitor{
		cfg:             cfg,
		startTime:       time.Now(),
		components:      make(map[string]HealthCheck),
		componentHealth: make(map[string]ComponentHealth),
		overallStatus:   HealthStatusUnknown,
	}
}

// RegisterComponent adds a check under name, replacing any earlier one.
func (m *HealthMonitor) RegisterComponent(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = check
}

// SetAlertCallback sets the function called when a component turns
// unhealthy.
func (m *HealthMonitor) SetAlertCallback(callback func(ComponentHealth)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAlert = callback
}

// Run checks immediately and then every CheckInterval until ctx is
// cancelled.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	m.CheckNow(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// CheckNow runs every check concurrently and returns the new snapshot.
func (m *HealthMonitor) CheckNow(ctx context.Context) SystemHealth {
	m.mu.RLock()
	components := make(map[string]HealthCheck, len(m.components))
	for k, v := range m.components {
		components[k] = v
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
	defer cancel()

	var wg sync.WaitGroup
	results := make(chan ComponentHealth, len(components)+1)
	var panics int64
	var panicMu sync.Mutex

	for name, check := range components {
		wg.Add(1)
		go func(n string, c HealthCheck) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					panicMu.Lock()
					panics++
					panicMu.Unlock()
					results <- ComponentHealth{
						Name:      n,
						Status:    HealthStatusUnhealthy,
						Message:   fmt.Sprintf("check panicked: %v", r),
						LastCheck: time.Now(),
					}
				}
			}()

			start := time.Now()
			health := c(ctx)
			health.Name = n
			health.LastCheck = time.Now()
			if health.Latency == 0 {
				health.Latency = time.Since(start)
			}
			results <- health
		}(name, check)
	}
	results <- m.checkGoroutines()

	wg.Wait()
	close(results)

	m.mu.Lock()
	m.totalChecks++
	m.panicRecoveries += panics
	hasUnhealthy, hasDegraded := false, false
	var alerts []ComponentHealth
	for health := range results {
		prev, seen := m.componentHealth[health.Name]
		m.componentHealth[health.Name] = health

		switch health.Status {
		case HealthStatusUnhealthy:
			hasUnhealthy = true
			m.failedChecks++
			if !seen || prev.Status != HealthStatusUnhealthy {
				alerts = append(alerts, health)
			}
		case HealthStatusDegraded:
			hasDegraded = true
		}
	}
	switch {
	case hasUnhealthy:
		m.overallStatus = HealthStatusUnhealthy
	case hasDegraded:
		m.overallStatus = HealthStatusDegraded
	default:
		m.overallStatus = HealthStatusHealthy
	}
	onAlert := m.onAlert
	m.mu.Unlock()

	if onAlert != nil {
		for _, a := range alerts {
			onAlert(a)
		}
	}
	return m.GetHealth()
}

func (m *HealthMonitor) checkGoroutines() ComponentHealth {
	n := runtime.NumGoroutine()
	health := ComponentHealth{Name: "goroutines", Status: HealthStatusHealthy, LastCheck: time.Now()}
	if n > m.cfg.GoroutineThreshold {
		health.Status = HealthStatusDegraded
		health.Message = fmt.Sprintf("high goroutine count: %d", n)
	} else {
		health.Message = fmt.Sprintf("goroutine count: %d", n)
	}
	return health
}

// SystemHealth is a snapshot of every component.
type SystemHealth struct {
	Status          HealthStatus      `json:"status"`
	Uptime          time.Duration     `json:"uptime"`
	Components      []ComponentHealth `json:"components"`
	Goroutines      int               `json:"goroutines"`
	MemoryAllocMB   uint64            `json:"memory_alloc_mb"`
	TotalChecks     int64             `json:"total_checks"`
	FailedChecks    int64             `json:"failed_checks"`
	PanicRecoveries int64             `json:"panic_recoveries"`
}

// GetHealth returns the last recorded health, components sorted by name.
func (m *HealthMonitor) GetHealth() SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	components := make([]ComponentHealth, 0, len(m.componentHealth))
	for _, h := range m.componentHealth {
		components = append(components, h)
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	return SystemHealth{
		Status:          m.overallStatus,
		Uptime:          time.Since(m.startTime),
		Components:      components,
		Goroutines:      runtime.NumGoroutine(),
		MemoryAllocMB:   memStats.Alloc / 1024 / 1024,
		TotalChecks:     m.totalChecks,
		FailedChecks:    m.failedChecks,
		PanicRecoveries: m.panicRecoveries,
	}
}

// GetComponentHealth returns health for a specific component.
func (m *HealthMonitor) GetComponentHealth(name string) (ComponentHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	health, ok := m.componentHealth[name]
	return health, ok
}

// IsHealthy reports whether the last run found nothing unhealthy.
func (m *HealthMonitor) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overallStatus == HealthStatusHealthy || m.overallStatus == HealthStatusDegraded
}

// StreamHealthCheck checks a price stream. A connected stream that has
// been silent for longer than stale is degraded.
func StreamHealthCheck(isConnected func() bool, lastMessage func() time.Time, stale time.Duration) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		if !isConnected() {
			return ComponentHealth{Status: HealthStatusUnhealthy, Message: "stream disconnected"}
		}
		last := lastMessage()
		if last.IsZero() {
			return ComponentHealth{Status: HealthStatusDegraded, Message: "connected, no prices yet"}
		}
		if idle := time.Since(last); idle > stale {
			return ComponentHealth{Status: HealthStatusDegraded, Message: fmt.Sprintf("no prices for %v", idle.Round(time.Second))}
		}
		return ComponentHealth{Status: HealthStatusHealthy, Message: "connected and receiving prices"}
	}
}

// APIHealthCheck times a probe call. Calls slower than slow are degraded.
func APIHealthCheck(probe func(ctx context.Context) error, slow time.Duration) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		start := time.Now()
		err := probe(ctx)
		health := ComponentHealth{Latency: time.Since(start)}

		switch {
		case err != nil:
			health.Status = HealthStatusUnhealthy
			health.Message = fmt.Sprintf("probe failed: %v", err)
		case health.Latency > slow:
			health.Status = HealthStatusDegraded
			health.Message = fmt.Sprintf("slow: %v", health.Latency.Round(time.Millisecond))
		default:
			health.Status = HealthStatusHealthy
			health.Message = fmt.Sprintf("ok: %v", health.Latency.Round(time.Millisecond))
		}
		return health
	}
}

// BreakerHealthCheck reports a circuit breaker's state.
func BreakerHealthCheck(cb *CircuitBreaker) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		stats := cb.Stats()
		switch stats.State {
		case CircuitOpen:
			return ComponentHealth{Status: HealthStatusUnhealthy, Message: fmt.Sprintf("circuit open, %d rejected", stats.TotalRejected)}
		case CircuitHalfOpen:
			return ComponentHealth{Status: HealthStatusDegraded, Message: "circuit probing"}
		default:
			return ComponentHealth{Status: HealthStatusHealthy, Message: fmt.Sprintf("circuit closed, %.1f%% failures", stats.FailureRate())}
		}
	}
}
