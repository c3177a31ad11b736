package health

import (
	"context"
	"fmt"
	"time"
)

// Connection is implemented by transports that track a broker connection
type Connection interface {
	IsConnected() bool
}

// ConnectionChecker reports whether a transport is connected
type ConnectionChecker struct {
	name string
	conn Connection
}

// NewConnectionChecker creates a checker named name for conn
func NewConnectionChecker(name string, conn Connection) *ConnectionChecker {
	return &ConnectionChecker{name: name, conn: conn}
}

func (c *ConnectionChecker) Name() string {
	return c.name
}

func (c *ConnectionChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:      c.name,
		Timestamp: time.Now(),
		Status:    StatusHealthy,
		Message:   "Connection is open",
	}

	if !c.conn.IsConnected() {
		result.Status = StatusUnhealthy
		result.Message = "Connection is closed"
	}

	result.Duration = time.Since(result.Timestamp)
	return result
}

// StreamProbe is implemented by the Redis Streams transport
type StreamProbe interface {
	Ping(ctx context.Context) error
	Scheduled(ctx context.Context, stream string) (int64, error)
}

// StreamChecker pings Redis and reports the scheduled backlog of a stream.
// A backlog above maxScheduled marks the stream degraded; zero disables the limit.
type StreamChecker struct {
	probe        StreamProbe
	stream       string
	maxScheduled int64
}

// NewStreamChecker creates a checker for stream
func NewStreamChecker(probe StreamProbe, stream string, maxScheduled int64) *StreamChecker {
	return &StreamChecker{probe: probe, stream: stream, maxScheduled: maxScheduled}
}

func (c *StreamChecker) Name() string {
	return "redis:" + c.stream
}

func (c *StreamChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}

	if err := c.probe.Ping(ctx); err != nil {
		result.Status = StatusUnhealthy
		result.Message = "Ping failed"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	scheduled, err := c.probe.Scheduled(ctx, c.stream)
	if err != nil {
		result.Status = StatusDegraded
		result.Message = "Failed to read schedule"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	result.Details["scheduled"] = scheduled
	result.Status = StatusHealthy
	result.Message = "Stream is reachable"
	if c.maxScheduled > 0 && scheduled > c.maxScheduled {
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("%d scheduled envelopes exceed limit %d", scheduled, c.maxScheduled)
	}

	result.Duration = time.Since(start)
	result.Details["responseTimeMs"] = result.Duration.Milliseconds()
	return result
}
