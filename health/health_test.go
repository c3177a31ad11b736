package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticChecker(name string, status Status) Checker {
	return NewCheckerFunc(name, func(ctx context.Context) CheckResult {
		return CheckResult{Name: name, Status: status}
	})
}

func TestRegistryCheck(t *testing.T) {
	testCases := []struct {
		desc     string
		statuses []Status
		want     Status
	}{
		{desc: "no checks", want: StatusHealthy},
		{desc: "all healthy", statuses: []Status{StatusHealthy, StatusHealthy}, want: StatusHealthy},
		{desc: "one degraded", statuses: []Status{StatusHealthy, StatusDegraded}, want: StatusDegraded},
		{desc: "unhealthy wins", statuses: []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, want: StatusUnhealthy},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			registry := NewRegistry()
			for i, status := range tc.statuses {
				registry.Register(staticChecker(string(rune('a'+i)), status))
			}

			overall := registry.Check(context.Background())
			assert.Equal(t, tc.want, overall.Status)
			assert.Len(t, overall.Checks, len(tc.statuses))
		})
	}
}

func TestRegistryCheckTimeout(t *testing.T) {
	registry := NewRegistry()
	registry.Register(staticChecker("fast", StatusHealthy))
	registry.Register(NewCheckerFunc("slow", func(ctx context.Context) CheckResult {
		time.Sleep(time.Second)
		return CheckResult{Name: "slow", Status: StatusHealthy}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	overall := registry.Check(ctx)
	assert.Equal(t, StatusUnhealthy, overall.Status)
	require.Contains(t, overall.Checks, "slow")
	assert.Equal(t, "Check timed out", overall.Checks["slow"].Message)
	assert.Equal(t, []string{"fast", "slow"}, registry.Names())
}

type fakeConnection bool

func (f fakeConnection) IsConnected() bool { return bool(f) }

func TestConnectionChecker(t *testing.T) {
	up := NewConnectionChecker("rabbitmq", fakeConnection(true)).Check(context.Background())
	assert.Equal(t, StatusHealthy, up.Status)
	assert.Equal(t, "rabbitmq", up.Name)

	down := NewConnectionChecker("rabbitmq", fakeConnection(false)).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, down.Status)
}

type fakeProbe struct {
	pingErr      error
	scheduled    int64
	scheduledErr error
}

func (f *fakeProbe) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeProbe) Scheduled(ctx context.Context, stream string) (int64, error) {
	return f.scheduled, f.scheduledErr
}

func TestStreamChecker(t *testing.T) {
	testCases := []struct {
		desc  string
		probe *fakeProbe
		want  Status
	}{
		{desc: "healthy", probe: &fakeProbe{scheduled: 3}, want: StatusHealthy},
		{desc: "ping failure", probe: &fakeProbe{pingErr: errors.New("refused")}, want: StatusUnhealthy},
		{desc: "schedule failure", probe: &fakeProbe{scheduledErr: errors.New("WRONGTYPE")}, want: StatusDegraded},
		{desc: "backlog over limit", probe: &fakeProbe{scheduled: 11}, want: StatusDegraded},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			checker := NewStreamChecker(tc.probe, "orders", 10)
			assert.Equal(t, "redis:orders", checker.Name())

			result := checker.Check(context.Background())
			assert.Equal(t, tc.want, result.Status)
		})
	}
}
