package loadmonitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"verigate/internal/admission"
)

type stubSampler struct {
	mu    sync.Mutex
	load  Load
	err   error
	calls int
}

func (s *stubSampler) Sample(context.Context) (Load, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.load, s.err
}

func (s *stubSampler) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestPolicy_Factor(t *testing.T) {
	p := DefaultPolicy
	tests := []struct {
		name string
		load Load
		want float64
	}{
		{"cpu pressure", Load{CPUPercent: 81, MemPercent: 10}, 0.7},
		{"memory pressure", Load{CPUPercent: 10, MemPercent: 86}, 0.7},
		{"idle", Load{CPUPercent: 39, MemPercent: 59}, 1.2},
		{"cpu idle memory moderate", Load{CPUPercent: 10, MemPercent: 70}, 1},
		{"boundaries are not pressure", Load{CPUPercent: 80, MemPercent: 85}, 1},
		{"boundaries are not idle", Load{CPUPercent: 40, MemPercent: 10}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, p.Factor(tt.load), 1e-9)
		})
	}
}

type MonitorSuite struct {
	suite.Suite
	controller *admission.Controller
	sampler    *stubSampler
	monitor    *Monitor
}

func TestMonitorSuite(t *testing.T) {
	suite.Run(t, new(MonitorSuite))
}

func (s *MonitorSuite) SetupTest() {
	s.controller = admission.New(50)
	s.sampler = &stubSampler{}
	m, err := New(s.controller, WithSampler(s.sampler), WithInterval(5*time.Millisecond))
	s.Require().NoError(err)
	s.monitor = m
}

func (s *MonitorSuite) TearDownTest() {
	s.monitor.Stop()
}

func (s *MonitorSuite) TestTick() {
	ctx := context.Background()

	s.Run("scales down under pressure", func() {
		s.controller.SetBudget(50)
		s.sampler.load = Load{CPUPercent: 95, MemPercent: 50}
		s.Require().NoError(s.monitor.Tick(ctx))
		s.Equal(35, s.controller.Budget())
	})

	s.Run("scales up when idle", func() {
		s.controller.SetBudget(50)
		s.sampler.load = Load{CPUPercent: 5, MemPercent: 20}
		s.Require().NoError(s.monitor.Tick(ctx))
		s.Equal(60, s.controller.Budget())
	})

	s.Run("never leaves the allowed range", func() {
		s.controller.SetBudget(95)
		s.sampler.load = Load{CPUPercent: 5, MemPercent: 20}
		s.Require().NoError(s.monitor.Tick(ctx))
		s.Equal(100, s.controller.Budget())

		s.controller.SetBudget(12)
		s.sampler.load = Load{CPUPercent: 99, MemPercent: 99}
		s.Require().NoError(s.monitor.Tick(ctx))
		s.Equal(10, s.controller.Budget())
	})

	s.Run("moderate load leaves the budget alone", func() {
		s.controller.SetBudget(50)
		s.sampler.load = Load{CPUPercent: 60, MemPercent: 70}
		s.Require().NoError(s.monitor.Tick(ctx))
		s.Equal(50, s.controller.Budget())
	})

	s.Run("sample errors surface from a single tick", func() {
		s.sampler.err = errors.New("no /proc")
		s.Error(s.monitor.Tick(ctx))
		s.sampler.err = nil
	})
}

func (s *MonitorSuite) TestLoopSwallowsErrors() {
	s.sampler.err = errors.New("sampling failed")
	s.monitor.Start(context.Background())

	s.Eventually(func() bool { return s.sampler.Calls() >= 3 }, time.Second, time.Millisecond)
	s.True(s.monitor.Running())
}

func (s *MonitorSuite) TestStartIsIdempotent() {
	s.monitor.Start(context.Background())
	done := s.monitor.done
	s.monitor.Start(context.Background())
	s.Equal(done, s.monitor.done)
}

func (s *MonitorSuite) TestStopIsSafe() {
	s.NotPanics(s.monitor.Stop, "stop before start")

	s.monitor.Start(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.monitor.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		s.Fail("stop should interrupt the wait promptly")
	}
	s.False(s.monitor.Running())
	s.NotPanics(s.monitor.Stop, "second stop")
}

func (s *MonitorSuite) TestRestartsAfterParentCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	s.monitor.Start(ctx)
	s.True(s.monitor.Running())

	cancel()
	s.Eventually(func() bool { return !s.monitor.Running() }, time.Second, time.Millisecond)

	s.monitor.Start(context.Background())
	s.True(s.monitor.Running())
	before := s.sampler.Calls()
	s.Eventually(func() bool { return s.sampler.Calls() > before }, time.Second, time.Millisecond)
}

func (s *MonitorSuite) TestStopInterruptsLongInterval() {
	m, err := New(s.controller, WithSampler(s.sampler), WithInterval(time.Hour))
	s.Require().NoError(err)
	m.Start(context.Background())

	start := time.Now()
	m.Stop()
	s.Less(time.Since(start), time.Second)
	s.Zero(s.sampler.Calls())
}

func TestNew_RequiresBudget(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}
