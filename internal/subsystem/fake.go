package subsystem

import (
	"sync"

	"codeberg.org/mutker/lumactl/internal/source"
)

// Fake collaborators are test doubles with per-call error injection and
// recorded calls. Setting an Err field makes the matching method fail.

type FakeJet struct {
	InitializeErr error
	ShutdownErr   error
	CalibrateErr  error
	ConfigureErr  error

	mu         sync.Mutex
	Calls      []string
	Configured []source.EmissionParameters
}

func (f *FakeJet) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
}

func (f *FakeJet) CallCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.Calls {
		if c == call {
			n++
		}
	}

	return n
}

func (f *FakeJet) Initialize() error {
	f.record("initialize")
	return f.InitializeErr
}

func (f *FakeJet) Shutdown() error {
	f.record("shutdown")
	return f.ShutdownErr
}

func (f *FakeJet) Calibrate() error {
	f.record("calibrate")
	return f.CalibrateErr
}

func (f *FakeJet) ConfigureEmission(params source.EmissionParameters) error {
	f.record("configure_emission")
	if f.ConfigureErr != nil {
		return f.ConfigureErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Configured = append(f.Configured, params)

	return nil
}

func (f *FakeJet) Status() source.SubsystemStatus {
	return source.SubsystemStatus{Name: "jet", State: "fake"}
}

type FakeOptimizer struct {
	WarmUpErr      error
	ShutdownErr    error
	CalibrateErr   error
	StartErr       error
	StopErr        error
	AdjustPowerErr error
	PrepareErr     error
	ConfigureErr   error

	mu             sync.Mutex
	Calls          []string
	PreparedPowers []float64
	AdjustedPowers []float64
}

func (f *FakeOptimizer) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
}

func (f *FakeOptimizer) CallCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.Calls {
		if c == call {
			n++
		}
	}

	return n
}

func (f *FakeOptimizer) WarmUp() error {
	f.record("warm_up")
	return f.WarmUpErr
}

func (f *FakeOptimizer) Shutdown() error {
	f.record("shutdown")
	return f.ShutdownErr
}

func (f *FakeOptimizer) Calibrate() error {
	f.record("calibrate")
	return f.CalibrateErr
}

func (f *FakeOptimizer) StartRealTimeOptimization() error {
	f.record("start_optimization")
	return f.StartErr
}

func (f *FakeOptimizer) StopRealTimeOptimization() error {
	f.record("stop_optimization")
	return f.StopErr
}

func (f *FakeOptimizer) AdjustPower(watts float64) error {
	f.record("adjust_power")
	if f.AdjustPowerErr != nil {
		return f.AdjustPowerErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.AdjustedPowers = append(f.AdjustedPowers, watts)

	return nil
}

func (f *FakeOptimizer) PrepareForPower(target float64) error {
	f.record("prepare_for_power")
	if f.PrepareErr != nil {
		return f.PrepareErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.PreparedPowers = append(f.PreparedPowers, target)

	return nil
}

func (f *FakeOptimizer) ConfigureOptimization(source.EmissionParameters) error {
	f.record("configure_optimization")
	return f.ConfigureErr
}

func (f *FakeOptimizer) Status() source.SubsystemStatus {
	return source.SubsystemStatus{Name: "optimizer", State: "fake"}
}

type FakeMonitor struct {
	CalibrateErr error
	StartErr     error
	StopErr      error
	ConfigureErr error
	Metrics      source.PerformanceMetrics

	mu    sync.Mutex
	Calls []string
}

func (f *FakeMonitor) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
}

func (f *FakeMonitor) CallCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.Calls {
		if c == call {
			n++
		}
	}

	return n
}

func (f *FakeMonitor) CalibrateSensors() error {
	f.record("calibrate_sensors")
	return f.CalibrateErr
}

func (f *FakeMonitor) StartPowerMonitoring() error {
	f.record("start_monitoring")
	return f.StartErr
}

func (f *FakeMonitor) StopPowerMonitoring() error {
	f.record("stop_monitoring")
	return f.StopErr
}

func (f *FakeMonitor) ConfigureMonitoring(source.EmissionParameters) error {
	f.record("configure_monitoring")
	return f.ConfigureErr
}

func (f *FakeMonitor) CurrentMetrics() source.PerformanceMetrics {
	if f.Metrics == nil {
		return source.PerformanceMetrics{"stability": 0.99}
	}

	return f.Metrics
}

func (f *FakeMonitor) Status() source.SubsystemStatus {
	return source.SubsystemStatus{Name: "monitor", State: "fake"}
}
