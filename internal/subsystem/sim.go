// Package subsystem provides light source collaborator implementations:
// in-memory simulations for running without hardware, and scripted fakes
// for tests. Real device adapters satisfy the same interfaces.
package subsystem

import (
	"sync"

	"codeberg.org/mutker/lumactl/internal/errors"
	"codeberg.org/mutker/lumactl/internal/source"
)

// SimJet simulates the droplet jet generator.
type SimJet struct {
	mu          sync.Mutex
	initialized bool
	configured  bool
	params      source.EmissionParameters
}

func NewSimJet() *SimJet {
	return &SimJet{}
}

func (j *SimJet) Initialize() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.initialized = true

	return nil
}

func (j *SimJet) Shutdown() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.initialized = false
	j.configured = false

	return nil
}

func (j *SimJet) Calibrate() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.initialized {
		return errors.New().WithMessage(errors.ErrPreconditionViolation, "jet not initialized")
	}

	return nil
}

func (j *SimJet) ConfigureEmission(params source.EmissionParameters) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.initialized {
		return errors.New().WithMessage(errors.ErrPreconditionViolation, "jet not initialized")
	}
	j.params = params
	j.configured = true

	return nil
}

func (j *SimJet) Status() source.SubsystemStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	state := "offline"
	if j.initialized {
		state = "normal"
	}

	return source.SubsystemStatus{
		Name:  "jet",
		State: state,
		Detail: map[string]string{
			"configured": boolWord(j.configured),
		},
	}
}

// SimOptimizer simulates the beam optimization loop.
type SimOptimizer struct {
	mu          sync.Mutex
	warmedUp    bool
	optimizing  bool
	targetPower float64
}

func NewSimOptimizer() *SimOptimizer {
	return &SimOptimizer{}
}

func (o *SimOptimizer) WarmUp() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.warmedUp = true

	return nil
}

func (o *SimOptimizer) Shutdown() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.warmedUp = false
	o.optimizing = false
	o.targetPower = 0

	return nil
}

func (o *SimOptimizer) Calibrate() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.warmedUp {
		return errors.New().WithMessage(errors.ErrPreconditionViolation, "optimizer not warmed up")
	}

	return nil
}

func (o *SimOptimizer) StartRealTimeOptimization() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.optimizing = true

	return nil
}

func (o *SimOptimizer) StopRealTimeOptimization() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.optimizing = false

	return nil
}

func (o *SimOptimizer) AdjustPower(watts float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.optimizing {
		return errors.New().WithMessage(errors.ErrPreconditionViolation, "optimizer not running")
	}
	o.targetPower = watts

	return nil
}

func (o *SimOptimizer) PrepareForPower(target float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.targetPower = target

	return nil
}

func (o *SimOptimizer) ConfigureOptimization(source.EmissionParameters) error {
	return nil
}

func (o *SimOptimizer) Status() source.SubsystemStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	state := "idle"
	if o.optimizing {
		state = "optimizing"
	}

	return source.SubsystemStatus{
		Name:  "optimizer",
		State: state,
	}
}

// SimMonitor simulates power and stability monitoring, reporting a
// stability just inside the configured target.
type SimMonitor struct {
	mu              sync.Mutex
	stabilityTarget float64
	monitoring      bool
}

func NewSimMonitor(stabilityTarget float64) *SimMonitor {
	return &SimMonitor{stabilityTarget: stabilityTarget}
}

func (m *SimMonitor) CalibrateSensors() error {
	return nil
}

func (m *SimMonitor) StartPowerMonitoring() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monitoring = true

	return nil
}

func (m *SimMonitor) StopPowerMonitoring() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monitoring = false

	return nil
}

func (m *SimMonitor) ConfigureMonitoring(source.EmissionParameters) error {
	return nil
}

func (m *SimMonitor) CurrentMetrics() source.PerformanceMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Simulated output holds just inside the stability target.
	return source.PerformanceMetrics{
		"stability":   1 - m.stabilityTarget/2,
		"power_drift": m.stabilityTarget / 4,
	}
}

func (m *SimMonitor) Status() source.SubsystemStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := "idle"
	if m.monitoring {
		state = "monitoring"
	}

	return source.SubsystemStatus{
		Name:  "monitor",
		State: state,
	}
}

func boolWord(b bool) string {
	if b {
		return "yes"
	}

	return "no"
}
