package source

// The controller consumes its collaborators through capability
// interfaces so simulated and real hardware variants can be swapped
// without the controller knowing which concrete one it holds.

// JetSubsystem drives the droplet jet generator feeding the source.
type JetSubsystem interface {
	Initialize() error
	Shutdown() error
	Calibrate() error
	ConfigureEmission(params EmissionParameters) error
	Status() SubsystemStatus
}

// OptimizerSubsystem runs the beam optimization loop and applies power
// setpoints to the source.
type OptimizerSubsystem interface {
	WarmUp() error
	Shutdown() error
	Calibrate() error
	StartRealTimeOptimization() error
	StopRealTimeOptimization() error
	AdjustPower(watts float64) error
	PrepareForPower(target float64) error
	ConfigureOptimization(params EmissionParameters) error
	Status() SubsystemStatus
}

// Monitor observes output power and stability.
type Monitor interface {
	CalibrateSensors() error
	StartPowerMonitoring() error
	StopPowerMonitoring() error
	ConfigureMonitoring(params EmissionParameters) error
	CurrentMetrics() PerformanceMetrics
	Status() SubsystemStatus
}

// PerformanceMetrics maps metric names (e.g. "stability") to values.
type PerformanceMetrics map[string]float64

// SubsystemStatus is an advisory descriptor reported by a collaborator.
type SubsystemStatus struct {
	Name   string
	State  string
	Detail map[string]string
}
