package telemetry

import (
	"context"
	"time"
)

// Collector records controller status snapshots.
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// Repository defines the interface for snapshot storage.
type Repository interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// Snapshot is one point-in-time observation of the light source.
type Snapshot struct {
	Timestamp     time.Time
	State         string
	CurrentPower  float64
	TargetPower   float64
	Stability     float64
	OperatingTime float64 // seconds
	Wavelength    float64
}
