package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/lumactl/internal/config"
	"codeberg.org/mutker/lumactl/internal/errors"
	"codeberg.org/mutker/lumactl/internal/events"
	"codeberg.org/mutker/lumactl/internal/logger"
	"codeberg.org/mutker/lumactl/internal/pid"
	"codeberg.org/mutker/lumactl/internal/source"
	"codeberg.org/mutker/lumactl/internal/subsystem"
	"codeberg.org/mutker/lumactl/internal/telemetry"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("config loaded")
}

func main() {
	if err := pid.Write(); err != nil {
		logger.FatalWithCode(asDomain(err)).Msg("failed to write PID file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx); err != nil {
		logger.ErrorWithCode(asDomain(err)).Msg("daemon exited with error")
	}
}

func run(ctx context.Context) error {
	errFactory := errors.New()

	collector, err := telemetry.NewService(telemetry.Config{
		DBPath:  cfg.Database,
		Enabled: cfg.Telemetry,
	})
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	defer func() {
		if err := collector.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close telemetry")
		}
	}()

	ctrl, err := buildController()
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	registerCallbacks(ctrl)
	defer ctrl.PowerOff()

	if err := ctrl.PowerOn(ctx); err != nil {
		return err
	}
	if err := ctrl.Calibrate(); err != nil {
		return err
	}

	if cfg.EmitPower > 0 {
		params := source.EmissionParameters{
			Power:     cfg.EmitPower,
			Duration:  secondsToDuration(cfg.EmitDuration),
			DutyCycle: 1,
		}
		if err := ctrl.StartEmission(params); err != nil {
			return err
		}
	}

	return loop(ctx, ctrl, collector)
}

func buildController() (*source.Controller, error) {
	srcCfg := source.Config{
		Wavelength:          cfg.Wavelength,
		MaxPower:            cfg.MaxPower,
		StabilityTarget:     cfg.StabilityTarget,
		WarmupTime:          secondsToDuration(cfg.WarmupTime),
		CalibrationInterval: secondsToDuration(cfg.CalibrationInterval),
	}

	return source.New(srcCfg,
		subsystem.NewSimJet(),
		subsystem.NewSimOptimizer(),
		subsystem.NewSimMonitor(cfg.StabilityTarget),
	)
}

func registerCallbacks(ctrl *source.Controller) {
	ctrl.RegisterCallback(events.StateChange, func(payload any) {
		ev, ok := payload.(source.StateChangeEvent)
		if !ok {
			return
		}
		logger.Info().
			Str("old_state", ev.Old.String()).
			Str("new_state", ev.New.String()).
			Time("at", ev.Timestamp).
			Msg("state changed")
	})
	ctrl.RegisterCallback(events.PowerUpdate, func(payload any) {
		if watts, ok := payload.(float64); ok {
			logger.Info().Float64("power_w", watts).Msg("power updated")
		}
	})
	ctrl.RegisterCallback(events.Error, func(payload any) {
		if err, ok := payload.(error); ok {
			logger.Error().Err(err).Msg("light source error")
		}
	})
}

func loop(ctx context.Context, ctrl *source.Controller, collector telemetry.Collector) error {
	interval := time.Duration(cfg.Interval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	calibrationInterval := secondsToDuration(cfg.CalibrationInterval)
	lastCalibration := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			status := ctrl.Status()
			logStatus(status)

			if err := record(ctx, collector, status); err != nil {
				logger.Error().Err(err).Msg("failed to record telemetry")
			}

			if calibrationInterval > 0 && status.State == source.StateReady &&
				time.Since(lastCalibration) >= calibrationInterval {
				if err := ctrl.Calibrate(); err != nil {
					return err
				}
				lastCalibration = time.Now()
			}
		}
	}
}

func record(ctx context.Context, collector telemetry.Collector, status source.Status) error {
	return collector.Record(ctx, &telemetry.Snapshot{
		Timestamp:     time.Now(),
		State:         status.State.String(),
		CurrentPower:  status.CurrentPower,
		TargetPower:   status.CurrentPower,
		Stability:     status.Metrics["stability"],
		OperatingTime: status.OperatingTime.Seconds(),
		Wavelength:    status.Wavelength,
	})
}

func logStatus(status source.Status) {
	logger.Info().
		Str("state", status.State.String()).
		Float64("current_power_w", status.CurrentPower).
		Dur("operating_time", status.OperatingTime).
		Float64("stability", status.Metrics["stability"]).
		Str("jet", status.Subsystems.Jet.State).
		Str("optimizer", status.Subsystems.Optimizer.State).
		Str("monitor", status.Subsystems.Monitor.State).
		Msg("")
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("received termination signal")
	cancel()
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func asDomain(err error) errors.Error {
	var domainErr errors.Error
	if errors.As(err, &domainErr) {
		return domainErr
	}

	return errors.New().Wrap(errors.ErrInternal, err)
}
