package core

import (
	"fmt"
	"time"

	"servostep/observability/log"
)

// Config is the construction-time configuration of a BoundedStepActuator.
type Config struct {
	Min   float64 // degrees
	Max   float64 // degrees
	Start float64 // initial position, clamped like any other request
	Step  float64 // degrees per StepForward/StepBackward
}

// DefaultConfig returns min -5, max 80, start 0, step 0.6.
func DefaultConfig() Config {
	return Config{
		Min:   DefaultMinAngle,
		Max:   DefaultMaxAngle,
		Start: DefaultStartAngle,
		Step:  DefaultStep,
	}
}

// Option customizes a BoundedStepActuator.
type Option func(*BoundedStepActuator)

// WithLogger routes warnings about suspicious configuration to logger.
func WithLogger(logger log.Log) Option {
	return func(a *BoundedStepActuator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithCommandOnClamp selects whether a clamped request still commands the
// actuator with the boundary value. The default is true; false leaves the
// device where it was while the stored position moves to the bound.
func WithCommandOnClamp(enabled bool) Option {
	return func(a *BoundedStepActuator) {
		a.commandOnClamp = enabled
	}
}

// BoundedStepActuator tracks the commanded position of one actuator and keeps
// every request inside [min, max]. Relative moves advance by a fixed step per
// call, so calling them from a fixed-rate loop bounds the angular velocity.
//
// It is not safe for concurrent use; one control loop owns each instance.
type BoundedStepActuator struct {
	pin            ActuatorPin
	handle         ActuatorHandle
	logger         log.Log
	commandOnClamp bool

	limits   Limits
	step     float64
	position float64
}

// New binds pin through driver and returns a controller configured from cfg.
func New(driver ActuatorDriver, pin ActuatorPin, cfg Config, opts ...Option) (*BoundedStepActuator, error) {
	handle, err := driver.BindActuator(pin)
	if err != nil {
		return nil, fmt.Errorf("failed to bind actuator on pin %d: %w", pin, err)
	}
	return NewWithHandle(handle, pin, cfg, opts...), nil
}

// NewDefault is New with DefaultConfig.
func NewDefault(driver ActuatorDriver, pin ActuatorPin, opts ...Option) (*BoundedStepActuator, error) {
	return New(driver, pin, DefaultConfig(), opts...)
}

// NewWithHandle builds a controller around an already bound handle. The step
// is validated first, then the limits, then the start position is applied.
func NewWithHandle(handle ActuatorHandle, pin ActuatorPin, cfg Config, opts ...Option) *BoundedStepActuator {
	a := &BoundedStepActuator{
		pin:            pin,
		handle:         handle,
		logger:         log.Nop(),
		commandOnClamp: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(log.Uint32("pin", uint32(pin)))

	a.SetStep(cfg.Step)
	a.recordMin(cfg.Min)
	a.recordMax(cfg.Max)
	a.SetPosition(cfg.Start)

	return a
}

// SetMin records a new lower bound and re-applies the current position
// against it, which moves the actuator if the position is now out of range.
func (a *BoundedStepActuator) SetMin(angle float64) {
	a.recordMin(angle)
	a.SetPosition(a.position)
}

// SetMax records a new upper bound and re-applies the current position.
func (a *BoundedStepActuator) SetMax(angle float64) {
	a.recordMax(angle)
	a.SetPosition(a.position)
}

func (a *BoundedStepActuator) recordMin(angle float64) {
	if SuspiciousMin(angle) {
		a.logger.Warn("setting servo minimum to strange value", log.Float64("value", angle))
	}
	a.limits.Min = angle
}

func (a *BoundedStepActuator) recordMax(angle float64) {
	if SuspiciousMax(angle) {
		a.logger.Warn("setting servo maximum to strange value", log.Float64("value", angle))
	}
	a.limits.Max = angle
}

// SetStep sets the degrees moved per relative step. Values outside
// [0.01, 3] are kept with a warning; non-positive values are replaced by
// DefaultStep.
func (a *BoundedStepActuator) SetStep(step float64) {
	accepted, check := ValidateStep(step)
	switch check {
	case StepSuspicious:
		a.logger.Warn("setting servo step to strange value", log.Float64("value", step))
	case StepInvalid:
		a.logger.Warn("setting servo step to strange value", log.Float64("value", step))
		a.logger.Error("illegal value for servo step, reverting to builtin value",
			log.Float64("value", step), log.Float64("default", DefaultStep))
	}
	a.step = accepted
}

// SetStepFromUpdateDelay sets the step for a caller that steps every
// delaySeconds and wants to move at speed degrees per second.
func (a *BoundedStepActuator) SetStepFromUpdateDelay(delaySeconds, speed float64) {
	a.SetStep(StepFromUpdateDelay(delaySeconds, speed))
}

// SetStepFromUpdateFrequency sets the step for a caller that steps
// frequency times per second and wants to move at speed degrees per second.
func (a *BoundedStepActuator) SetStepFromUpdateFrequency(frequency, speed float64) {
	a.SetStep(StepFromUpdateFrequency(frequency, speed))
}

// SetStepFromInterval is SetStepFromUpdateDelay with a time.Duration.
func (a *BoundedStepActuator) SetStepFromInterval(interval time.Duration, speed float64) {
	a.SetStep(StepFromInterval(interval, speed))
}

// SetPosition moves to angle, clamped to the limits. In-range requests always
// command the actuator; clamped ones do so unless command-on-clamp is off.
// A NaN request is ignored.
func (a *BoundedStepActuator) SetPosition(angle float64) ClampResult {
	target, result := Clamp(angle, a.limits)
	switch result {
	case Rejected:
		a.logger.Warn("ignoring NaN servo position")
		return result
	case ClampedHigh, ClampedLow:
		a.logger.Debug("servo position clamped",
			log.Float64("requested", angle),
			log.Float64("position", target),
			log.String("result", result.String()))
		a.position = target
		if !a.commandOnClamp {
			return result
		}
	default:
		a.position = target
	}

	if err := a.handle.CommandAngle(target); err != nil {
		a.logger.Error("servo command failed", log.Float64("angle", target), log.Error(err))
	}
	return result
}

// SetAngle is an alias for SetPosition.
func (a *BoundedStepActuator) SetAngle(angle float64) ClampResult {
	return a.SetPosition(angle)
}

// StepForward moves one step toward higher angles.
func (a *BoundedStepActuator) StepForward() ClampResult {
	return a.SetPosition(a.position + a.step)
}

// StepBackward moves one step toward lower angles.
func (a *BoundedStepActuator) StepBackward() ClampResult {
	return a.SetPosition(a.position - a.step)
}

// Position returns the stored commanded angle.
func (a *BoundedStepActuator) Position() float64 { return a.position }

// Step returns the effective step size.
func (a *BoundedStepActuator) Step() float64 { return a.step }

// Limits returns the current bounds.
func (a *BoundedStepActuator) Limits() Limits { return a.limits }

// Pin returns the pin the actuator was bound on.
func (a *BoundedStepActuator) Pin() ActuatorPin { return a.pin }

// CommandOnClamp reports the clamp policy in effect.
func (a *BoundedStepActuator) CommandOnClamp() bool { return a.commandOnClamp }

// State is a snapshot for status reporting.
type State struct {
	Pin      ActuatorPin
	Position float64
	Limits   Limits
	Step     float64
}

func (a *BoundedStepActuator) State() State {
	return State{
		Pin:      a.pin,
		Position: a.position,
		Limits:   a.limits,
		Step:     a.step,
	}
}
