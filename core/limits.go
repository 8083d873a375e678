package core

import "math"

// Built-in configuration, matching the arm servo this controller was first
// tuned for.
const (
	DefaultMinAngle   = -5.0
	DefaultMaxAngle   = 80.0
	DefaultStartAngle = 0.0
	DefaultStep       = 0.6
)

// Values outside these ranges are accepted but logged.
const (
	NominalMinAngle = 0.0
	NominalMaxAngle = 180.0
	MinSaneStep     = 0.01
	MaxSaneStep     = 3.0
)

// Limits bounds the commanded angle. Min <= Max is the caller's job.
type Limits struct {
	Min float64
	Max float64
}

// DefaultLimits returns the built-in -5..80 degree window.
func DefaultLimits() Limits {
	return Limits{Min: DefaultMinAngle, Max: DefaultMaxAngle}
}

// Contains reports whether angle lies inside the window.
func (l Limits) Contains(angle float64) bool {
	return angle >= l.Min && angle <= l.Max
}

// ClampResult says how a requested angle related to the limits.
type ClampResult uint8

const (
	InRange ClampResult = iota
	ClampedHigh
	ClampedLow
	Rejected // NaN request, position left alone
)

func (r ClampResult) String() string {
	switch r {
	case InRange:
		return "in-range"
	case ClampedHigh:
		return "clamped-high"
	case ClampedLow:
		return "clamped-low"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Clamp constrains angle to limits. The high bound is checked first, so an
// inverted window (Min > Max) resolves every request to Max.
func Clamp(angle float64, limits Limits) (float64, ClampResult) {
	switch {
	case math.IsNaN(angle):
		return angle, Rejected
	case angle > limits.Max:
		return limits.Max, ClampedHigh
	case angle < limits.Min:
		return limits.Min, ClampedLow
	default:
		return angle, InRange
	}
}

// StepCheck classifies a proposed step size.
type StepCheck uint8

const (
	StepOK StepCheck = iota
	StepSuspicious
	StepInvalid
)

// CheckStep classifies step. Non-positive and non-finite steps are invalid;
// anything outside [MinSaneStep, MaxSaneStep] is suspicious.
func CheckStep(step float64) StepCheck {
	switch {
	case !(step > 0) || math.IsInf(step, 0):
		return StepInvalid
	case step > MaxSaneStep || step < MinSaneStep:
		return StepSuspicious
	default:
		return StepOK
	}
}

// ValidateStep returns the step to use for a proposed value: the value itself
// unless it is invalid, in which case DefaultStep.
func ValidateStep(step float64) (float64, StepCheck) {
	check := CheckStep(step)
	if check == StepInvalid {
		return DefaultStep, check
	}
	return step, check
}

// SuspiciousMin reports a minimum below the nominal 0..180 servo range.
func SuspiciousMin(angle float64) bool {
	return angle < NominalMinAngle
}

// SuspiciousMax reports a maximum above the nominal 0..180 servo range.
func SuspiciousMax(angle float64) bool {
	return angle > NominalMaxAngle
}
