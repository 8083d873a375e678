package core

import (
	"errors"
	"fmt"
	"math"

	"servostep/observability/log"
)

// ServoPeriodUS is the 50Hz frame hobby servos and ESCs expect.
const ServoPeriodUS = 20000

var ErrNotANumber = errors.New("value is NaN")

// PulseRange maps an input span [Low, High] linearly onto pulse widths
// [MinUS, MaxUS]. Inputs outside the span saturate.
type PulseRange struct {
	MinUS uint32
	MaxUS uint32
	Low   float64
	High  float64
}

// DefaultServoPulseRange maps 0..180 degrees onto 1000..2000us.
func DefaultServoPulseRange() PulseRange {
	return PulseRange{MinUS: 1000, MaxUS: 2000, Low: NominalMinAngle, High: NominalMaxAngle}
}

// DefaultMotorPulseRange maps speeds -1..1 onto 1000..2000us, neutral 1500us.
func DefaultMotorPulseRange() PulseRange {
	return PulseRange{MinUS: 1000, MaxUS: 2000, Low: -1, High: 1}
}

func (r PulseRange) Validate() error {
	if r.MinUS == 0 || r.MaxUS <= r.MinUS {
		return fmt.Errorf("invalid pulse range %d-%dus", r.MinUS, r.MaxUS)
	}
	if r.MaxUS > ServoPeriodUS {
		return fmt.Errorf("pulse %dus exceeds the %dus period", r.MaxUS, ServoPeriodUS)
	}
	if !(r.High > r.Low) {
		return fmt.Errorf("invalid input span %v..%v", r.Low, r.High)
	}
	return nil
}

// Pulse returns the pulse width in microseconds for value.
func (r PulseRange) Pulse(value float64) uint32 {
	switch {
	case value <= r.Low:
		return r.MinUS
	case value >= r.High:
		return r.MaxUS
	}
	frac := (value - r.Low) / (r.High - r.Low)
	return r.MinUS + uint32(math.Round(frac*float64(r.MaxUS-r.MinUS)))
}

// Value is the inverse of Pulse.
func (r PulseRange) Value(pulseUS uint32) float64 {
	switch {
	case pulseUS <= r.MinUS:
		return r.Low
	case pulseUS >= r.MaxUS:
		return r.High
	}
	frac := float64(pulseUS-r.MinUS) / float64(r.MaxUS-r.MinUS)
	return r.Low + frac*(r.High-r.Low)
}

// DutyForPulse converts a pulse width into a duty value on a driver whose
// full scale is maxValue.
func DutyForPulse(pulseUS, periodUS, maxValue uint32) PWMValue {
	if periodUS == 0 {
		return 0
	}
	if pulseUS >= periodUS {
		return PWMValue(maxValue)
	}
	return PWMValue(uint64(pulseUS) * uint64(maxValue) / uint64(periodUS))
}

// pwmOutput is one configured pin on a PWMDriver.
type pwmOutput struct {
	pwm    PWMDriver
	pin    PWMPin
	pulses PulseRange
	logger log.Log
}

func bindPWMOutput(pwm PWMDriver, pin PWMPin, pulses PulseRange, logger log.Log) (*pwmOutput, error) {
	if err := pulses.Validate(); err != nil {
		return nil, err
	}
	if _, err := pwm.ConfigureHardwarePWM(pin, TimerFromUS(ServoPeriodUS)); err != nil {
		return nil, fmt.Errorf("failed to configure PWM on pin %d: %w", pin, err)
	}
	return &pwmOutput{pwm: pwm, pin: pin, pulses: pulses, logger: logger}, nil
}

func (o *pwmOutput) write(value float64) error {
	if math.IsNaN(value) {
		return ErrNotANumber
	}
	pulse := o.pulses.Pulse(value)
	duty := DutyForPulse(pulse, ServoPeriodUS, o.pwm.GetMaxValue())
	o.logger.Debug("pwm output",
		log.Uint32("pin", uint32(o.pin)),
		log.Float64("value", value),
		log.Uint32("pulse_us", pulse),
		log.Uint32("duty", uint32(duty)))
	return o.pwm.SetDutyCycle(o.pin, duty)
}

// Release stops the output.
func (o *pwmOutput) Release() error {
	return o.pwm.DisablePWM(o.pin)
}

// PWMServoDriver is an ActuatorDriver that drives hobby servos directly from
// PWM pins.
type PWMServoDriver struct {
	pwm    PWMDriver
	pulses PulseRange
	logger log.Log
}

func NewPWMServoDriver(pwm PWMDriver, pulses PulseRange, logger log.Log) *PWMServoDriver {
	if logger == nil {
		logger = log.Nop()
	}
	return &PWMServoDriver{pwm: pwm, pulses: pulses, logger: logger}
}

// BindActuator configures pin for a 50Hz servo signal.
func (d *PWMServoDriver) BindActuator(pin ActuatorPin) (ActuatorHandle, error) {
	out, err := bindPWMOutput(d.pwm, PWMPin(pin), d.pulses, d.logger)
	if err != nil {
		return nil, err
	}
	return &PWMServo{out: out}, nil
}

// PWMServo is the handle returned by PWMServoDriver.
type PWMServo struct {
	out *pwmOutput
}

func (s *PWMServo) CommandAngle(angle float64) error {
	return s.out.write(angle)
}

func (s *PWMServo) Release() error {
	return s.out.Release()
}

// MotorOutput drives one speed controller with a signed speed in [-1, 1].
type MotorOutput interface {
	SetSpeed(speed float64) error
}

// MotorDriver binds pins to motor outputs.
type MotorDriver interface {
	BindMotor(pin ActuatorPin) (MotorOutput, error)
}

// PWMMotorDriver drives RC-style ESCs from PWM pins.
type PWMMotorDriver struct {
	pwm    PWMDriver
	pulses PulseRange
	logger log.Log
}

func NewPWMMotorDriver(pwm PWMDriver, pulses PulseRange, logger log.Log) *PWMMotorDriver {
	if logger == nil {
		logger = log.Nop()
	}
	return &PWMMotorDriver{pwm: pwm, pulses: pulses, logger: logger}
}

// BindMotor configures pin and parks the ESC at neutral.
func (d *PWMMotorDriver) BindMotor(pin ActuatorPin) (MotorOutput, error) {
	out, err := bindPWMOutput(d.pwm, PWMPin(pin), d.pulses, d.logger)
	if err != nil {
		return nil, err
	}
	m := &PWMMotor{out: out}
	if err := m.SetSpeed(0); err != nil {
		return nil, err
	}
	return m, nil
}

// PWMMotor is the output returned by PWMMotorDriver.
type PWMMotor struct {
	out *pwmOutput
}

func (m *PWMMotor) SetSpeed(speed float64) error {
	return m.out.write(speed)
}

func (m *PWMMotor) Release() error {
	return m.out.Release()
}
