//go:build rp2040

package main

import (
	"fmt"
	"machine"
	"math"

	"tinygo.org/x/drivers/servo"

	"servostep/core"
)

// servoDriver binds actuators through the TinyGo servo driver, sharing the
// PWM slices with the motor outputs of pwm.
type servoDriver struct {
	pwm    *RP2040PWMDriver
	pulses core.PulseRange
}

func newServoDriver(pwm *RP2040PWMDriver, pulses core.PulseRange) (*servoDriver, error) {
	if err := pulses.Validate(); err != nil {
		return nil, err
	}
	return &servoDriver{pwm: pwm, pulses: pulses}, nil
}

func (d *servoDriver) BindActuator(pin core.ActuatorPin) (core.ActuatorHandle, error) {
	pwm, err := d.pwm.claim(uint32(pin), core.ServoPeriodUS*1000)
	if err != nil {
		return nil, err
	}
	s, err := servo.New(pwm, machine.Pin(pin))
	if err != nil {
		return nil, fmt.Errorf("pin %d: %w", pin, err)
	}
	return &rpServo{servo: s, pulses: d.pulses}, nil
}

type rpServo struct {
	servo  servo.Servo
	pulses core.PulseRange
}

func (s *rpServo) CommandAngle(angle float64) error {
	if math.IsNaN(angle) {
		return core.ErrNotANumber
	}
	s.servo.SetMicroseconds(int16(s.pulses.Pulse(angle)))
	return nil
}

// Release stops the pulse train; the servo goes limp.
func (s *rpServo) Release() error {
	s.servo.SetMicroseconds(0)
	return nil
}
