//go:build rp2040

package main

import (
	"fmt"
	"machine"

	"servostep/core"
)

// PWMMax is the full scale of SetDutyCycle values. Duties are rescaled to
// each slice's counter top.
const PWMMax = 0xFFFF

// pwmPeripheral abstracts over TinyGo's unexported *pwmGroup type. It is
// also the servo.PWM interface of tinygo.org/x/drivers/servo.
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

// RP2040PWMDriver implements core.PWMDriver on the 8 hardware PWM slices,
// two channels each. Both channels of a slice share one period.
type RP2040PWMDriver struct {
	// slice number -> configured period in nanoseconds
	slices map[uint8]uint64
	// pin number -> channel within its slice
	channels map[uint32]uint8
	// slice number -> peripheral
	peripherals map[uint8]pwmPeripheral
}

func NewRP2040PWMDriver() *RP2040PWMDriver {
	return &RP2040PWMDriver{
		slices:      make(map[uint8]uint64),
		channels:    make(map[uint32]uint8),
		peripherals: make(map[uint8]pwmPeripheral),
	}
}

func (d *RP2040PWMDriver) GetMaxValue() uint32 {
	return PWMMax
}

// ConfigureHardwarePWM sets the slice period from cycleTicks of the 12MHz
// timer and claims the channel for pin.
func (d *RP2040PWMDriver) ConfigureHardwarePWM(pin core.PWMPin, cycleTicks uint32) (uint32, error) {
	pinNum := uint32(pin)
	period := uint64(core.TimerToUS(cycleTicks)) * 1000

	pwm, err := d.claim(pinNum, period)
	if err != nil {
		return 0, err
	}
	channel, err := pwm.Channel(machine.Pin(pinNum))
	if err != nil {
		return 0, err
	}
	d.channels[pinNum] = channel
	return cycleTicks, nil
}

// claim configures the slice serving pin for period. A slice already
// running at another period is refused, it would retime the other channel.
func (d *RP2040PWMDriver) claim(pinNum uint32, period uint64) (pwmPeripheral, error) {
	// GPIO N drives slice (N >> 1) & 7, channel A for even pins.
	sliceNum := uint8((pinNum >> 1) & 0x7)

	if existing, ok := d.slices[sliceNum]; ok {
		if existing != period {
			return nil, fmt.Errorf("pin %d: PWM slice %d already runs at %dns", pinNum, sliceNum, existing)
		}
		return d.peripherals[sliceNum], nil
	}

	pwm := getPWMPeripheral(sliceNum)
	if err := pwm.Configure(machine.PWMConfig{Period: period}); err != nil {
		return nil, err
	}
	d.peripherals[sliceNum] = pwm
	d.slices[sliceNum] = period
	return pwm, nil
}

// SetDutyCycle scales value (0..PWMMax) onto the slice counter.
func (d *RP2040PWMDriver) SetDutyCycle(pin core.PWMPin, value core.PWMValue) error {
	pinNum := uint32(pin)
	channel, ok := d.channels[pinNum]
	if !ok {
		return fmt.Errorf("pin %d: PWM not configured", pinNum)
	}
	pwm := d.peripherals[uint8((pinNum>>1)&0x7)]

	duty := uint64(value) * uint64(pwm.Top()) / PWMMax
	pwm.Set(channel, uint32(duty))
	return nil
}

// DisablePWM drives the pin low. TinyGo has no way to return a pin to GPIO
// mode from PWM.
func (d *RP2040PWMDriver) DisablePWM(pin core.PWMPin) error {
	pinNum := uint32(pin)
	channel, ok := d.channels[pinNum]
	if !ok {
		return nil
	}
	d.peripherals[uint8((pinNum>>1)&0x7)].Set(channel, 0)
	delete(d.channels, pinNum)
	return nil
}

func getPWMPeripheral(sliceNum uint8) pwmPeripheral {
	switch sliceNum {
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	case 7:
		return machine.PWM7
	default:
		return machine.PWM0
	}
}
