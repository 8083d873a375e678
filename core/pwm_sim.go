package core

import (
	"fmt"
	"sync"

	"servostep/observability/log"
)

// SimPWMMax is the full scale of SimPWMDriver, matching a 16-bit counter.
const SimPWMMax = 0xFFFF

// SimPWMDriver is a PWMDriver without hardware. It remembers the duty of
// every configured pin so simulations and tests can read the output back.
type SimPWMDriver struct {
	mu     sync.Mutex
	cycles map[PWMPin]uint32
	duties map[PWMPin]PWMValue
	logger log.Log
}

func NewSimPWMDriver(logger log.Log) *SimPWMDriver {
	if logger == nil {
		logger = log.Nop()
	}
	return &SimPWMDriver{
		cycles: make(map[PWMPin]uint32),
		duties: make(map[PWMPin]PWMValue),
		logger: logger,
	}
}

func (d *SimPWMDriver) ConfigureHardwarePWM(pin PWMPin, cycleTicks uint32) (uint32, error) {
	if cycleTicks == 0 {
		return 0, fmt.Errorf("pin %d: zero PWM cycle", pin)
	}
	d.mu.Lock()
	d.cycles[pin] = cycleTicks
	d.duties[pin] = 0
	d.mu.Unlock()

	d.logger.Debug("sim pwm configured", log.Uint32("pin", uint32(pin)), log.Uint32("cycle_ticks", cycleTicks))
	return cycleTicks, nil
}

func (d *SimPWMDriver) SetDutyCycle(pin PWMPin, value PWMValue) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.cycles[pin]; !ok {
		return fmt.Errorf("pin %d: PWM not configured", pin)
	}
	if uint32(value) > SimPWMMax {
		value = SimPWMMax
	}
	d.duties[pin] = value
	return nil
}

func (d *SimPWMDriver) GetMaxValue() uint32 {
	return SimPWMMax
}

func (d *SimPWMDriver) DisablePWM(pin PWMPin) error {
	d.mu.Lock()
	delete(d.cycles, pin)
	delete(d.duties, pin)
	d.mu.Unlock()
	return nil
}

// Duty returns the last duty written to pin.
func (d *SimPWMDriver) Duty(pin PWMPin) (PWMValue, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.duties[pin]
	return v, ok
}

// PulseUS converts the current duty on pin back into a pulse width.
func (d *SimPWMDriver) PulseUS(pin PWMPin) (uint32, bool) {
	duty, ok := d.Duty(pin)
	if !ok {
		return 0, false
	}
	return uint32((uint64(duty)*ServoPeriodUS + SimPWMMax/2) / SimPWMMax), true
}
