package core

// PWMPin identifies a hardware pin capable of PWM output
type PWMPin uint32

// PWMValue is the duty cycle value (0 to GetMaxValue())
type PWMValue uint32

// PWMDriver is the abstract PWM interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type PWMDriver interface {
	// ConfigureHardwarePWM configures a pin for hardware PWM output
	// cycleTicks: PWM period in timer ticks
	// Returns the actual cycle ticks used (may be adjusted for hardware constraints)
	ConfigureHardwarePWM(pin PWMPin, cycleTicks uint32) (uint32, error)

	// SetDutyCycle sets the PWM duty cycle for a pin
	// value: 0 (fully off) to GetMaxValue() (fully on)
	SetDutyCycle(pin PWMPin, value PWMValue) error

	// GetMaxValue returns the maximum PWM value (65535 for 16-bit)
	GetMaxValue() uint32

	// DisablePWM stops the output on a pin
	DisablePWM(pin PWMPin) error
}
