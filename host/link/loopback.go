package link

import (
	"errors"
	"io"
	"strconv"
	"sync"

	"servostep/core"
	"servostep/observability/log"
	"servostep/protocol"
)

// LoopbackPins is the number of pins the simulated firmware exposes.
const LoopbackPins = 30

var ErrPortClosed = errors.New("port closed")

// Loopback is a serial.Port backed by an in-process firmware driving a
// simulated PWM peripheral. Every Write is processed synchronously and its
// output becomes readable immediately.
type Loopback struct {
	mu      sync.Mutex
	fw      *core.Firmware
	pwm     *core.SimPWMDriver
	input   *protocol.FifoBuffer
	pending []byte

	ready     chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// NewLoopback builds the simulated firmware with servo and motor drivers.
// opts are applied after the defaults.
func NewLoopback(logger log.Log, opts ...core.FirmwareOption) (*Loopback, error) {
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.With(log.String("side", "firmware"))

	lb := &Loopback{
		pwm:    core.NewSimPWMDriver(logger),
		input:  protocol.NewFifoBuffer(1024),
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}

	pins := make([]string, LoopbackPins)
	for i := range pins {
		pins[i] = "gpio" + strconv.Itoa(i)
	}

	fwOpts := []core.FirmwareOption{
		core.WithFirmwareLogger(logger),
		core.WithMotorDriver(core.NewPWMMotorDriver(lb.pwm, core.DefaultMotorPulseRange(), logger)),
		core.WithConstant("MCU", "sim"),
		core.WithConstant("PWM_MAX", core.SimPWMMax),
		core.WithEnumeration("pin", pins),
	}
	fw, err := core.NewFirmware(lb,
		core.NewPWMServoDriver(lb.pwm, core.DefaultServoPulseRange(), logger),
		append(fwOpts, opts...)...)
	if err != nil {
		return nil, err
	}
	lb.fw = fw
	return lb, nil
}

// Output collects firmware output. It runs inside Write with mu held.
func (lb *Loopback) Output(data []byte) {
	lb.pending = append(lb.pending, data...)
}

func (lb *Loopback) Write(b []byte) (int, error) {
	select {
	case <-lb.closed:
		return 0, ErrPortClosed
	default:
	}

	lb.mu.Lock()
	n := lb.input.Write(b)
	lb.fw.Receive(lb.input)
	hasOutput := len(lb.pending) > 0
	lb.mu.Unlock()

	if hasOutput {
		select {
		case lb.ready <- struct{}{}:
		default:
		}
	}
	if n < len(b) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (lb *Loopback) Read(b []byte) (int, error) {
	for {
		lb.mu.Lock()
		if len(lb.pending) > 0 {
			n := copy(b, lb.pending)
			lb.pending = lb.pending[n:]
			lb.mu.Unlock()
			return n, nil
		}
		lb.mu.Unlock()

		select {
		case <-lb.ready:
		case <-lb.closed:
			return 0, io.EOF
		}
	}
}

func (lb *Loopback) Flush() error {
	return nil
}

func (lb *Loopback) Close() error {
	lb.closeOnce.Do(func() { close(lb.closed) })
	return nil
}

// Reopen makes a closed loopback usable again. The firmware keeps its
// state, like a board that stayed powered while the host reconnected.
func (lb *Loopback) Reopen() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.pending = nil
	lb.input.Reset()
	select {
	case <-lb.ready:
	default:
	}
	lb.closed = make(chan struct{})
	lb.closeOnce = sync.Once{}
}

// PWM exposes the simulated peripheral.
func (lb *Loopback) PWM() *core.SimPWMDriver {
	return lb.pwm
}

// Firmware exposes the simulated firmware.
func (lb *Loopback) Firmware() *core.Firmware {
	return lb.fw
}
