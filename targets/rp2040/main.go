//go:build rp2040

package main

import (
	"machine"
	"strconv"
	"time"

	"servostep/core"
	"servostep/observability/log"
	"servostep/protocol"
)

const gpioPins = 30

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	firmware     *core.Firmware

	// Debug counters
	messagesReceived uint32
	messagesSent     uint32
	msgerrors        uint32

	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	// Clear any watchdog state left from before the reset.
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitUSB()

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()

	pwm := NewRP2040PWMDriver()
	servos, err := newServoDriver(pwm, core.DefaultServoPulseRange())
	if err != nil {
		return
	}

	pins := make([]string, gpioPins)
	for i := range pins {
		pins[i] = "gpio" + strconv.Itoa(i)
	}

	logger := log.Nop()
	firmware, err = core.NewFirmware(outputBuffer, servos,
		core.WithFirmwareLogger(logger),
		core.WithMotorDriver(core.NewPWMMotorDriver(pwm, core.DefaultMotorPulseRange(), logger)),
		core.WithConstant("MCU", "rp2040"),
		core.WithConstant("PWM_MAX", uint32(PWMMax)),
		core.WithEnumeration("pin", pins),
	)
	if err != nil {
		return
	}

	// Push each ACK, with the responses queued ahead of it, out at once.
	firmware.Transport().SetFlushCallback(writeUSB)

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			readUSB()

			if inputBuffer.Available() > 0 {
				firmware.Receive(inputBuffer)
				messagesReceived++
			}

			if len(outputBuffer.Result()) > 0 {
				writeUSB()
				messagesSent++
			}
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

// readUSB moves pending USB bytes into the input FIFO. The first data after
// a disconnect starts a fresh session with every output released.
func readUSB() {
	for USBAvailable() > 0 {
		data, err := USBRead()
		if err != nil {
			msgerrors++
			return
		}

		if usbWasDisconnected {
			usbWasDisconnected = false
			inputBuffer.Reset()
			outputBuffer.Reset()
			firmware.Transport().Reset()
			firmware.Reset()
			messagesReceived = 0
			messagesSent = 0
			consecutiveWriteFailures = 0
		}

		if inputBuffer.Write([]byte{data}) == 0 {
			msgerrors++
			return
		}
	}
}

// writeUSB sends the output buffer. Repeated failures mark the host as
// gone and drop the stale data.
func writeUSB() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}
