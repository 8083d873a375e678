//go:build rp2040

package main

import "machine"

// InitUSB configures machine.Serial, which is USB CDC-ACM on the RP2040.
func InitUSB() {
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

func USBAvailable() int {
	return machine.Serial.Buffered()
}

func USBRead() (byte, error) {
	return machine.Serial.ReadByte()
}

func USBWriteBytes(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
