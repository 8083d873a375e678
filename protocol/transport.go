package protocol

import "sync/atomic"

// CommandHandler handles one decoded command. data is positioned after the
// command ID and the handler must consume its own arguments.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the firmware end of the link. It is driven synchronously from
// the firmware main loop: Receive parses frames, dispatches their commands and
// queues an ACK for every frame.
type Transport struct {
	scanner      frameScanner
	nextSequence atomic.Uint32

	output        OutputBuffer
	handler       CommandHandler
	resetCallback func()
	flushCallback func()
	errorCallback func(cmdID uint16, err error)
}

func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{
		output:  output,
		handler: handler,
	}
	t.nextSequence.Store(MessageDest)
	return t
}

// Receive consumes complete frames from input.
func (t *Transport) Receive(input InputBuffer) {
	consumed := t.scanner.scan(input.Data(), t.encodeAckNak, t.handleFrame)
	if consumed > 0 {
		input.Pop(consumed)
	}
}

func (t *Transport) handleFrame(msg Message) bool {
	if msg.Sequence&^MessageSeqMask != MessageDest {
		return false
	}

	expected := uint8(t.nextSequence.Load())
	if msg.Sequence == MessageDest && expected != MessageDest {
		// Host restarted its sequence.
		t.nextSequence.Store(MessageDest)
		expected = MessageDest
		if t.resetCallback != nil {
			t.resetCallback()
		}
	}

	// Out-of-order frames are dropped and the ACK below doubles as a NAK
	// carrying the sequence we still expect.
	if msg.Sequence == expected {
		t.nextSequence.Store(uint32(NextSequence(msg.Sequence)))
		t.parseFrame(msg.Payload)
	}

	t.encodeAckNak()
	return true
}

func (t *Transport) parseFrame(frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.scanner.setSynchronized(false)
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.scanner.setSynchronized(false)
			return
		}
		if t.handler == nil {
			return
		}
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			// The remaining commands cannot be located once a handler
			// has failed mid-argument.
			if t.errorCallback != nil {
				t.errorCallback(uint16(cmdID), err)
			}
			return
		}
	}
}

func (t *Transport) encodeAckNak() {
	var buf [MessageLengthMin]byte
	frame, _ := AppendFrame(buf[:0], uint8(t.nextSequence.Load()), nil)
	t.output.Output(frame)

	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame sends one frame whose payload is produced by frameData.
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) error {
	payload := NewScratchOutput()
	frameData(payload)

	var buf [MessageLengthMax]byte
	frame, err := AppendFrame(buf[:0], uint8(t.nextSequence.Load()), payload.Result())
	if err != nil {
		return err
	}
	t.output.Output(frame)
	return nil
}

// SendCommand sends a message (usually a response) to the host.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns the transport to its power-on state.
func (t *Transport) Reset() {
	t.scanner.setSynchronized(true)
	t.nextSequence.Store(MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback registers a hook run when the host restarts its sequence.
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback registers a hook that pushes queued output to the wire
// right after each ACK.
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

// SetErrorCallback registers a hook for command handler failures.
func (t *Transport) SetErrorCallback(callback func(cmdID uint16, err error)) {
	t.errorCallback = callback
}

// NextSequence returns the sequence the transport expects next.
func (t *Transport) NextSequence() uint8 {
	return uint8(t.nextSequence.Load())
}
