package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrAckTimeout      = errors.New("ACK timeout")
	ErrResponseTimeout = errors.New("response timeout")
	ErrTransportClosed = errors.New("transport closed")
	ErrSequence        = errors.New("sequence mismatch")
)

// DefaultAckTimeout bounds how long SendCommand waits for the firmware.
const DefaultAckTimeout = 2 * time.Second

// ResponseHandler sees every non-ACK frame from the firmware, with data
// positioned after the command ID.
type ResponseHandler func(cmdID uint16, data *[]byte) error

// HostTransport is the host end of the link. A background reader splits the
// incoming stream into ACKs and responses; senders block until the firmware
// acknowledges each frame.
type HostTransport struct {
	port io.ReadWriteCloser

	scanner frameScanner
	seq     atomic.Uint32
	input   *FifoBuffer

	// sendMu serializes the whole write-then-wait-for-ACK cycle.
	sendMu sync.Mutex

	ackChan      chan Message
	responseChan chan Message

	handlerMu       sync.RWMutex
	responseHandler ResponseHandler

	stopChan  chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewHostTransport starts reading from port immediately.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		input:        NewFifoBuffer(1024),
		ackChan:      make(chan Message, 1),
		responseChan: make(chan Message, 16),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	t.seq.Store(MessageDest)

	go t.readLoop()

	return t
}

// SendCommand sends one command and waits for its ACK.
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, DefaultAckTimeout)
}

func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	payload := NewScratchOutput()
	EncodeVLQUint(payload, uint32(cmdID))
	if args != nil {
		args(payload)
	}

	seq := uint8(t.seq.Load())
	frame, err := AppendFrame(nil, seq, payload.Result())
	if err != nil {
		return fmt.Errorf("failed to build command %d: %w", cmdID, err)
	}

	t.drainAcks()

	n, err := t.port.Write(frame)
	if err != nil {
		return fmt.Errorf("failed to write command %d: %w", cmdID, err)
	}
	if n != len(frame) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(frame))
	}

	return t.waitForAck(seq, timeout)
}

func (t *HostTransport) drainAcks() {
	for {
		select {
		case <-t.ackChan:
		default:
			return
		}
	}
}

func (t *HostTransport) waitForAck(seq uint8, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	expected := NextSequence(seq)
	select {
	case ack := <-t.ackChan:
		if ack.Sequence != expected {
			return fmt.Errorf("%w: expected 0x%02x, got 0x%02x", ErrSequence, expected, ack.Sequence)
		}
		t.seq.Store(uint32(expected))
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrAckTimeout, timeout)
	case <-t.stopChan:
		return ErrTransportClosed
	}
}

// ReceiveResponse returns the next queued response frame.
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-t.responseChan:
		return resp, nil
	case <-timer.C:
		return Message{}, fmt.Errorf("%w after %v", ErrResponseTimeout, timeout)
	case <-t.stopChan:
		return Message{}, ErrTransportClosed
	}
}

// DrainResponses discards queued responses, typically before a query.
func (t *HostTransport) DrainResponses() {
	for {
		select {
		case <-t.responseChan:
		default:
			return
		}
	}
}

func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handlerMu.Lock()
	t.responseHandler = handler
	t.handlerMu.Unlock()
}

// CurrentSequence returns the sequence the next command will carry.
func (t *HostTransport) CurrentSequence() uint8 {
	return uint8(t.seq.Load())
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buf := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if n > 0 {
			t.input.Write(buf[:n])
			consumed := t.scanner.scan(t.input.Data(), nil, t.dispatch)
			t.input.Pop(consumed)
		}
		if err != nil {
			select {
			case <-t.stopChan:
				return
			default:
			}
			// Serial ports report read timeouts as EOF, so only a
			// closed transport ends the loop.
			if n == 0 {
				time.Sleep(10 * time.Millisecond)
			}
		}
	}
}

func (t *HostTransport) dispatch(msg Message) bool {
	if msg.IsAck() {
		select {
		case t.ackChan <- msg:
		default:
			// Keep the newest ACK.
			select {
			case <-t.ackChan:
			default:
			}
			t.ackChan <- msg
		}
		return true
	}

	t.handlerMu.RLock()
	handler := t.responseHandler
	t.handlerMu.RUnlock()
	if handler != nil {
		data := msg.Payload
		if cmdID, err := DecodeVLQUint(&data); err == nil {
			_ = handler(uint16(cmdID), &data)
		}
	}

	select {
	case t.responseChan <- msg:
	default:
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- msg
	}
	return true
}

// Close stops the reader and closes the port.
func (t *HostTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.stopChan)
		t.closeErr = t.port.Close()
		<-t.doneChan
	})
	return t.closeErr
}
