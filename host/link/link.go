// Package link talks to the actuator firmware from the host: it fetches the
// data dictionary, sends named commands and exposes remote servos and
// drivetrains through the core interfaces.
package link

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"servostep/host/serial"
	"servostep/observability/log"
	"servostep/protocol"
)

var (
	ErrNotConnected   = errors.New("not connected to firmware")
	ErrNoDictionary   = errors.New("dictionary not loaded")
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnknownPin     = errors.New("unknown pin")
	ErrOIDsExhausted  = errors.New("no free oids")
	ErrPinMismatch    = errors.New("firmware oid bound to a different pin")
)

const (
	identifyChunk        = 40
	maxIdentifyRounds    = 1000
	DefaultQueryTimeout  = time.Second
	connectSettleTimeout = 100 * time.Millisecond
)

// Link is one session with a firmware instance.
type Link struct {
	// base is the caller's logger; logger adds the current session to it.
	base         log.Log
	logger       log.Log
	queryTimeout time.Duration

	// mu serializes command/response exchanges.
	mu        sync.Mutex
	transport *protocol.HostTransport
	session   uuid.UUID
	raw       []byte
	nextOID   int

	dictionary atomic.Pointer[protocol.Dictionary]
}

// New returns an unconnected link.
func New(logger log.Log) *Link {
	if logger == nil {
		logger = log.Nop()
	}
	return &Link{
		base:         logger,
		logger:       logger,
		queryTimeout: DefaultQueryTimeout,
	}
}

// SetQueryTimeout bounds how long Query waits for a response.
func (l *Link) SetQueryTimeout(timeout time.Duration) {
	l.queryTimeout = timeout
}

// Connect opens the serial device described by cfg.
func (l *Link) Connect(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return err
	}
	if err := port.Flush(); err != nil {
		l.logger.Warn("failed to flush serial port", log.Error(err))
	}
	// Give the firmware time to initialize if it just powered on.
	time.Sleep(connectSettleTimeout)
	return l.ConnectPort(port)
}

// ConnectPort starts a session over an already open port.
func (l *Link) ConnectPort(port serial.Port) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.transport != nil {
		return errors.New("already connected")
	}
	l.session = uuid.New()
	l.logger = l.base.With(log.String("session", l.session.String()))
	l.transport = protocol.NewHostTransport(port)
	l.transport.SetResponseHandler(l.handleResponse)
	l.logger.Info("connected to firmware")
	return nil
}

// Close ends the session and closes the port.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.transport == nil {
		return nil
	}
	err := l.transport.Close()
	l.transport = nil
	l.logger.Info("disconnected from firmware")
	return err
}

// Session identifies the current connection in logs.
func (l *Link) Session() uuid.UUID {
	return l.session
}

// IsConnected returns whether the firmware is connected
func (l *Link) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transport != nil
}

// Dictionary returns the parsed dictionary, or nil before RetrieveDictionary.
func (l *Link) Dictionary() *protocol.Dictionary {
	return l.dictionary.Load()
}

// DictionaryRaw returns the dictionary as received.
func (l *Link) DictionaryRaw() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.raw
}

// RetrieveDictionary reads the complete dictionary through identify.
func (l *Link) RetrieveDictionary() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.transport == nil {
		return ErrNotConnected
	}

	var buf bytes.Buffer
	offset := uint32(0)
	for i := 0; i < maxIdentifyRounds; i++ {
		chunk, err := l.identify(offset, identifyChunk)
		if err != nil {
			return fmt.Errorf("failed to retrieve dictionary chunk at offset %d: %w", offset, err)
		}
		if len(chunk) == 0 {
			break
		}
		buf.Write(chunk)
		offset += uint32(len(chunk))
		if len(chunk) < identifyChunk {
			break
		}
	}

	dict, err := protocol.ParseDictionary(buf.Bytes())
	if err != nil {
		return err
	}
	l.raw = buf.Bytes()
	l.dictionary.Store(dict)
	l.logger.Info("dictionary retrieved",
		log.Int("bytes", buf.Len()),
		log.String("version", dict.Version),
		log.Int("commands", len(dict.Commands)),
		log.Int("responses", len(dict.Responses)))
	return nil
}

func (l *Link) identify(offset uint32, count uint8) ([]byte, error) {
	l.transport.DrainResponses()
	err := l.transport.SendCommand(protocol.CmdIdentify, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send identify command: %w", err)
	}

	resp, err := l.transport.ReceiveResponse(l.queryTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to receive identify response: %w", err)
	}

	payload := resp.Payload
	cmdID, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response command ID: %w", err)
	}
	if cmdID != protocol.CmdIdentifyResponse {
		return nil, fmt.Errorf("unexpected response command ID: %d (expected %d)", cmdID, protocol.CmdIdentifyResponse)
	}

	respOffset, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response offset: %w", err)
	}
	if respOffset != offset {
		return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
	}

	return protocol.DecodeVLQBytes(&payload)
}

// SendCommand sends a command by name with integer arguments in dictionary
// order.
func (l *Link) SendCommand(name string, args ...int32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.send(name, args)
}

func (l *Link) send(name string, args []int32) error {
	if l.transport == nil {
		return ErrNotConnected
	}
	dict := l.dictionary.Load()
	if dict == nil {
		return ErrNoDictionary
	}
	cmdID, ok := dict.CommandID(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	err := l.transport.SendCommand(cmdID, func(output protocol.OutputBuffer) {
		for _, a := range args {
			protocol.EncodeVLQInt(output, a)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", name, err)
	}
	return nil
}

// Query sends a command and waits for the named response whose first
// argument equals the first argument of the command (the oid). It returns
// the response arguments.
func (l *Link) Query(name string, args []int32, response string) ([]int32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.transport == nil {
		return nil, ErrNotConnected
	}
	dict := l.dictionary.Load()
	if dict == nil {
		return nil, ErrNoDictionary
	}
	respID, ok := dict.ResponseID(response)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, response)
	}

	l.transport.DrainResponses()
	if err := l.send(name, args); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(l.queryTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("no %s for %s: %w", response, name, protocol.ErrResponseTimeout)
		}
		msg, err := l.transport.ReceiveResponse(remaining)
		if err != nil {
			return nil, fmt.Errorf("no %s for %s: %w", response, name, err)
		}
		id, values, err := decodeArgs(msg.Payload)
		if err != nil {
			l.logger.Warn("undecodable response", log.Error(err))
			continue
		}
		if id != respID {
			continue
		}
		if len(args) > 0 && (len(values) == 0 || values[0] != args[0]) {
			continue
		}
		return values, nil
	}
}

func decodeArgs(payload []byte) (uint16, []int32, error) {
	id, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return 0, nil, err
	}
	var values []int32
	for len(payload) > 0 {
		v, err := protocol.DecodeVLQInt(&payload)
		if err != nil {
			return 0, nil, err
		}
		values = append(values, v)
	}
	return uint16(id), values, nil
}

// Reset asks the firmware to release every configured output.
func (l *Link) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.send("config_reset", nil); err != nil {
		return err
	}
	l.nextOID = 0
	return nil
}

// ResolvePin accepts a decimal pin number or a name from the firmware's
// "pin" enumeration.
func (l *Link) ResolvePin(name string) (uint32, error) {
	name = strings.TrimSpace(name)
	if n, err := strconv.ParseUint(name, 10, 32); err == nil {
		return uint32(n), nil
	}
	dict := l.dictionary.Load()
	if dict == nil {
		return 0, ErrNoDictionary
	}
	if pin, ok := dict.Enumerations["pin"][name]; ok {
		return uint32(pin), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownPin, name)
}

func (l *Link) allocateOID() (uint8, error) {
	if l.nextOID > 0xFF {
		return 0, ErrOIDsExhausted
	}
	oid := uint8(l.nextOID)
	l.nextOID++
	return oid, nil
}

// handleResponse runs on the transport's reader goroutine.
func (l *Link) handleResponse(cmdID uint16, data *[]byte) error {
	name := strconv.Itoa(int(cmdID))
	if dict := l.dictionary.Load(); dict != nil {
		for format, id := range dict.Responses {
			if id == int(cmdID) {
				name = protocol.MessageName(format)
				break
			}
		}
	}
	l.logger.Debug("response", log.String("name", name), log.Int("bytes", len(*data)))
	return nil
}
