package core

import (
	"fmt"
	"sync"
)

// CommandHandler is a function that handles a command with raw frame data
// The handler is responsible for decoding its own arguments from the data pointer
type CommandHandler func(data *[]byte) error

// Command is one entry of the data dictionary. Responses are commands
// without a handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // e.g. "oid=%c angle=%i"
	Handler CommandHandler
}

// FormatString is the dictionary key: "name arg=%type ...".
func (c *Command) FormatString() string {
	if c.Format == "" {
		return c.Name
	}
	return c.Name + " " + c.Format
}

// CommandRegistry assigns sequential IDs to commands and responses.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[uint16]*Command
	nameToID map[string]uint16
	nextID   uint16
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[uint16]*Command),
		nameToID: make(map[string]uint16),
	}
}

// Register adds a command and returns its ID. Registering a name twice
// returns the existing ID.
func (r *CommandRegistry) Register(name string, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.nameToID[name]; exists {
		return id
	}

	id := r.nextID
	r.nextID++

	r.commands[id] = &Command{
		ID:      id,
		Name:    name,
		Format:  format,
		Handler: handler,
	}
	r.nameToID[name] = id

	return id
}

// RegisterResponse registers a message sent from the firmware to the host.
func (r *CommandRegistry) RegisterResponse(name string, format string) uint16 {
	return r.Register(name, format, nil)
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

// Lookup retrieves a command by name.
func (r *CommandRegistry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Count returns the number of registered commands
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the appropriate command handler
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(cmdID)
	if !ok {
		return fmt.Errorf("unknown command ID: %d", cmdID)
	}
	if cmd.Handler == nil {
		return fmt.Errorf("%s is a response, not a command", cmd.Name)
	}
	return cmd.Handler(data)
}

// GetCommandsAndResponses returns the dictionary tables keyed by format string.
// Commands have handlers (host->MCU), responses have nil handlers (MCU->host)
func (r *CommandRegistry) GetCommandsAndResponses() (map[string]int, map[string]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands := make(map[string]int)
	responses := make(map[string]int)

	for id, cmd := range r.commands {
		if cmd.Handler != nil {
			commands[cmd.FormatString()] = int(id)
		} else {
			responses[cmd.FormatString()] = int(id)
		}
	}

	return commands, responses
}
