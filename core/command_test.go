package core

import (
	"servostep/protocol"
	"testing"
)

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	// Register a command
	var called bool
	handler := func(data *[]byte) error {
		called = true
		return nil
	}

	id := registry.Register("test_command", "arg=%u", handler)

	if id != 0 {
		t.Errorf("Expected first command to have ID 0, got %d", id)
	}

	// Verify command can be retrieved
	cmd, ok := registry.GetCommand(id)
	if !ok {
		t.Fatal("Failed to retrieve registered command")
	}

	if cmd.Name != "test_command" {
		t.Errorf("Expected command name 'test_command', got '%s'", cmd.Name)
	}
	if cmd.FormatString() != "test_command arg=%u" {
		t.Errorf("Unexpected format string %q", cmd.FormatString())
	}

	// Test dispatch
	var data []byte
	if err := registry.Dispatch(id, &data); err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}

	if !called {
		t.Error("Command handler was not called")
	}

	// Test unknown command
	if err := registry.Dispatch(999, &data); err == nil {
		t.Error("Expected error for unknown command ID")
	}
}

func TestCommandRegistryMultiple(t *testing.T) {
	registry := NewCommandRegistry()

	id1 := registry.Register("command1", "arg1=%u", func(data *[]byte) error { return nil })
	id2 := registry.Register("command2", "arg2=%u", func(data *[]byte) error { return nil })
	id3 := registry.RegisterResponse("response3", "arg3=%u")

	if id1 != 0 || id2 != 1 || id3 != 2 {
		t.Errorf("Command IDs not sequential: %d, %d, %d", id1, id2, id3)
	}

	if again := registry.Register("command1", "", nil); again != id1 {
		t.Errorf("Re-registering returned %d, want %d", again, id1)
	}
	if registry.Count() != 3 {
		t.Errorf("Expected 3 commands, got %d", registry.Count())
	}

	if cmd, ok := registry.Lookup("command2"); !ok || cmd.ID != id2 {
		t.Errorf("Lookup(command2) = %v, %v", cmd, ok)
	}
	if _, ok := registry.Lookup("missing"); ok {
		t.Error("Lookup found an unregistered name")
	}
}

func TestCommandRegistryResponsesAreNotDispatched(t *testing.T) {
	registry := NewCommandRegistry()
	id := registry.RegisterResponse("servo_state", "oid=%c angle=%i")

	var data []byte
	if err := registry.Dispatch(id, &data); err == nil {
		t.Error("Expected dispatching a response to fail")
	}
}

func TestCommandsAndResponses(t *testing.T) {
	registry := NewCommandRegistry()

	registry.RegisterResponse("identify_response", "offset=%u data=%*s")
	registry.Register("identify", "offset=%u count=%c", func(data *[]byte) error { return nil })
	registry.Register("config_reset", "", func(data *[]byte) error { return nil })

	commands, responses := registry.GetCommandsAndResponses()

	if commands["identify offset=%u count=%c"] != 1 {
		t.Errorf("identify missing or misnumbered: %v", commands)
	}
	if _, ok := commands["config_reset"]; !ok {
		t.Errorf("config_reset missing: %v", commands)
	}
	if responses["identify_response offset=%u data=%*s"] != 0 {
		t.Errorf("identify_response missing or misnumbered: %v", responses)
	}
}

func TestCommandWithArguments(t *testing.T) {
	registry := NewCommandRegistry()

	var receivedValue uint32

	handler := func(data *[]byte) error {
		val, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		receivedValue = val
		return nil
	}

	id := registry.Register("test_args", "value=%u", handler)

	// Create test data
	output := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(output, 12345)
	data := output.Result()

	if err := registry.Dispatch(id, &data); err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}

	if receivedValue != 12345 {
		t.Errorf("Expected value 12345, got %d", receivedValue)
	}
}
