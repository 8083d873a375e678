package serial

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyACM0")
	assert.Equal(t, "/dev/ttyACM0", cfg.Device)
	assert.Equal(t, DefaultBaud, cfg.Baud)
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
}

func TestOpenWithoutDevice(t *testing.T) {
	_, err := Open(nil)
	assert.ErrorIs(t, err, ErrNoDevice)

	_, err = Open(&Config{})
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestOpenMissingDevice(t *testing.T) {
	device := filepath.Join(t.TempDir(), "ttyMISSING")
	_, err := Open(DefaultConfig(device))
	require.Error(t, err)
	assert.Contains(t, err.Error(), device)
}
