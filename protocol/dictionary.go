package protocol

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Dictionary is the JSON document the firmware serves through identify. It
// maps command and response formats onto their numeric IDs.
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

// InflateDictionary unpacks the zlib stream served through identify.
func InflateDictionary(blob []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to open dictionary stream: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to inflate dictionary: %w", err)
	}
	return data, nil
}

// ParseDictionary decodes a zlib-compressed dictionary document.
func ParseDictionary(blob []byte) (*Dictionary, error) {
	data, err := InflateDictionary(blob)
	if err != nil {
		return nil, err
	}
	dict := &Dictionary{}
	if err := json.Unmarshal(data, dict); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dictionary: %w", err)
	}
	return dict, nil
}

// Marshal encodes the dictionary as JSON. The firmware compresses the
// result before serving it.
func (d *Dictionary) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// CommandID looks a command up by bare name ("servo_angle") rather than by
// full format string.
func (d *Dictionary) CommandID(name string) (uint16, bool) {
	return lookupByName(d.Commands, name)
}

// ResponseID looks a response up by bare name.
func (d *Dictionary) ResponseID(name string) (uint16, bool) {
	return lookupByName(d.Responses, name)
}

func lookupByName(table map[string]int, name string) (uint16, bool) {
	for format, id := range table {
		if MessageName(format) == name {
			return uint16(id), true
		}
	}
	return 0, false
}

// MessageName strips the argument list from a format string.
func MessageName(format string) string {
	if i := strings.IndexByte(format, ' '); i >= 0 {
		return format[:i]
	}
	return format
}
