package core

import (
	"fmt"
	"strconv"
	"sync"

	"servostep/protocol"
	"servostep/tinycompress"
)

// Dictionary manages the data dictionary sent to the host through identify.
type Dictionary struct {
	mu            sync.RWMutex
	constants     map[string]string
	enumerations  map[string]map[string]int
	commandReg    *CommandRegistry
	version       string
	buildVersions string
	cachedDict    []byte
}

func NewDictionary(cmdReg *CommandRegistry) *Dictionary {
	return &Dictionary{
		constants:     make(map[string]string),
		enumerations:  make(map[string]map[string]int),
		commandReg:    cmdReg,
		version:       protocol.Version,
		buildVersions: "go",
	}
}

// AddConstant adds a constant to the dictionary. Integers are rendered in
// decimal, any other type through fmt. The host parses every value as a
// string.
func (d *Dictionary) AddConstant(name string, value any) {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case int:
		s = strconv.Itoa(v)
	case int32:
		s = strconv.FormatInt(int64(v), 10)
	case uint32:
		s = strconv.FormatUint(uint64(v), 10)
	case float64:
		s = strconv.FormatFloat(v, 'g', -1, 64)
	default:
		s = fmt.Sprint(v)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = s
	d.cachedDict = nil
}

// AddEnumeration maps each non-empty value to its index.
func (d *Dictionary) AddEnumeration(name string, values []string) {
	enum := make(map[string]int, len(values))
	for i, v := range values {
		if v != "" {
			enum[v] = i
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.enumerations[name] = enum
	d.cachedDict = nil
}

func (d *Dictionary) SetVersion(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
	d.cachedDict = nil
}

func (d *Dictionary) SetBuildVersions(versions string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildVersions = versions
	d.cachedDict = nil
}

// BuildDictionary builds and caches the zlib-wrapped dictionary (call after
// all commands registered)
func (d *Dictionary) BuildDictionary() error {
	// Read the registry before taking our own lock.
	commands, responses := d.commandReg.GetCommandsAndResponses()

	d.mu.Lock()
	defer d.mu.Unlock()

	doc := protocol.Dictionary{
		Version:       d.version,
		BuildVersions: d.buildVersions,
		Config:        make(map[string]string, len(d.constants)),
		Commands:      commands,
		Responses:     responses,
	}
	for k, v := range d.constants {
		doc.Config[k] = v
	}
	if len(d.enumerations) > 0 {
		doc.Enumerations = make(map[string]map[string]int, len(d.enumerations))
		for name, enum := range d.enumerations {
			doc.Enumerations[name] = enum
		}
	}

	data, err := doc.Marshal()
	if err != nil {
		return err
	}
	d.cachedDict = tinycompress.Zlib(data)
	return nil
}

// Generate returns the compressed dictionary, building it if needed.
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	cached := d.cachedDict
	d.mu.RUnlock()
	if cached != nil {
		return cached
	}

	if err := d.BuildDictionary(); err != nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cachedDict
}

// GetChunk returns a chunk of the dictionary starting at offset
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Generate()

	if offset >= uint32(len(data)) {
		return []byte{}
	}

	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}

	// Return a copy, the cache may be rebuilt while the chunk is in flight.
	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}
