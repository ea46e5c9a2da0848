package wasm

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/canoncall/errors"
)

// Memory wraps a module's linear memory so struct contents can be marshaled
// in place at guest addresses.
type Memory struct {
	mem api.Memory
}

// View returns the size bytes at guest address ptr. The slice aliases guest
// memory and is invalidated when the memory grows.
func (m *Memory) View(ptr, size uint32) ([]byte, error) {
	data, ok := m.mem.Read(ptr, size)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseMarshal, []string{"memory"}, uintptr(ptr)+uintptr(size), uintptr(m.mem.Size()))
	}
	return data, nil
}

// Write copies data to guest address ptr.
func (m *Memory) Write(ptr uint32, data []byte) error {
	if !m.mem.Write(ptr, data) {
		return errors.OutOfBounds(errors.PhaseMarshal, []string{"memory"}, uintptr(ptr)+uintptr(len(data)), uintptr(m.mem.Size()))
	}
	return nil
}

// Size returns the memory size in bytes.
func (m *Memory) Size() uint32 {
	return m.mem.Size()
}
