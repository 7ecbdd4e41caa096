package state

import (
	"fmt"

	"memlayout/platform"
	"memlayout/process"
)

// ReadScalar decodes the registry scalar called name at addr. The result is
// int64, uint64, float64 or bool depending on the codec kind.
func (s *State) ReadScalar(name string, addr process.ProcessMemoryAddress) (any, error) {
	codec, err := s.codec(name)
	if err != nil {
		return nil, err
	}
	data, err := s.ReadAt(addr, process.ProcessMemorySize(codec.Size))
	if err != nil {
		return nil, err
	}
	return codec.Decode(data)
}

// WriteScalar encodes v with the registry scalar called name and stores it at addr.
func (s *State) WriteScalar(name string, addr process.ProcessMemoryAddress, v any) error {
	codec, err := s.codec(name)
	if err != nil {
		return err
	}
	data, err := codec.Encode(v)
	if err != nil {
		return err
	}
	return s.WriteAt(addr, data)
}

func (s *State) codec(name string) (platform.Codec, error) {
	if err := s.ready(); err != nil {
		return platform.Codec{}, err
	}
	codec, ok := s.registry.Lookup(name)
	if !ok {
		return platform.Codec{}, fmt.Errorf("unknown scalar %q for %s", name, s.config)
	}
	return codec, nil
}

func (s *State) readSigned(name string, addr process.ProcessMemoryAddress) (int64, error) {
	v, err := s.ReadScalar(name, addr)
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (s *State) readUnsigned(name string, addr process.ProcessMemoryAddress) (uint64, error) {
	v, err := s.ReadScalar(name, addr)
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

func (s *State) readFloat(name string, addr process.ProcessMemoryAddress) (float64, error) {
	v, err := s.ReadScalar(name, addr)
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// ReadI8 reads a signed 8-bit integer from the specified address
func (s *State) ReadI8(addr process.ProcessMemoryAddress) (int8, error) {
	v, err := s.readSigned(platform.NameI8, addr)
	return int8(v), err
}

// ReadU8 reads an unsigned 8-bit integer from the specified address
func (s *State) ReadU8(addr process.ProcessMemoryAddress) (uint8, error) {
	v, err := s.readUnsigned(platform.NameU8, addr)
	return uint8(v), err
}

// ReadI16 reads a signed 16-bit integer from the specified address
func (s *State) ReadI16(addr process.ProcessMemoryAddress) (int16, error) {
	v, err := s.readSigned(platform.NameI16, addr)
	return int16(v), err
}

// ReadU16 reads an unsigned 16-bit integer from the specified address
func (s *State) ReadU16(addr process.ProcessMemoryAddress) (uint16, error) {
	v, err := s.readUnsigned(platform.NameU16, addr)
	return uint16(v), err
}

// ReadI32 reads a signed 32-bit integer from the specified address
func (s *State) ReadI32(addr process.ProcessMemoryAddress) (int32, error) {
	v, err := s.readSigned(platform.NameI32, addr)
	return int32(v), err
}

// ReadU32 reads an unsigned 32-bit integer from the specified address
func (s *State) ReadU32(addr process.ProcessMemoryAddress) (uint32, error) {
	v, err := s.readUnsigned(platform.NameU32, addr)
	return uint32(v), err
}

// ReadI64 reads a signed 64-bit integer from the specified address
func (s *State) ReadI64(addr process.ProcessMemoryAddress) (int64, error) {
	return s.readSigned(platform.NameI64, addr)
}

// ReadU64 reads an unsigned 64-bit integer from the specified address
func (s *State) ReadU64(addr process.ProcessMemoryAddress) (uint64, error) {
	return s.readUnsigned(platform.NameU64, addr)
}

// ReadF32 reads a 32-bit floating point number from the specified address
func (s *State) ReadF32(addr process.ProcessMemoryAddress) (float32, error) {
	v, err := s.readFloat(platform.NameF32, addr)
	return float32(v), err
}

// ReadF64 reads a 64-bit floating point number from the specified address
func (s *State) ReadF64(addr process.ProcessMemoryAddress) (float64, error) {
	return s.readFloat(platform.NameF64, addr)
}

func (s *State) ReadBool(addr process.ProcessMemoryAddress) (bool, error) {
	v, err := s.ReadScalar(platform.NameBool, addr)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// ReadInt reads a C int, whose width follows the target ABI.
func (s *State) ReadInt(addr process.ProcessMemoryAddress) (int64, error) {
	return s.readSigned(platform.NameInt, addr)
}

func (s *State) ReadUInt(addr process.ProcessMemoryAddress) (uint64, error) {
	return s.readUnsigned(platform.NameUInt, addr)
}

// ReadLong reads a C long: 4 bytes on Windows at any width, pointer sized elsewhere on 64-bit.
func (s *State) ReadLong(addr process.ProcessMemoryAddress) (int64, error) {
	return s.readSigned(platform.NameLong, addr)
}

func (s *State) ReadULong(addr process.ProcessMemoryAddress) (uint64, error) {
	return s.readUnsigned(platform.NameULong, addr)
}

// ReadSize reads a size_t.
func (s *State) ReadSize(addr process.ProcessMemoryAddress) (uint64, error) {
	return s.readUnsigned(platform.NameSize, addr)
}

func (s *State) ReadSSize(addr process.ProcessMemoryAddress) (int64, error) {
	return s.readSigned(platform.NameSSize, addr)
}

// ReadPointer reads a pointer-width address.
func (s *State) ReadPointer(addr process.ProcessMemoryAddress) (process.ProcessMemoryAddress, error) {
	v, err := s.readUnsigned(platform.NameUIntPtr, addr)
	return process.ProcessMemoryAddress(v), err
}

func (s *State) WriteI8(addr process.ProcessMemoryAddress, v int8) error {
	return s.WriteScalar(platform.NameI8, addr, v)
}

func (s *State) WriteU8(addr process.ProcessMemoryAddress, v uint8) error {
	return s.WriteScalar(platform.NameU8, addr, v)
}

func (s *State) WriteI16(addr process.ProcessMemoryAddress, v int16) error {
	return s.WriteScalar(platform.NameI16, addr, v)
}

func (s *State) WriteU16(addr process.ProcessMemoryAddress, v uint16) error {
	return s.WriteScalar(platform.NameU16, addr, v)
}

func (s *State) WriteI32(addr process.ProcessMemoryAddress, v int32) error {
	return s.WriteScalar(platform.NameI32, addr, v)
}

func (s *State) WriteU32(addr process.ProcessMemoryAddress, v uint32) error {
	return s.WriteScalar(platform.NameU32, addr, v)
}

func (s *State) WriteI64(addr process.ProcessMemoryAddress, v int64) error {
	return s.WriteScalar(platform.NameI64, addr, v)
}

func (s *State) WriteU64(addr process.ProcessMemoryAddress, v uint64) error {
	return s.WriteScalar(platform.NameU64, addr, v)
}

func (s *State) WriteF32(addr process.ProcessMemoryAddress, v float32) error {
	return s.WriteScalar(platform.NameF32, addr, v)
}

func (s *State) WriteF64(addr process.ProcessMemoryAddress, v float64) error {
	return s.WriteScalar(platform.NameF64, addr, v)
}

func (s *State) WriteBool(addr process.ProcessMemoryAddress, v bool) error {
	return s.WriteScalar(platform.NameBool, addr, v)
}

func (s *State) WriteInt(addr process.ProcessMemoryAddress, v int64) error {
	return s.WriteScalar(platform.NameInt, addr, v)
}

func (s *State) WriteUInt(addr process.ProcessMemoryAddress, v uint64) error {
	return s.WriteScalar(platform.NameUInt, addr, v)
}

func (s *State) WriteLong(addr process.ProcessMemoryAddress, v int64) error {
	return s.WriteScalar(platform.NameLong, addr, v)
}

func (s *State) WriteULong(addr process.ProcessMemoryAddress, v uint64) error {
	return s.WriteScalar(platform.NameULong, addr, v)
}

func (s *State) WriteSize(addr process.ProcessMemoryAddress, v uint64) error {
	return s.WriteScalar(platform.NameSize, addr, v)
}

func (s *State) WriteSSize(addr process.ProcessMemoryAddress, v int64) error {
	return s.WriteScalar(platform.NameSSize, addr, v)
}

func (s *State) WritePointer(addr process.ProcessMemoryAddress, v process.ProcessMemoryAddress) error {
	return s.WriteScalar(platform.NameUIntPtr, addr, uint64(v))
}

// ResolvePath follows a pointer path from base; see process.ResolvePath.
func (s *State) ResolvePath(base process.ProcessMemoryAddress, offsets ...int64) (process.ProcessMemoryAddress, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return process.ResolvePath(s.ReadAt, s.config.PointerSize(), base, offsets...)
}
