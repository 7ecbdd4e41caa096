package platform

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Kind is the value class a scalar codec decodes to
type Kind uint8

const (
	KindInt Kind = iota
	KindUint
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Codec is a fixed-width primitive: its size, alignment and how to move it in and out of bytes.
type Codec struct {
	Name      string
	Size      int
	Alignment int
	Kind      Kind
	Order     binary.ByteOrder
}

// Decode reads the codec's value from the first Size bytes of data.
// Signed integers decode to int64, unsigned to uint64, floats to float64, bools to bool.
func (c Codec) Decode(data []byte) (any, error) {
	if len(data) < c.Size {
		return nil, fmt.Errorf("decode %s: need %d bytes, have %d", c.Name, c.Size, len(data))
	}
	raw := c.readUint(data[:c.Size])

	switch c.Kind {
	case KindBool:
		return raw != 0, nil
	case KindUint:
		return raw, nil
	case KindInt:
		shift := uint(64 - 8*c.Size)
		return int64(raw<<shift) >> shift, nil
	case KindFloat:
		switch c.Size {
		case 4:
			return float64(math.Float32frombits(uint32(raw))), nil
		case 8:
			return math.Float64frombits(raw), nil
		}
	}
	return nil, fmt.Errorf("decode %s: unsupported %s of size %d", c.Name, c.Kind, c.Size)
}

// Encode converts v into the codec's byte representation. Integers are truncated to the
// codec width the same way a C assignment would.
func (c Codec) Encode(v any) ([]byte, error) {
	var raw uint64

	switch c.Kind {
	case KindFloat:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("encode %s: cannot use %T as float", c.Name, v)
		}
		switch c.Size {
		case 4:
			raw = uint64(math.Float32bits(float32(f)))
		case 8:
			raw = math.Float64bits(f)
		default:
			return nil, fmt.Errorf("encode %s: unsupported float size %d", c.Name, c.Size)
		}
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			n, isInt := toUint(v)
			if !isInt {
				return nil, fmt.Errorf("encode %s: cannot use %T as bool", c.Name, v)
			}
			b = n != 0
		}
		if b {
			raw = 1
		}
	default:
		n, ok := toUint(v)
		if !ok {
			return nil, fmt.Errorf("encode %s: cannot use %T as integer", c.Name, v)
		}
		raw = n
	}

	out := make([]byte, c.Size)
	c.writeUint(out, raw)
	return out, nil
}

func (c Codec) readUint(data []byte) uint64 {
	switch c.Size {
	case 1:
		return uint64(data[0])
	case 2:
		return uint64(c.Order.Uint16(data))
	case 4:
		return uint64(c.Order.Uint32(data))
	case 8:
		return c.Order.Uint64(data)
	}
	return 0
}

func (c Codec) writeUint(out []byte, v uint64) {
	switch c.Size {
	case 1:
		out[0] = byte(v)
	case 2:
		c.Order.PutUint16(out, uint16(v))
	case 4:
		c.Order.PutUint32(out, uint32(v))
	case 8:
		c.Order.PutUint64(out, v)
	}
}

func toUint(v any) (uint64, bool) {
	switch n := v.(type) {
	case int:
		return uint64(n), true
	case int8:
		return uint64(n), true
	case int16:
		return uint64(n), true
	case int32:
		return uint64(n), true
	case int64:
		return uint64(n), true
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case uintptr:
		return uint64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Scalar names understood by every registry.
const (
	NameI8        = "i8"
	NameU8        = "u8"
	NameI16       = "i16"
	NameU16       = "u16"
	NameI32       = "i32"
	NameU32       = "u32"
	NameI64       = "i64"
	NameU64       = "u64"
	NameF32       = "f32"
	NameF64       = "f64"
	NameBool      = "bool"
	NameByte      = "byte"
	NameChar      = "char"
	NameUChar     = "uchar"
	NameShort     = "short"
	NameUShort    = "ushort"
	NameInt       = "int"
	NameUInt      = "uint"
	NameLong      = "long"
	NameULong     = "ulong"
	NameLongLong  = "longlong"
	NameULongLong = "ulonglong"
	NameFloat     = "float"
	NameDouble    = "double"
	NameSize      = "size"
	NameSSize     = "ssize"
	NameIntPtr    = "intptr"
	NameUIntPtr   = "uintptr"
)

// Registry is the table of primitive codecs for one resolved Config
type Registry struct {
	config Config
	codecs map[string]Codec
}

var (
	registryMu    sync.Mutex
	registryCache = map[Config]*Registry{}
)

// RegistryFor returns the codec table for cfg. The config must be resolved.
func RegistryFor(cfg Config) (*Registry, error) {
	if !cfg.Resolved() {
		return nil, fmt.Errorf("registry for %s: pointer width is not resolved", cfg)
	}
	if !ValidBits(cfg.Bits) {
		return nil, fmt.Errorf("registry for %s: unsupported bits %d", cfg, cfg.Bits)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if r, ok := registryCache[cfg]; ok {
		return r, nil
	}
	r := buildRegistry(cfg)
	registryCache[cfg] = r
	return r, nil
}

func buildRegistry(cfg Config) *Registry {
	order := binary.ByteOrder(binary.LittleEndian)
	ptr := cfg.PointerSize()

	// i386 System V aligns 8-byte scalars to 4. MSVC and the ARM EABI used
	// by 32-bit Android keep natural alignment.
	wide := 8
	if cfg.Bits == 32 && cfg.Platform != Windows && cfg.Platform != Android {
		wide = 4
	}
	if ptr < wide && cfg.Bits < 32 {
		wide = ptr
	}

	intSize := 4
	if cfg.Bits < 32 {
		intSize = 2
	}
	longSize := intSize
	if cfg.Bits >= 32 {
		longSize = 4
	}
	if cfg.Bits == 64 && cfg.Platform != Windows {
		longSize = 8
	}

	align := func(size int) int {
		if size == 8 {
			return wide
		}
		if size > ptr && ptr > 0 && cfg.Bits < 32 {
			return ptr
		}
		return size
	}

	r := &Registry{config: cfg, codecs: map[string]Codec{}}
	add := func(name string, size int, kind Kind) {
		r.codecs[name] = Codec{Name: name, Size: size, Alignment: align(size), Kind: kind, Order: order}
	}

	add(NameI8, 1, KindInt)
	add(NameU8, 1, KindUint)
	add(NameI16, 2, KindInt)
	add(NameU16, 2, KindUint)
	add(NameI32, 4, KindInt)
	add(NameU32, 4, KindUint)
	add(NameI64, 8, KindInt)
	add(NameU64, 8, KindUint)
	add(NameF32, 4, KindFloat)
	add(NameF64, 8, KindFloat)
	add(NameBool, 1, KindBool)
	add(NameByte, 1, KindUint)
	add(NameChar, 1, KindInt)
	add(NameUChar, 1, KindUint)
	add(NameShort, 2, KindInt)
	add(NameUShort, 2, KindUint)
	add(NameInt, intSize, KindInt)
	add(NameUInt, intSize, KindUint)
	add(NameLong, longSize, KindInt)
	add(NameULong, longSize, KindUint)
	add(NameLongLong, 8, KindInt)
	add(NameULongLong, 8, KindUint)
	add(NameFloat, 4, KindFloat)
	add(NameDouble, 8, KindFloat)
	add(NameSize, ptr, KindUint)
	add(NameSSize, ptr, KindInt)
	add(NameIntPtr, ptr, KindInt)
	add(NameUIntPtr, ptr, KindUint)

	return r
}

// Config returns the key this registry was built for.
func (r *Registry) Config() Config {
	return r.config
}

// Lookup returns the codec registered under name.
func (r *Registry) Lookup(name string) (Codec, bool) {
	c, ok := r.codecs[name]
	return c, ok
}

// Pointer returns the pointer-width codec, signed or unsigned.
func (r *Registry) Pointer(signed bool) Codec {
	name := NameUIntPtr
	if signed {
		name = NameIntPtr
	}
	c := r.codecs[name]
	c.Name = "pointer"
	return c
}

// Names returns every registered scalar name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.codecs))
	for name := range r.codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PointerCodec is shorthand for RegistryFor(cfg) followed by Pointer(signed).
func PointerCodec(cfg Config, signed bool) (Codec, error) {
	r, err := RegistryFor(cfg)
	if err != nil {
		return Codec{}, err
	}
	return r.Pointer(signed), nil
}
