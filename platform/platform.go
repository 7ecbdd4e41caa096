// Package platform describes the (platform, pointer width) pair a remote
// process is laid out for, and the primitive scalar codecs of that pair.
package platform

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Platform identifies the operating system ABI family of a target process
type Platform uint8

const (
	Unknown Platform = iota
	Windows
	Darwin
	Linux
	Android
	IOS
)

var platformNames = map[Platform]string{
	Unknown: "unknown",
	Windows: "windows",
	Darwin:  "darwin",
	Linux:   "linux",
	Android: "android",
	IOS:     "ios",
}

func (p Platform) String() string {
	if name, ok := platformNames[p]; ok {
		return name
	}
	return fmt.Sprintf("platform(%d)", uint8(p))
}

// ParsePlatform parses a platform name. "macos" and "osx" are accepted as darwin.
func ParsePlatform(name string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "windows", "win":
		return Windows, nil
	case "darwin", "macos", "osx", "mac":
		return Darwin, nil
	case "linux":
		return Linux, nil
	case "android":
		return Android, nil
	case "ios":
		return IOS, nil
	case "", "unknown":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("unknown platform %q", name)
}

// Config is the immutable layout key: a platform plus a pointer width in bits.
// Bits == 0 means the width is resolved from the live target at load time.
type Config struct {
	Platform Platform
	Bits     int
}

var (
	WindowsX32 = Config{Platform: Windows, Bits: 32}
	WindowsX64 = Config{Platform: Windows, Bits: 64}
	DarwinX64  = Config{Platform: Darwin, Bits: 64}
	LinuxX32   = Config{Platform: Linux, Bits: 32}
	LinuxX64   = Config{Platform: Linux, Bits: 64}
	AndroidX32 = Config{Platform: Android, Bits: 32}
	AndroidX64 = Config{Platform: Android, Bits: 64}
	IOSX64     = Config{Platform: IOS, Bits: 64}
)

// ValidBits reports whether bits is one of the supported pointer widths (0 included).
func ValidBits(bits int) bool {
	switch bits {
	case 0, 8, 16, 32, 64:
		return true
	}
	return false
}

// Resolved reports whether the pointer width is known.
func (c Config) Resolved() bool {
	return c.Bits != 0
}

// WithBits returns a copy of c bound to the given pointer width.
func (c Config) WithBits(bits int) Config {
	c.Bits = bits
	return c
}

// PointerSize returns the pointer width in bytes.
func (c Config) PointerSize() int {
	return c.Bits / 8
}

// String renders the config as "<platform>_x<bits>", or just the platform when unresolved.
func (c Config) String() string {
	if c.Bits == 0 {
		return c.Platform.String()
	}
	return fmt.Sprintf("%s_x%d", c.Platform, c.Bits)
}

// ParseConfig is the inverse of Config.String.
func ParseConfig(s string) (Config, error) {
	name, bitsPart, found := strings.Cut(strings.TrimSpace(s), "_")
	p, err := ParsePlatform(name)
	if err != nil {
		return Config{}, err
	}
	if !found {
		return Config{Platform: p}, nil
	}
	bits, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(bitsPart), "x"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid bits in %q: %w", s, err)
	}
	if !ValidBits(bits) {
		return Config{}, fmt.Errorf("unsupported bits %d in %q", bits, s)
	}
	return Config{Platform: p, Bits: bits}, nil
}

// Current returns the platform of the host this binary was built for, with the
// pointer width left unresolved. This is the one place the host OS is detected.
func Current() Config {
	switch runtime.GOOS {
	case "windows":
		return Config{Platform: Windows}
	case "darwin":
		return Config{Platform: Darwin}
	case "ios":
		return Config{Platform: IOS}
	case "android":
		return Config{Platform: Android}
	case "linux":
		return Config{Platform: Linux}
	}
	return Config{Platform: Unknown}
}

// HostBits returns the pointer width of the running binary.
func HostBits() int {
	return strconv.IntSize
}
