// Package coloransi renders ANSI colour for the table and hexdump output.
// Colour is dropped entirely when disabled, so the same renderers serve
// terminals and pipes.
package coloransi

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// ColorCode represents ANSI color codes and RGB colors as a 32-bit integer.
// The lower 8 bits represent ANSI color codes, and the upper 24 bits represent RGB values.
type ColorCode uint32

// ANSI color codes
const (
	Black   ColorCode = 30
	Red     ColorCode = 31
	Green   ColorCode = 32
	Yellow  ColorCode = 33
	Blue    ColorCode = 34
	Magenta ColorCode = 35
	Cyan    ColorCode = 36
	White   ColorCode = 37

	// For bright colors, add 60
	BrightBlack   ColorCode = Black + 60
	BrightRed     ColorCode = Red + 60
	BrightGreen   ColorCode = Green + 60
	BrightYellow  ColorCode = Yellow + 60
	BrightBlue    ColorCode = Blue + 60
	BrightMagenta ColorCode = Magenta + 60
	BrightCyan    ColorCode = Cyan + 60
	BrightWhite   ColorCode = White + 60

	BackgroundOffset ColorCode = 10

	RGBMask ColorCode = 0xFFFFFF00
)

// RGB creates a ColorCode from RGB values
func RGB(r, g, b uint8) ColorCode {
	return ColorCode(uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8)
}

var (
	ColorOrange    = RGB(255, 140, 0)
	ColorPurple    = RGB(128, 0, 128)
	ColorTeal      = RGB(0, 128, 128)
	ColorLimeGreen = RGB(50, 205, 50)
	ColorDimGray   = RGB(64, 64, 64)
)

// IsRGB checks if the ColorCode represents an RGB color
func (c ColorCode) IsRGB() bool {
	return c&RGBMask != 0
}

// Enabled switches escape sequences on or off for every renderer.
var Enabled = true

// Detect enables colour when w is a terminal and NO_COLOR is unset.
func Detect(w io.Writer) bool {
	f, ok := w.(*os.File)
	Enabled = ok && os.Getenv("NO_COLOR") == "" &&
		(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
	return Enabled
}

// Stdout returns a writer that understands ANSI escapes on every platform.
func Stdout() io.Writer {
	return colorable.NewColorableStdout()
}

// ColorFrom picks a stable colour for item, so related rows share a colour.
func ColorFrom(item uint64) ColorCode {
	colors := []ColorCode{Red, Green, Yellow, Blue, Magenta, Cyan, BrightRed, BrightGreen, BrightYellow, BrightBlue, BrightMagenta, BrightCyan}
	return colors[item%uint64(len(colors))]
}

func join(v []any) string {
	args := make([]string, len(v))
	for i, arg := range v {
		args[i] = fmt.Sprint(arg)
	}
	return strings.Join(args, " ")
}

// Color formats the given text with the specified foreground and background colors.
func Color(fg, bg ColorCode, v ...any) string {
	if !Enabled {
		return join(v)
	}
	return OneForeground(fg) + OneBackground(bg) + join(v) + Reset()
}

// Foreground formats the given text with the specified foreground color.
func Foreground(fg ColorCode, v ...any) string {
	if !Enabled {
		return join(v)
	}
	return OneForeground(fg) + join(v) + Reset()
}

// OneForeground returns the ANSI escape sequence for the given color code.
func OneForeground(code ColorCode) string {
	if code.IsRGB() {
		return fmt.Sprintf("\033[38;2;%d;%d;%dm", (code>>24)&0xFF, (code>>16)&0xFF, (code>>8)&0xFF)
	}
	return fmt.Sprintf("\033[%dm", code)
}

// OneBackground returns the ANSI escape sequence for the given background color code.
func OneBackground(code ColorCode) string {
	if code.IsRGB() {
		return fmt.Sprintf("\033[48;2;%d;%d;%dm", (code>>24)&0xFF, (code>>16)&0xFF, (code>>8)&0xFF)
	}
	return fmt.Sprintf("\033[%dm", code+BackgroundOffset)
}

// Reset returns the ANSI escape sequence to reset the text color.
func Reset() string {
	return "\033[0m"
}

// Strip removes SGR escape sequences.
func Strip(s string) string {
	if !strings.Contains(s, "\033") {
		return s
	}
	var sb strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\033':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// VisibleLen is the number of runes a terminal draws for s.
func VisibleLen(s string) int {
	return len([]rune(Strip(s)))
}
