package marker

import "memlayout/platform"

// InlineBufferSize is the capacity of the small-string buffer in InlineString.
const InlineBufferSize = 16

// StringBuffer overlays the small-string bytes with the heap pointer.
var StringBuffer = NewUnion("string_buffer").
	MutField("buf", MutArray(Char, InlineBufferSize)).
	MutField("ptr", MutPointer(MutUnsizedArray(Char))).
	Build()

// InlineString is the MSVC std::string shape: characters live in the buffer
// while capacity is below InlineBufferSize and on the heap otherwise.
var InlineString = NewStruct("inline_string").
	MutField("data", StringBuffer).
	MutField("length", Size).
	MutField("capacity", Size).
	Build()

// StringHeader sits immediately before the characters of a HeaderString.
var StringHeader = NewStruct("string_header").
	MutField("capacity", Size).
	MutField("length", Size).
	MutField("ref_count", Int).
	Build()

// HeaderString is a bare pointer to characters preceded by a StringHeader.
var HeaderString = NewStruct("header_string").
	MutField("chars", MutPointer(MutUnsizedArray(Char))).
	Build()

// StringLayoutFor picks the string shape a target built for cfg uses. The rule
// is observed from real builds: Windows targets use the inline buffer.
func StringLayoutFor(cfg platform.Config) *StructType {
	if cfg.Platform == platform.Windows {
		return InlineString
	}
	return HeaderString
}
