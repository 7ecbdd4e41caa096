package process

import (
	"fmt"
)

// ProcessMemoryAddress represents a memory address within a process
type ProcessMemoryAddress uint64

func (pma ProcessMemoryAddress) ToString() string {
	return fmt.Sprintf("0x%X", uint64(pma))
}

// Offset returns pma moved by a signed byte delta
func (pma ProcessMemoryAddress) Offset(delta int64) ProcessMemoryAddress {
	return ProcessMemoryAddress(int64(pma) + delta)
}

// ProcessMemorySize represents a size of memory region
type ProcessMemorySize uint

func (pms ProcessMemorySize) ToString() string {
	return fmt.Sprintf("%d bytes", uint(pms))
}

// AOB (Array of Bytes) represents a pattern to search for in memory
type AOB struct {
	Pattern []byte // The byte pattern to search for
	Mask    []byte // Optional mask where 0xFF means exact match and 0x00 means wildcard
}

// IsValid checks if the AOB pattern is valid
func (aob AOB) IsValid() bool {
	return len(aob.Pattern) > 0 && len(aob.Pattern) == len(aob.Mask)
}

// Match reports whether the pattern matches data starting at index 0
func (aob AOB) Match(data []byte) bool {
	if len(data) < len(aob.Pattern) {
		return false
	}
	for i, b := range aob.Pattern {
		if data[i]&aob.Mask[i] != b&aob.Mask[i] {
			return false
		}
	}
	return true
}

func NewAOB(pattern, mask []byte) (AOB, error) {
	if len(pattern) != len(mask) {
		return AOB{}, fmt.Errorf("pattern and mask must be of the same length")
	}
	return AOB{Pattern: pattern, Mask: mask}, nil
}

// ParseAOB parses an IDA style signature such as "48 8B ?? ?? 05".
func ParseAOB(signature string) (AOB, error) {
	var aob AOB
	var tok []byte
	flush := func() error {
		if len(tok) == 0 {
			return nil
		}
		defer func() { tok = tok[:0] }()
		s := string(tok)
		if s == "?" || s == "??" {
			aob.Pattern = append(aob.Pattern, 0)
			aob.Mask = append(aob.Mask, 0)
			return nil
		}
		var b byte
		if _, err := fmt.Sscanf(s, "%02x", &b); err != nil || len(s) != 2 {
			return fmt.Errorf("invalid byte %q in signature", s)
		}
		aob.Pattern = append(aob.Pattern, b)
		aob.Mask = append(aob.Mask, 0xFF)
		return nil
	}
	for i := 0; i < len(signature); i++ {
		c := signature[i]
		if c == ' ' || c == '\t' {
			if err := flush(); err != nil {
				return AOB{}, err
			}
			continue
		}
		tok = append(tok, c)
	}
	if err := flush(); err != nil {
		return AOB{}, err
	}
	if len(aob.Pattern) == 0 {
		return AOB{}, fmt.Errorf("empty signature")
	}
	return aob, nil
}
