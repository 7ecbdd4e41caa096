// Package search discovers pointer paths to a value and scans memory for byte patterns.
package search

import (
	"bytes"
	"errors"
	"fmt"

	"memlayout/platform"
	"memlayout/process"
	"memlayout/process/memory_map"
)

var ErrNoTarget = errors.New("no search target specified")

// Memory is the part of a loaded State the searches read through
type Memory interface {
	ReadAt(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error)
	Config() platform.Config
}

// Searcher holds configuration for the search
type Searcher struct {
	MaxStructSize uint
	MaxDepth      int
	MinAlignment  uint
	MaxResults    int
	SearchFor     func([]byte) bool
	// Regions bounds which values count as pointers. Without it any value
	// whose first byte can be read is followed.
	Regions []memory_map.MemoryMapItem
}

// Option is a function that configures a Searcher
type Option func(*Searcher)

func WithMaxStructSize(size uint) Option {
	return func(s *Searcher) {
		s.MaxStructSize = size
	}
}

func WithMaxDepth(depth int) Option {
	return func(s *Searcher) {
		s.MaxDepth = depth
	}
}

func WithMinAlignment(align uint) Option {
	return func(s *Searcher) {
		s.MinAlignment = align
	}
}

func WithMaxResults(n int) Option {
	return func(s *Searcher) {
		s.MaxResults = n
	}
}

func WithRegions(regions []memory_map.MemoryMapItem) Option {
	return func(s *Searcher) {
		s.Regions = regions
	}
}

// WithBytes matches an exact byte sequence.
func WithBytes(want []byte) Option {
	want = bytes.Clone(want)
	return func(s *Searcher) {
		s.SearchFor = func(data []byte) bool {
			return bytes.HasPrefix(data, want)
		}
	}
}

// WithAOB matches a masked pattern.
func WithAOB(aob process.AOB) Option {
	return func(s *Searcher) {
		s.SearchFor = aob.Match
	}
}

// WithValue matches v encoded with the codec, e.g. the target's "int" or "f32".
func WithValue(codec platform.Codec, v any) (Option, error) {
	data, err := codec.Encode(v)
	if err != nil {
		return nil, err
	}
	return WithBytes(data), nil
}

// Result is one path from the base to a match. Path is in the form
// memory.Pointer.Offset and process.ResolvePath take: the first offset is added
// to the base, every following one to the pointer loaded from the previous slot.
type Result struct {
	Path    []int64
	Address process.ProcessMemoryAddress
}

func (r Result) String() string {
	s := "base"
	for i, off := range r.Path {
		if i > 0 {
			s = "[" + s + "]"
		}
		s += fmt.Sprintf("%+#x", off)
	}
	return s + " -> " + r.Address.ToString()
}

// Search performs a recursive search for the target value starting at base.
// Every pointer-aligned slot holding a valid pointer is followed until MaxDepth.
func Search(mem Memory, base process.ProcessMemoryAddress, options ...Option) ([]Result, error) {
	s := &Searcher{
		MaxStructSize: 256,
		MaxDepth:      3,
		MinAlignment:  4,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.SearchFor == nil {
		return nil, ErrNoTarget
	}
	if s.MinAlignment == 0 {
		s.MinAlignment = 1
	}

	ptrSize := mem.Config().PointerSize()
	if ptrSize == 0 {
		return nil, fmt.Errorf("search: pointer width of %s is not resolved", mem.Config())
	}
	memory_map.Sort(s.Regions)

	var results []Result
	visited := make(map[process.ProcessMemoryAddress]bool)

	var searchRecursive func(addr process.ProcessMemoryAddress, depth int, path []int64) bool
	searchRecursive = func(addr process.ProcessMemoryAddress, depth int, path []int64) bool {
		if depth > s.MaxDepth || visited[addr] {
			return true
		}
		visited[addr] = true

		data, err := mem.ReadAt(addr, process.ProcessMemorySize(s.MaxStructSize))
		if err != nil {
			return true
		}

		for offset := uint(0); offset < uint(len(data)); offset += s.MinAlignment {
			if s.SearchFor(data[offset:]) {
				results = append(results, Result{
					Path:    append(clonePath(path), int64(offset)),
					Address: addr.Offset(int64(offset)),
				})
				if s.MaxResults > 0 && len(results) >= s.MaxResults {
					return false
				}
			}

			if depth >= s.MaxDepth || offset%uint(ptrSize) != 0 || offset+uint(ptrSize) > uint(len(data)) {
				continue
			}
			read := func(process.ProcessMemoryAddress, process.ProcessMemorySize) ([]byte, error) {
				return data[offset : offset+uint(ptrSize)], nil
			}
			ptr, _ := process.ReadPointer(read, ptrSize, 0)
			if ptr != 0 && s.valid(mem, ptr) {
				if !searchRecursive(ptr, depth+1, append(clonePath(path), int64(offset))) {
					return false
				}
			}
		}
		return true
	}

	searchRecursive(base, 0, nil)
	return results, nil
}

func clonePath(path []int64) []int64 {
	out := make([]int64, len(path), len(path)+1)
	copy(out, path)
	return out
}

func (s *Searcher) valid(mem Memory, addr process.ProcessMemoryAddress) bool {
	if s.Regions != nil {
		region := memory_map.GetMemoryRegionForAddress(uint64(addr), s.Regions)
		return region != nil && region.IsReadable()
	}
	_, err := mem.ReadAt(addr, 1)
	return err == nil
}

// scanChunk bounds a single read while scanning a region.
const scanChunk = 1 << 20

// Scan finds every address in the readable regions where aob matches.
// limit <= 0 means no limit.
func Scan(mem Memory, regions []memory_map.MemoryMapItem, aob process.AOB, limit int) ([]process.ProcessMemoryAddress, error) {
	if !aob.IsValid() {
		return nil, fmt.Errorf("scan: %w: empty or malformed pattern", ErrNoTarget)
	}
	overlap := len(aob.Pattern) - 1

	var hits []process.ProcessMemoryAddress
	for _, region := range regions {
		if !region.IsReadable() {
			continue
		}
		for start := region.Address; start < region.End(); start += scanChunk {
			size := min(uint64(scanChunk+overlap), region.End()-start)
			data, err := mem.ReadAt(process.ProcessMemoryAddress(start), process.ProcessMemorySize(size))
			if err != nil {
				break
			}
			for i := 0; i+len(aob.Pattern) <= len(data) && i < scanChunk; i++ {
				if aob.Match(data[i:]) {
					hits = append(hits, process.ProcessMemoryAddress(start+uint64(i)))
					if limit > 0 && len(hits) >= limit {
						return hits, nil
					}
				}
			}
		}
	}
	return hits, nil
}
