package process_blob

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"memlayout/platform"
	"memlayout/process"
	"memlayout/process/memory_map"
)

const (
	metadataFile  = "metadata.json"
	memoryMapFile = "process_memory_map.json"

	// MaxBlobSize bounds a single saved region; larger regions are listed but not saved.
	MaxBlobSize = 256 << 20
)

type metadata struct {
	PID      process.ProcessID            `json:"pid"`
	Name     string                       `json:"name"`
	Title    string                       `json:"title,omitempty"`
	Platform string                       `json:"platform,omitempty"`
	Bits     int                          `json:"bits,omitempty"`
	Base     process.ProcessMemoryAddress `json:"base,omitempty"`
}

func blobName(addr uint64, size uint) string {
	return fmt.Sprintf("blob_0x%x_%d.bin", addr, size)
}

// LoadDump reads a dump directory into a new backend holding one process.
// Regions listed in the memory map without a blob file are left unmapped.
func LoadDump(dirname string) (*Backend, *Process, error) {
	metadataBytes, err := os.ReadFile(filepath.Join(dirname, metadataFile))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var meta metadata
	if err := json.Unmarshal(metadataBytes, &meta); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	mmBytes, err := os.ReadFile(filepath.Join(dirname, memoryMapFile))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read memory map: %w", err)
	}
	var mm []memory_map.MemoryMapItem
	if err := json.Unmarshal(mmBytes, &mm); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal memory map: %w", err)
	}
	memory_map.Sort(mm)

	plat := platform.Linux
	if meta.Platform != "" {
		if plat, err = platform.ParsePlatform(meta.Platform); err != nil {
			return nil, nil, fmt.Errorf("metadata: %w", err)
		}
	}

	b := New(plat)
	p := b.AddProcess(&Process{
		PID:   meta.PID,
		Name:  meta.Name,
		Title: meta.Title,
		Bits:  meta.Bits,
		Base:  meta.Base,
	})

	for _, region := range mm {
		filename := filepath.Join(dirname, blobName(region.Address, region.Size))
		data, err := os.ReadFile(filename)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read blob %s: %w", filename, err)
		}
		if _, err := p.Map(process.ProcessMemoryAddress(region.Address), data, process.ParsePermissions(region.Perms), region.Path); err != nil {
			return nil, nil, fmt.Errorf("blob %s: %w", filename, err)
		}
	}

	p.Modules = modulesFromMap(mm)
	return b, p, nil
}

// modulesFromMap groups file-backed regions by path, lowest mapping first.
func modulesFromMap(mm []memory_map.MemoryMapItem) []process.ModuleInfo {
	index := map[string]int{}
	var modules []process.ModuleInfo
	for _, item := range mm {
		if item.Path == "" || item.Path[0] == '[' {
			continue
		}
		if i, ok := index[item.Path]; ok {
			modules[i].Size = process.ProcessMemorySize(item.End() - uint64(modules[i].Base))
			continue
		}
		index[item.Path] = len(modules)
		modules = append(modules, process.ModuleInfo{
			Name: filepath.Base(item.Path),
			Path: item.Path,
			Base: process.ProcessMemoryAddress(item.Address),
			Size: process.ProcessMemorySize(item.Size),
		})
	}
	return modules
}

// DumpSource is the part of a backend SaveDump reads from
type DumpSource interface {
	Platform() platform.Platform
	Regions(pid process.ProcessID) ([]memory_map.MemoryMapItem, error)
	Read(h process.Handle, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error)
}

// DumpTarget names the process being saved
type DumpTarget struct {
	PID    process.ProcessID
	Handle process.Handle
	Name   string
	Title  string
	Bits   int
	Base   process.ProcessMemoryAddress
}

// SaveDump writes the memory map and every readable region of the target to
// dirname. Regions that fail to read or exceed MaxBlobSize are listed in the
// map without a blob; the number of saved blobs is returned.
func SaveDump(dirname string, src DumpSource, target DumpTarget) (int, error) {
	if err := os.MkdirAll(dirname, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create dump directory: %w", err)
	}

	mm, err := src.Regions(target.PID)
	if err != nil {
		return 0, fmt.Errorf("failed to read memory map: %w", err)
	}

	meta := metadata{
		PID:      target.PID,
		Name:     target.Name,
		Title:    target.Title,
		Platform: src.Platform().String(),
		Bits:     target.Bits,
		Base:     target.Base,
	}
	if err := writeJSON(filepath.Join(dirname, metadataFile), meta); err != nil {
		return 0, err
	}
	if err := writeJSON(filepath.Join(dirname, memoryMapFile), mm); err != nil {
		return 0, err
	}

	saved := 0
	for _, region := range mm {
		if !region.IsReadable() || region.Size == 0 || region.Size > MaxBlobSize {
			continue
		}
		data, err := src.Read(target.Handle, process.ProcessMemoryAddress(region.Address), process.ProcessMemorySize(region.Size))
		if err != nil {
			continue
		}
		if err := os.WriteFile(filepath.Join(dirname, blobName(region.Address, region.Size)), data, 0o644); err != nil {
			return saved, fmt.Errorf("failed to write blob: %w", err)
		}
		saved++
	}
	return saved, nil
}

func writeJSON(filename string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(filename), err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(filename), err)
	}
	return nil
}
