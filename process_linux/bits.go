//go:build linux

package process_linux

import (
	"debug/elf"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"memlayout/process"
)

// Bits reads the ELF class of /proc/<pid>/exe.
func (b *Backend) Bits(_ process.Handle, pid process.ProcessID) (int, error) {
	f, err := os.Open(filepath.Join("/proc", strconv.Itoa(int(pid)), "exe"))
	if err != nil {
		return 0, process.NewForeignCallError("open exe", 0, 0, err)
	}
	defer f.Close()

	return elfBits(f)
}

func elfBits(f *os.File) (int, error) {
	ef, err := elf.NewFile(f)
	if err != nil {
		return 0, process.NewForeignCallError("parse elf", 0, 0, err)
	}
	defer ef.Close()

	switch ef.Class {
	case elf.ELFCLASS32:
		return 32, nil
	case elf.ELFCLASS64:
		return 64, nil
	}
	return 0, fmt.Errorf("unknown elf class %v", ef.Class)
}
