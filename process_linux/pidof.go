//go:build linux

package process_linux

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
)

// Process is a pid found by name
type Process struct {
	PID  int
	Name string // best-effort: comm or exe basename
}

// ListByName returns all processes whose comm or exe basename equals name, like pidof.
// The match is case-sensitive and the calling process is never included.
func ListByName(name string) ([]*Process, error) {
	if name == "" {
		return nil, errors.New("empty name")
	}

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("read /proc: %w", err)
	}

	selfPID := os.Getpid()
	var out []*Process
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if !e.IsDir() || err != nil || pid <= 0 || pid == selfPID {
			continue
		}
		if match, ok := matchName(e.Name(), name); ok {
			out = append(out, &Process{PID: pid, Name: match})
		}
	}
	return out, nil
}

// matchName checks comm first, then the exe symlink, which may be unreadable for
// zombies or other users' processes.
func matchName(dir, name string) (string, bool) {
	comm, _ := os.ReadFile(filepath.Join("/proc", dir, "comm"))
	if c := string(bytesTrimNL(comm)); c == name {
		return c, true
	}
	exe, _ := os.Readlink(filepath.Join("/proc", dir, "exe"))
	if exe != "" && filepath.Base(exe) == name {
		return filepath.Base(exe), true
	}
	return "", false
}

// OneByName returns the lowest matching pid, or os.ErrNotExist if none.
func OneByName(name string) (*Process, error) {
	ps, err := ListByName(name)
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, os.ErrNotExist
	}
	best := ps[0]
	for _, p := range ps[1:] {
		if p.PID < best.PID {
			best = p
		}
	}
	return best, nil
}

// Kill sends SIGKILL with the raw syscall so it also works for non-children.
// A process that is already gone counts as killed.
func (p *Process) Kill() error {
	if p == nil {
		return errors.New("nil Process")
	}
	err := syscall.Kill(p.PID, syscall.SIGKILL)
	if err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

func procExists(pid int) bool {
	_, err := os.Stat(filepath.Join("/proc", strconv.Itoa(pid)))
	if err == nil {
		return true
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	// permission or EIO: ask the kernel directly
	return syscall.Kill(pid, 0) == nil
}

// bytesTrimNL trims trailing whitespace; comm ends with a newline.
func bytesTrimNL(b []byte) []byte {
	for len(b) > 0 {
		switch b[len(b)-1] {
		case '\n', '\r', ' ', '\t':
			b = b[:len(b)-1]
		default:
			return b
		}
	}
	return b
}
