//go:build linux

package process_linux

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"memlayout/process"
)

// FindProcessByName returns the lowest pid whose comm or exe basename equals name.
func (b *Backend) FindProcessByName(name string) (process.ProcessID, error) {
	p, err := OneByName(name)
	if err != nil {
		return 0, fmt.Errorf("no process found with name %q: %w", name, process.ErrProcessNotFound)
	}
	return process.ProcessID(p.PID), nil
}

// FindProcessByTitle stands in for a window lookup. Linux has no window system at
// this layer, so the title is matched against the command line: either the whole
// line joined by spaces, or the base name of argv[0].
func (b *Backend) FindProcessByTitle(title string) (process.ProcessID, error) {
	if title == "" {
		return 0, fmt.Errorf("empty title: %w", process.ErrWindowNotFound)
	}

	all, err := b.ListProcesses()
	if err != nil {
		return 0, err
	}
	for _, info := range all {
		if info.Title == title {
			return info.PID, nil
		}
		if len(info.Cmdline) > 0 && baseName(info.Cmdline[0]) == title {
			return info.PID, nil
		}
	}
	b.log.Debugln("No command line matched title", title)
	return 0, fmt.Errorf("no process titled %q: %w", title, process.ErrWindowNotFound)
}

// ListProcesses returns every readable /proc entry sorted by pid, skipping ourselves.
func (b *Backend) ListProcesses() ([]process.ProcessInfo, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("failed to read /proc: %w", err)
	}

	selfPID := os.Getpid()
	var results []process.ProcessInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 || pid == selfPID {
			continue
		}

		info, err := getProcessInfo(process.ProcessID(pid))
		if err != nil {
			// Process may have terminated while we were reading
			continue
		}
		results = append(results, *info)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].PID < results[j].PID })
	return results, nil
}

func getProcessInfo(pid process.ProcessID) (*process.ProcessInfo, error) {
	procPath := filepath.Join("/proc", strconv.Itoa(int(pid)))

	nameBytes, err := os.ReadFile(filepath.Join(procPath, "comm"))
	if err != nil {
		return nil, fmt.Errorf("failed to read process name: %w", err)
	}

	// Some processes don't have an exe (e.g., kernel threads)
	exe, _ := os.Readlink(filepath.Join(procPath, "exe"))

	cmdlineBytes, err := os.ReadFile(filepath.Join(procPath, "cmdline"))
	if err != nil {
		return nil, fmt.Errorf("failed to read process cmdline: %w", err)
	}
	cmdline := splitCmdline(cmdlineBytes)

	return &process.ProcessInfo{
		PID:     pid,
		PPID:    readPPID(procPath),
		Name:    string(bytesTrimNL(nameBytes)),
		Exe:     exe,
		Cmdline: cmdline,
		Title:   strings.Join(cmdline, " "),
	}, nil
}

func splitCmdline(raw []byte) []string {
	raw = bytes.TrimRight(raw, "\x00")
	if len(raw) == 0 {
		return nil
	}
	var out []string
	for _, arg := range bytes.Split(raw, []byte{0}) {
		out = append(out, string(arg))
	}
	return out
}

func readPPID(procPath string) process.ProcessID {
	status, err := os.ReadFile(filepath.Join(procPath, "status"))
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(status), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) != "PPid" {
			continue
		}
		ppid, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0
		}
		return process.ProcessID(ppid)
	}
	return 0
}

func readExe(pid process.ProcessID) (string, error) {
	return os.Readlink(filepath.Join("/proc", strconv.Itoa(int(pid)), "exe"))
}

func baseName(path string) string {
	return filepath.Base(path)
}
