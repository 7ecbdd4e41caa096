// Package process_blob is a process.Backend over an in-memory address space.
// It stands in for a live target in tests and serves saved process dumps.
package process_blob

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"memlayout/platform"
	"memlayout/process"
	"memlayout/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

const (
	pageSize = 0x1000

	// DefaultAllocBase is where the bump allocator starts when a process sets none.
	DefaultAllocBase process.ProcessMemoryAddress = 0x10000000
)

var ErrAccessDenied = errors.New("access denied")

// Region is one mapped range of a blob process
type Region struct {
	Address process.ProcessMemoryAddress
	Data    []byte
	Perms   process.Permissions
	Path    string
}

func (r *Region) End() process.ProcessMemoryAddress {
	return r.Address + process.ProcessMemoryAddress(len(r.Data))
}

func (r *Region) contains(addr process.ProcessMemoryAddress) bool {
	return addr >= r.Address && addr < r.End()
}

// Process is a fake target. Fields are read by the backend on every call, so a
// test may adjust them between calls.
type Process struct {
	PID       process.ProcessID
	Name      string
	Title     string
	Exe       string
	Bits      int
	Base      process.ProcessMemoryAddress
	AllocBase process.ProcessMemoryAddress
	Modules   []process.ModuleInfo

	// Libraries records every path passed to InjectLibrary
	Libraries []string

	regions   []*Region
	next      process.ProcessMemoryAddress
	exited    bool
	openCount int
}

// Map adds a region of data at addr. Overlapping an existing region is an error.
func (p *Process) Map(addr process.ProcessMemoryAddress, data []byte, perms process.Permissions, path string) (*Region, error) {
	r := &Region{Address: addr, Data: data, Perms: perms, Path: path}
	for _, other := range p.regions {
		if r.Address < other.End() && other.Address < r.End() {
			return nil, fmt.Errorf("region %s overlaps %s", addr.ToString(), other.Address.ToString())
		}
	}
	p.regions = append(p.regions, r)
	sort.Slice(p.regions, func(i, j int) bool { return p.regions[i].Address < p.regions[j].Address })
	return r, nil
}

// MustMap is Map for test fixtures
func (p *Process) MustMap(addr process.ProcessMemoryAddress, data []byte, perms process.Permissions, path string) *Region {
	r, err := p.Map(addr, data, perms, path)
	if err != nil {
		panic(err)
	}
	return r
}

// Region returns the mapped region holding addr
func (p *Process) Region(addr process.ProcessMemoryAddress) (*Region, bool) {
	i := sort.Search(len(p.regions), func(i int) bool { return p.regions[i].End() > addr })
	if i < len(p.regions) && p.regions[i].contains(addr) {
		return p.regions[i], true
	}
	return nil, false
}

// Regions returns the mapped regions in address order
func (p *Process) Regions() []*Region {
	return slices.Clone(p.regions)
}

// Exited reports whether Terminate was called on the process
func (p *Process) Exited() bool {
	return p.exited
}

// span visits the regions covering [addr, addr+size) in order, failing on any gap.
func (p *Process) span(addr process.ProcessMemoryAddress, size process.ProcessMemorySize, need process.Permissions, fn func(r *Region, off, n int)) error {
	cur, end := addr, addr+process.ProcessMemoryAddress(size)
	if end < addr {
		return process.ErrAddressNotMapped
	}
	var chunks []func()
	for cur < end {
		r, ok := p.Region(cur)
		if !ok {
			return process.ErrAddressNotMapped
		}
		if !r.Perms.Contains(need) {
			return fmt.Errorf("%w: region %s is %s", ErrAccessDenied, r.Address.ToString(), r.Perms)
		}
		off := int(cur - r.Address)
		n := int(min(end, r.End()) - cur)
		chunks = append(chunks, func() { fn(r, off, n) })
		cur += process.ProcessMemoryAddress(n)
	}
	for _, c := range chunks {
		c()
	}
	return nil
}

// Backend implements process.Backend over blob processes
type Backend struct {
	log      *logger.Logger
	mu       sync.Mutex
	platform platform.Platform
	procs    map[process.ProcessID]*Process
	handles  map[process.Handle]*Process
	nextH    process.Handle
	disabled map[string]bool
}

var _ process.Backend = (*Backend)(nil)

// New creates an empty backend that reports itself as platform p
func New(p platform.Platform) *Backend {
	return &Backend{
		log:      logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "process-blob")),
		platform: p,
		procs:    map[process.ProcessID]*Process{},
		handles:  map[process.Handle]*Process{},
		nextH:    0x100,
		disabled: map[string]bool{},
	}
}

// AddProcess registers p and returns it
func (b *Backend) AddProcess(p *Process) *Process {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.AllocBase == 0 {
		p.AllocBase = DefaultAllocBase
	}
	b.procs[p.PID] = p
	return p
}

// Process returns the registered process with pid
func (b *Backend) Process(pid process.ProcessID) (*Process, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.procs[pid]
	return p, ok
}

// Disable makes the named Backend methods return ErrNotImplemented, to mimic
// an OS that lacks them.
func (b *Backend) Disable(ops ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, op := range ops {
		b.disabled[op] = true
	}
}

func (b *Backend) gap(op string) error {
	if b.disabled[op] {
		return process.NotImplemented(op, "blob")
	}
	return nil
}

func (b *Backend) Platform() platform.Platform {
	return b.platform
}

func (b *Backend) FindProcessByName(name string) (process.ProcessID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.gap("FindProcessByName"); err != nil {
		return 0, err
	}
	for _, p := range b.sorted() {
		if strings.EqualFold(p.Name, name) || (p.Exe != "" && filepath.Base(p.Exe) == name) {
			return p.PID, nil
		}
	}
	return 0, fmt.Errorf("process %q: %w", name, process.ErrProcessNotFound)
}

func (b *Backend) FindProcessByTitle(title string) (process.ProcessID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.gap("FindProcessByTitle"); err != nil {
		return 0, err
	}
	for _, p := range b.sorted() {
		if p.Title != "" && p.Title == title {
			return p.PID, nil
		}
	}
	return 0, fmt.Errorf("window %q: %w", title, process.ErrWindowNotFound)
}

func (b *Backend) sorted() []*Process {
	list := make([]*Process, 0, len(b.procs))
	for _, p := range b.procs {
		if !p.exited {
			list = append(list, p)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].PID < list[j].PID })
	return list
}

func (b *Backend) ListProcesses() ([]process.ProcessInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var infos []process.ProcessInfo
	for _, p := range b.sorted() {
		infos = append(infos, process.ProcessInfo{PID: p.PID, Name: p.Name, Exe: p.Exe, Title: p.Title})
	}
	return infos, nil
}

func (b *Backend) lookup(pid process.ProcessID) (*Process, error) {
	p, ok := b.procs[pid]
	if !ok || p.exited {
		return nil, fmt.Errorf("process with PID %d does not exist: %w", pid, process.ErrProcessNotFound)
	}
	return p, nil
}

func (b *Backend) Modules(pid process.ProcessID) ([]process.ModuleInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.lookup(pid)
	if err != nil {
		return nil, err
	}
	return slices.Clone(p.Modules), nil
}

func (b *Backend) Regions(pid process.ProcessID) ([]memory_map.MemoryMapItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.lookup(pid)
	if err != nil {
		return nil, err
	}
	items := make([]memory_map.MemoryMapItem, 0, len(p.regions))
	for _, r := range p.regions {
		items = append(items, memory_map.MemoryMapItem{
			Address: uint64(r.Address),
			Size:    uint(len(r.Data)),
			Perms:   r.Perms.String() + "p",
			Path:    r.Path,
		})
	}
	return items, nil
}

func (b *Backend) Open(pid process.ProcessID) (process.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.lookup(pid)
	if err != nil {
		return 0, err
	}
	h := b.nextH
	b.nextH++
	b.handles[h] = p
	p.openCount++
	b.log.Infoln("Process opened", p.Name, int(pid), h)
	return h, nil
}

func (b *Backend) Close(h process.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.handles[h]
	if !ok {
		return process.ErrProcessNotOpen
	}
	delete(b.handles, h)
	p.openCount--
	return nil
}

// OpenHandles returns the number of handles currently open on pid
func (b *Backend) OpenHandles(pid process.ProcessID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.procs[pid]; ok {
		return p.openCount
	}
	return 0
}

func (b *Backend) handle(h process.Handle) (*Process, error) {
	p, ok := b.handles[h]
	if !ok {
		return nil, process.ErrProcessNotOpen
	}
	if p.exited {
		return nil, fmt.Errorf("process %d exited: %w", p.PID, process.ErrProcessNotFound)
	}
	return p, nil
}

func (b *Backend) Bits(h process.Handle, pid process.ProcessID) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.gap("Bits"); err != nil {
		return 0, err
	}
	p, err := b.handle(h)
	if err != nil {
		return 0, err
	}
	if p.Bits == 0 {
		return 64, nil
	}
	return p.Bits, nil
}

func (b *Backend) BaseAddressByHandle(h process.Handle) (process.ProcessMemoryAddress, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.gap("BaseAddressByHandle"); err != nil {
		return 0, err
	}
	p, err := b.handle(h)
	if err != nil {
		return 0, err
	}
	if p.Base != 0 {
		return p.Base, nil
	}
	if len(p.regions) == 0 {
		return 0, fmt.Errorf("process %d has no mapped regions: %w", p.PID, process.ErrAddressNotMapped)
	}
	return p.regions[0].Address, nil
}

func (b *Backend) BaseAddressByName(pid process.ProcessID, name string) (process.ProcessMemoryAddress, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.gap("BaseAddressByName"); err != nil {
		return 0, err
	}
	p, err := b.lookup(pid)
	if err != nil {
		return 0, err
	}
	if name == "" || strings.EqualFold(name, p.Name) {
		if p.Base != 0 {
			return p.Base, nil
		}
		name = p.Name
	}
	for _, m := range p.Modules {
		if strings.EqualFold(m.Name, name) {
			return m.Base, nil
		}
	}
	return 0, fmt.Errorf("module %q in process %d: %w", name, pid, process.ErrModuleNotFound)
}

func alignPage(n uint64) uint64 {
	return (n + pageSize - 1) &^ (pageSize - 1)
}

// Allocate maps zeroed pages. A hint is honoured when the range is free,
// otherwise the process's bump pointer supplies the address.
func (b *Backend) Allocate(h process.Handle, hint process.ProcessMemoryAddress, size process.ProcessMemorySize, perms process.Permissions) (process.ProcessMemoryAddress, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.gap("Allocate"); err != nil {
		return 0, err
	}
	p, err := b.handle(h)
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, process.NewForeignCallError("Allocate", hint, size, errors.New("zero size"))
	}
	length := alignPage(uint64(size))

	if hint != 0 {
		if r, err := p.Map(hint, make([]byte, length), perms, ""); err == nil {
			return r.Address, nil
		}
	}

	if p.next == 0 {
		p.next = p.AllocBase
	}
	for {
		addr := p.next
		p.next += process.ProcessMemoryAddress(length)
		if _, err := p.Map(addr, make([]byte, length), perms, ""); err == nil {
			return addr, nil
		}
	}
}

func (b *Backend) Free(h process.Handle, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.gap("Free"); err != nil {
		return err
	}
	p, err := b.handle(h)
	if err != nil {
		return err
	}
	for i, r := range p.regions {
		if r.Address == addr {
			p.regions = slices.Delete(p.regions, i, i+1)
			return nil
		}
	}
	return process.NewForeignCallError("Free", addr, size, process.ErrAddressNotMapped)
}

// Protect changes the permissions of every region the range touches and
// returns the permissions of the first one.
func (b *Backend) Protect(h process.Handle, addr process.ProcessMemoryAddress, size process.ProcessMemorySize, perms process.Permissions) (process.Permissions, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.gap("Protect"); err != nil {
		return 0, err
	}
	p, err := b.handle(h)
	if err != nil {
		return 0, err
	}

	var touched []*Region
	if err := p.span(addr, max(size, 1), process.PermNone, func(r *Region, _, _ int) { touched = append(touched, r) }); err != nil {
		return 0, process.NewForeignCallError("Protect", addr, size, err)
	}
	previous := touched[0].Perms
	for _, r := range touched {
		r.Perms = perms
	}
	return previous, nil
}

func (b *Backend) Read(h process.Handle, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.handle(h)
	if err != nil {
		return nil, err
	}

	// span checks every region before the first callback, so size is backed by mapped data here.
	var out []byte
	err = p.span(addr, size, process.PermRead, func(r *Region, off, n int) {
		if out == nil {
			out = make([]byte, 0, size)
		}
		out = append(out, r.Data[off:off+n]...)
	})
	if err != nil {
		return nil, process.NewForeignCallError("Read", addr, size, err)
	}
	return out, nil
}

func (b *Backend) Write(h process.Handle, addr process.ProcessMemoryAddress, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.handle(h)
	if err != nil {
		return err
	}

	written := 0
	err = p.span(addr, process.ProcessMemorySize(len(data)), process.PermWrite, func(r *Region, off, n int) {
		copy(r.Data[off:off+n], data[written:written+n])
		written += n
	})
	if err != nil {
		return process.NewForeignCallError("Write", addr, process.ProcessMemorySize(len(data)), err)
	}
	return nil
}

func (b *Backend) Terminate(h process.Handle) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.gap("Terminate"); err != nil {
		return false, err
	}
	p, err := b.handle(h)
	if err != nil {
		return false, err
	}
	p.exited = true
	b.log.Infoln("Process terminated", p.Name, int(p.PID))
	return true, nil
}

// InjectLibrary records path and adds it to the module list.
func (b *Backend) InjectLibrary(h process.Handle, path string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.gap("InjectLibrary"); err != nil {
		return false, err
	}
	p, err := b.handle(h)
	if err != nil {
		return false, err
	}
	p.Libraries = append(p.Libraries, path)
	p.Modules = append(p.Modules, process.ModuleInfo{Name: filepath.Base(path), Path: path})
	b.log.Infoln("Library injected", path)
	return true, nil
}
