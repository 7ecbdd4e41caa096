// Package state binds a target process to a platform config and exposes the
// raw memory primitives every accessor is built on.
//
// A State is not safe for concurrent use. Dropping a State never terminates
// or otherwise affects the target.
package state

import (
	"errors"
	"fmt"

	"memlayout/platform"
	"memlayout/process"
	"memlayout/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Options selects the target. At least one of ProcessName and Title must be set;
// the title is tried when the name lookup fails. A zero Config.Platform takes the
// backend's platform and a zero Config.Bits is queried from the target on Load.
type Options struct {
	ProcessName string
	Title       string
	Config      platform.Config
}

type State struct {
	log     *logger.Logger
	backend process.Backend
	opts    Options

	config   platform.Config
	registry *platform.Registry
	pid      process.ProcessID
	handle   process.Handle
	base     process.ProcessMemoryAddress
	loaded   bool
}

// New creates an unloaded State. Nothing touches the target until Load.
func New(backend process.Backend, opts Options) *State {
	name := opts.ProcessName
	if name == "" {
		name = opts.Title
	}
	return &State{
		log:     logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "state-"+name)),
		backend: backend,
		opts:    opts,
		config:  opts.Config,
	}
}

// Load resolves the process id, opens a handle, resolves the pointer width if
// unset and finds the base address. On failure the State stays unloaded and
// any handle opened along the way is closed.
func (s *State) Load() error {
	if s.loaded {
		return nil
	}

	pid, err := s.findProcess()
	if err != nil {
		return err
	}

	h, err := s.backend.Open(pid)
	if err != nil {
		return fmt.Errorf("failed to open process %d: %w", pid, err)
	}

	cfg, registry, err := s.resolveConfig(h, pid)
	if err != nil {
		s.backend.Close(h)
		return err
	}

	base, err := s.resolveBase(h, pid)
	if err != nil {
		s.backend.Close(h)
		return err
	}

	s.pid, s.handle, s.base = pid, h, base
	s.config, s.registry = cfg, registry
	s.loaded = true
	s.log.Infoln("Loaded", int(pid), cfg.String(), base.ToString())
	return nil
}

func (s *State) findProcess() (process.ProcessID, error) {
	if s.opts.ProcessName == "" && s.opts.Title == "" {
		return 0, fmt.Errorf("no process name or window title given: %w", process.ErrProcessNotFound)
	}

	var nameErr error
	if s.opts.ProcessName != "" {
		pid, err := s.backend.FindProcessByName(s.opts.ProcessName)
		if err == nil {
			return pid, nil
		}
		if s.opts.Title == "" {
			return 0, err
		}
		nameErr = err
		s.log.Debugln("Name lookup failed, trying window title", s.opts.ProcessName, err)
	}

	pid, err := s.backend.FindProcessByTitle(s.opts.Title)
	if err != nil {
		return 0, errors.Join(nameErr, err)
	}
	return pid, nil
}

func (s *State) resolveConfig(h process.Handle, pid process.ProcessID) (platform.Config, *platform.Registry, error) {
	cfg := s.opts.Config
	if cfg.Platform == platform.Unknown {
		cfg.Platform = s.backend.Platform()
	}
	if !cfg.Resolved() {
		bits, err := s.backend.Bits(h, pid)
		if err != nil {
			return cfg, nil, fmt.Errorf("failed to resolve pointer width: %w", err)
		}
		cfg = cfg.WithBits(bits)
		s.log.Debugln("Resolved pointer width", bits)
	}

	registry, err := platform.RegistryFor(cfg)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, registry, nil
}

// resolveBase prefers the handle; platforms without that fall back to a module
// lookup by name and pid.
func (s *State) resolveBase(h process.Handle, pid process.ProcessID) (process.ProcessMemoryAddress, error) {
	base, err := s.backend.BaseAddressByHandle(h)
	if err == nil {
		return base, nil
	}
	if !errors.Is(err, process.ErrNotImplemented) {
		return 0, fmt.Errorf("failed to resolve base address: %w", err)
	}
	s.log.Debugln("Base address by handle unsupported, using module lookup")

	base, err = s.backend.BaseAddressByName(pid, s.opts.ProcessName)
	if errors.Is(err, process.ErrModuleNotFound) && s.opts.ProcessName != "" {
		base, err = s.backend.BaseAddressByName(pid, "")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve base address: %w", err)
	}
	return base, nil
}

// Unload closes the handle. The target keeps running.
func (s *State) Unload() error {
	if !s.loaded {
		return nil
	}
	err := s.backend.Close(s.handle)
	s.log.Infoln("Unloaded", int(s.pid))

	s.pid, s.handle, s.base = 0, 0, 0
	s.config, s.registry = s.opts.Config, nil
	s.loaded = false
	return err
}

// Reload is Unload followed by Load, picking up a restarted target.
func (s *State) Reload() error {
	if err := s.Unload(); err != nil {
		s.log.Warn("Close failed during reload:", err)
	}
	return s.Load()
}

func (s *State) IsLoaded() bool                            { return s.loaded }
func (s *State) Backend() process.Backend                  { return s.backend }
func (s *State) Options() Options                          { return s.opts }
func (s *State) ProcessName() string                       { return s.opts.ProcessName }
func (s *State) Title() string                             { return s.opts.Title }
func (s *State) PID() process.ProcessID                    { return s.pid }
func (s *State) Handle() process.Handle                    { return s.handle }
func (s *State) BaseAddress() process.ProcessMemoryAddress { return s.base }

// Config returns the layout key. Before Load the pointer width may be unresolved.
func (s *State) Config() platform.Config {
	return s.config
}

// Registry returns the scalar codecs of the loaded config.
func (s *State) Registry() (*platform.Registry, error) {
	if !s.loaded {
		return nil, process.ErrProcessNotOpen
	}
	return s.registry, nil
}

func (s *State) ready() error {
	if !s.loaded {
		return process.ErrProcessNotOpen
	}
	return nil
}

func (s *State) AllocateAt(hint process.ProcessMemoryAddress, size process.ProcessMemorySize, perms process.Permissions) (process.ProcessMemoryAddress, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.backend.Allocate(s.handle, hint, size, perms)
}

func (s *State) FreeAt(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.backend.Free(s.handle, addr, size)
}

// ProtectAt changes the protection of a range and returns the previous one.
func (s *State) ProtectAt(addr process.ProcessMemoryAddress, size process.ProcessMemorySize, perms process.Permissions) (process.Permissions, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.backend.Protect(s.handle, addr, size, perms)
}

func (s *State) ReadAt(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}
	if size > process.MaxReadSize {
		return nil, fmt.Errorf("read %d bytes at %s: %w", uint64(size), addr.ToString(), process.ErrReadTooLarge)
	}
	return s.backend.Read(s.handle, addr, size)
}

func (s *State) WriteAt(addr process.ProcessMemoryAddress, data []byte) error {
	if err := s.ready(); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return s.backend.Write(s.handle, addr, data)
}

// Terminate kills the target. The State stays loaded; call Unload to release the handle.
func (s *State) Terminate() (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	ok, err := s.backend.Terminate(s.handle)
	if err == nil {
		s.log.Infoln("Terminated", int(s.pid))
	}
	return ok, err
}

// InjectLibrary loads the library at path into the target.
func (s *State) InjectLibrary(path string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	ok, err := s.backend.InjectLibrary(s.handle, path)
	if err == nil {
		s.log.Infoln("Injected", path)
	}
	return ok, err
}

// Regions lists the target's mapped regions sorted by address.
func (s *State) Regions() ([]memory_map.MemoryMapItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	regions, err := s.backend.Regions(s.pid)
	if err != nil {
		return nil, err
	}
	memory_map.Sort(regions)
	return regions, nil
}

func (s *State) Modules() ([]process.ModuleInfo, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.backend.Modules(s.pid)
}
