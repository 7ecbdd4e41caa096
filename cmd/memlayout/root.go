package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"memlayout/coloransi"
	"memlayout/config"
	"memlayout/platform"
	"memlayout/process"
	"memlayout/process_blob"
	"memlayout/schema"
	"memlayout/state"

	"github.com/spf13/cobra"
)

// app carries the global flags and the environment config to every subcommand.
type app struct {
	env config.TargetConfig

	schemaPath string
	platform   string
	process    string
	title      string
	dumpDir    string
	noColor    bool
	quiet      bool

	// backend overrides the native backend; tests point it at a blob.
	backend process.Backend
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "memlayout",
		Short: "Compile struct layouts and read them out of live processes",
		Long: `memlayout compiles struct declarations for a platform and pointer width,
and reads or searches them inside a running process or a saved dump.

The target can also be given through MEMLAYOUT_PROCESS, MEMLAYOUT_TITLE,
MEMLAYOUT_PLATFORM, MEMLAYOUT_BITS and MEMLAYOUT_DUMP; flags win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.schemaPath, "schema", "s", "", "YAML schema with the type declarations")
	flags.StringVar(&a.platform, "platform", "", "Target config such as windows_x64 or linux")
	flags.StringVarP(&a.process, "process", "p", "", "Target process name")
	flags.StringVar(&a.title, "title", "", "Target window title")
	flags.StringVar(&a.dumpDir, "dump", "", "Read from a saved dump directory instead of a live process")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "Suppress status messages")

	root.AddCommand(
		newLayoutCmd(a),
		newReadCmd(a),
		newPsCmd(a),
		newRegionsCmd(a),
		newSearchCmd(a),
		newScanCmd(a),
		newDumpCmd(a),
		newInjectCmd(a),
	)
	return root
}

func (a *app) setup() error {
	env, err := config.Load()
	if err != nil {
		return err
	}
	a.env = env
	if a.process == "" {
		a.process = env.ProcessName
	}
	if a.title == "" {
		a.title = env.Title
	}
	if a.dumpDir == "" {
		a.dumpDir = env.DumpDir
	}
	a.quiet = a.quiet || env.Quiet()

	if a.noColor {
		coloransi.Enabled = false
	}
	return nil
}

func (a *app) status(w io.Writer, format string, args ...any) {
	if !a.quiet {
		fmt.Fprintf(w, format, args...)
	}
}

func (a *app) debug(w io.Writer, format string, args ...any) {
	if a.env.Debug() {
		fmt.Fprintf(w, format, args...)
	}
}

// config is --platform when given, otherwise MEMLAYOUT_PLATFORM and MEMLAYOUT_BITS.
// Bits stay 0 when neither names a width.
func (a *app) config() (platform.Config, error) {
	if a.platform == "" {
		return a.env.Config()
	}
	return platform.ParseConfig(a.platform)
}

func (a *app) loadSchema() (*schema.Schema, error) {
	if a.schemaPath == "" {
		return nil, fmt.Errorf("--schema is required")
	}
	return schema.LoadFile(a.schemaPath)
}

// openBackend returns the blob backend of --dump when one is given, with the
// dumped process, and the native backend otherwise.
func (a *app) openBackend() (process.Backend, *process_blob.Process, error) {
	if a.dumpDir != "" {
		b, proc, err := process_blob.LoadDump(a.dumpDir)
		if err != nil {
			return nil, nil, err
		}
		return b, proc, nil
	}
	if a.backend != nil {
		return a.backend, nil, nil
	}
	return state.NativeBackend(), nil, nil
}

// openState loads the target from a dump directory, or from the live process
// named by --process / --title.
func (a *app) openState() (*state.State, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}

	backend, dumped, err := a.openBackend()
	if err != nil {
		return nil, err
	}
	opts := state.Options{ProcessName: a.process, Title: a.title, Config: cfg}
	if dumped != nil {
		opts.ProcessName, opts.Title = dumped.Name, ""
	}

	if opts.ProcessName == "" && opts.Title == "" {
		return nil, config.ErrNoTarget
	}

	s := state.New(backend, opts)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// parseAddress accepts hex with a 0x prefix, plain decimal, or "base" / "base+0x10".
func parseAddress(s string, base process.ProcessMemoryAddress) (process.ProcessMemoryAddress, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if rest, ok := strings.CutPrefix(s, "base"); ok {
		if rest == "" {
			return base, nil
		}
		off, err := strconv.ParseInt(rest, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid address %q: %w", s, err)
		}
		return base.Offset(off), nil
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return process.ProcessMemoryAddress(v), nil
}

// parseOffsets parses a comma separated pointer path such as "0x10,-8,0x20".
func parseOffsets(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int64
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid offset %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}
