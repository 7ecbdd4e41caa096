package main

import (
	"fmt"

	"memlayout/hexdump"
	"memlayout/inspect"
	"memlayout/memory"
	"memlayout/process"
	"memlayout/process/memory_map"

	"github.com/spf13/cobra"
)

func newReadCmd(a *app) *cobra.Command {
	var (
		address   string
		path      string
		hex       bool
		synthetic bool
		maxElems  int
	)

	cmd := &cobra.Command{
		Use:   "read TYPE",
		Short: "Read a schema type out of the target",
		Long: `Resolve an address in the target, view it as TYPE and print each field.

--address takes an absolute address or "base+0x10". --path is a comma
separated list of offsets followed as a pointer chain from that address,
the last offset added without a dereference.`,
		Example: `  memlayout read player -s game.yaml -p game.exe --address base+0x1F00 --path 0x10,0x0
  memlayout read entity -s game.yaml --dump ./dump --address 0x7ff000 --hex`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sch, err := a.loadSchema()
			if err != nil {
				return err
			}
			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Unload()

			l, err := sch.Compile(args[0], st.Config())
			if err != nil {
				return err
			}

			addr := st.BaseAddress()
			if address != "" {
				if addr, err = parseAddress(address, st.BaseAddress()); err != nil {
					return err
				}
			}
			offsets, err := parseOffsets(path)
			if err != nil {
				return err
			}
			if len(offsets) > 0 {
				start := addr
				if addr, err = st.ResolvePath(addr, offsets...); err != nil {
					return fmt.Errorf("resolve path: %w", err)
				}
				a.debug(cmd.ErrOrStderr(), "path %s from %s -> %s\n", path, start.ToString(), addr.ToString())
			}

			out := cmd.OutOrStdout()
			a.status(out, "%s pid %d base %s\n", st.ProcessName(), st.PID(), st.BaseAddress().ToString())

			// A backend without a region listing just loses the pointer check.
			regions, _ := st.Regions()

			view := memory.New(st, addr, l)
			s, err := view.Struct()
			if err != nil {
				return err
			}

			opts := []inspect.Option{inspect.WithMaxElements(maxElems)}
			if len(regions) > 0 {
				opts = append(opts, inspect.WithPointerCheck(func(p process.ProcessMemoryAddress) bool {
					return memory_map.IsValidAddress(uint64(p), regions)
				}))
			}
			if synthetic {
				opts = append(opts, inspect.WithSynthetic())
			}
			if err := inspect.Struct(out, s, opts...); err != nil {
				return err
			}

			if !hex {
				return nil
			}
			start := addr.Offset(-int64(l.Origin()))
			data, err := st.ReadAt(start, process.ProcessMemorySize(l.Size()))
			if err != nil {
				return fmt.Errorf("read %s: %w", start.ToString(), err)
			}
			hopts := hexdump.DefaultOptions()
			hopts.StartOffset = uint64(start)
			hopts.Layout = l
			hopts.PointerSize = st.Config().PointerSize()
			hopts.MemoryMap = regions
			fmt.Fprintln(out)
			hexdump.Dump(out, data, hopts)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&address, "address", "a", "", "Start address, absolute or base+offset (default: module base)")
	flags.StringVar(&path, "path", "", "Pointer chain offsets, comma separated")
	flags.BoolVar(&hex, "hex", false, "Also hex dump the object with field annotations")
	flags.BoolVar(&synthetic, "synthetic", false, "Include padding and vtable fields")
	flags.IntVar(&maxElems, "max-elements", 16, "Array elements to expand per field")
	return cmd
}
