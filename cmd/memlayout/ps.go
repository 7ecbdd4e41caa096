package main

import (
	"fmt"
	"strings"

	"memlayout/inspect"
	"memlayout/process"
	"memlayout/process/memory_map"

	"github.com/spf13/cobra"
)

func newPsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ps [FILTER]",
		Short: "List processes, optionally filtered by name or title",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, _, err := a.openBackend()
			if err != nil {
				return err
			}
			procs, err := backend.ListProcesses()
			if err != nil {
				return err
			}

			filter := ""
			if len(args) == 1 {
				filter = strings.ToLower(args[0])
			}

			table := inspect.NewTable(
				inspect.ColumnSpec{Header: "PID"},
				inspect.ColumnSpec{Header: "PPID"},
				inspect.ColumnSpec{Header: "Name"},
				inspect.ColumnSpec{Header: "Title"},
			)
			for _, p := range procs {
				if filter != "" && !matchProcess(p, filter) {
					continue
				}
				table.AddRow(fmt.Sprint(p.PID), fmt.Sprint(p.PPID), p.Name, p.Title)
			}
			if table.Len() == 0 {
				return fmt.Errorf("no process matches %q", filter)
			}
			return table.Render(cmd.OutOrStdout())
		},
	}
}

func matchProcess(p process.ProcessInfo, filter string) bool {
	return strings.Contains(strings.ToLower(p.Name), filter) ||
		strings.Contains(strings.ToLower(p.Title), filter)
}

func newRegionsCmd(a *app) *cobra.Command {
	var (
		writable bool
		modules  bool
	)

	cmd := &cobra.Command{
		Use:   "regions",
		Short: "List the mapped regions or loaded modules of the target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Unload()

			out := cmd.OutOrStdout()
			if modules {
				mods, err := st.Modules()
				if err != nil {
					return err
				}
				table := inspect.NewTable(
					inspect.ColumnSpec{Header: "Base"},
					inspect.ColumnSpec{Header: "End"},
					inspect.ColumnSpec{Header: "Size"},
					inspect.ColumnSpec{Header: "Name"},
				)
				for _, m := range mods {
					table.AddRow(m.Base.ToString(), m.End().ToString(), fmt.Sprintf("0x%X", uint64(m.Size)), m.Name)
				}
				return table.Render(out)
			}

			regions, err := st.Regions()
			if err != nil {
				return err
			}
			table := inspect.NewTable(
				inspect.ColumnSpec{Header: "Start"},
				inspect.ColumnSpec{Header: "End"},
				inspect.ColumnSpec{Header: "Perms"},
				inspect.ColumnSpec{Header: "Size"},
				inspect.ColumnSpec{Header: "Path", BlankValue: "-"},
			)
			for _, r := range regions {
				if writable && !r.IsWritable() {
					continue
				}
				table.AddRow(regionCells(r)...)
			}
			return table.Render(out)
		},
	}

	cmd.Flags().BoolVarP(&writable, "writable", "w", false, "Only list writable regions")
	cmd.Flags().BoolVarP(&modules, "modules", "m", false, "List loaded modules instead of regions")
	return cmd
}

func regionCells(r memory_map.MemoryMapItem) []string {
	return []string{
		fmt.Sprintf("0x%X", r.Address),
		fmt.Sprintf("0x%X", r.End()),
		r.Perms,
		fmt.Sprintf("0x%X", r.Size),
		r.Path,
	}
}
