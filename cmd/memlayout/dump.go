package main

import (
	"fmt"

	"memlayout/inspect"
	"memlayout/platform"
	"memlayout/process_blob"

	"github.com/spf13/cobra"
)

func newDumpCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Save the target to a directory or inspect a saved dump",
	}
	cmd.AddCommand(newDumpSaveCmd(a), newDumpInfoCmd(a))
	return cmd
}

func newDumpSaveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "save DIR",
		Short: "Write the memory map and every readable region to DIR",
		Long: `Write metadata.json, process_memory_map.json and one blob per readable
region to DIR. The result can be read back with --dump DIR.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Unload()

			saved, err := process_blob.SaveDump(args[0], st.Backend(), process_blob.DumpTarget{
				PID:    st.PID(),
				Handle: st.Handle(),
				Name:   st.ProcessName(),
				Title:  st.Title(),
				Bits:   st.Config().Bits,
				Base:   st.BaseAddress(),
			})
			if err != nil {
				return err
			}
			a.status(cmd.OutOrStdout(), "saved %d region(s) of pid %d to %s\n", saved, st.PID(), args[0])
			return nil
		},
	}
}

func newDumpInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info DIR",
		Short: "Summarise a saved dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, proc, err := process_blob.LoadDump(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Process: %s (pid %d)\n", proc.Name, proc.PID)
			if proc.Title != "" {
				fmt.Fprintf(out, "Title:   %s\n", proc.Title)
			}
			fmt.Fprintf(out, "Target:  %s\n", platform.Config{Platform: backend.Platform(), Bits: proc.Bits})
			fmt.Fprintf(out, "Base:    %s\n", proc.Base.ToString())

			var total int
			table := inspect.NewTable(
				inspect.ColumnSpec{Header: "Start"},
				inspect.ColumnSpec{Header: "End"},
				inspect.ColumnSpec{Header: "Perms"},
				inspect.ColumnSpec{Header: "Size"},
				inspect.ColumnSpec{Header: "Path", BlankValue: "-"},
			)
			for _, r := range proc.Regions() {
				total += len(r.Data)
				table.AddRow(
					r.Address.ToString(),
					r.End().ToString(),
					r.Perms.String(),
					fmt.Sprintf("0x%X", len(r.Data)),
					r.Path,
				)
			}
			fmt.Fprintf(out, "Regions: %d loaded, %d bytes\n\n", len(proc.Regions()), total)
			return table.Render(out)
		},
	}
}
