package main

import (
	"fmt"

	"memlayout/inspect"
	"memlayout/platform"

	"github.com/spf13/cobra"
)

func newLayoutCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "layout [TYPE...]",
		Short: "Print the compiled layout of schema types",
		Long: `Compile types from the schema for --platform and print every field with its
offset, size and alignment. The platform must carry a pointer width, for
example windows_x64.`,
		Example: `  memlayout layout -s game.yaml --platform windows_x64 player
  memlayout layout -s game.yaml --platform linux_x32 --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadSchema()
			if err != nil {
				return err
			}
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if cfg == (platform.Config{}) {
				cfg = s.Config()
			}
			if !cfg.Resolved() {
				return fmt.Errorf("layout needs a pointer width, pass --platform like %s_x64", cfg.Platform)
			}

			names := args
			if all {
				names = s.Names()
			}
			if len(names) == 0 {
				return fmt.Errorf("no type given, name one or pass --all")
			}

			out := cmd.OutOrStdout()
			for i, name := range names {
				l, err := s.Compile(name, cfg)
				if err != nil {
					return err
				}
				if i > 0 {
					fmt.Fprintln(out)
				}
				if err := inspect.Layout(out, l); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Print every type in the schema")
	return cmd
}
