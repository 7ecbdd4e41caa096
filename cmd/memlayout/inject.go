package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newInjectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inject LIBRARY",
		Short: "Load a shared library into the target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Unload()

			ok, err := st.InjectLibrary(path)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("inject %s into pid %d: target reported failure", path, st.PID())
			}
			a.status(cmd.OutOrStdout(), "injected %s into pid %d\n", path, st.PID())
			return nil
		},
	}
}
