package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEffectsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "effects",
		Short: "List the effects a chain can hold",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, _, err := a.engine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			for _, name := range e.Effects() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}

			return nil
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective host configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}

			data, err := cfg.Marshal()
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(data)

			return err
		},
	}
}
