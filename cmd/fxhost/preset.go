package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-fxhost/settings"
)

func newPresetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage named presets",
		Long: `Presets are JSON files under <preset-dir>/<direction>/<name>.json.

Subcommands:
  list     List the presets of a direction
  show     Print a preset document
  check    Load a preset into a scratch host and report field errors
  init     Save the default parameters under a name
  remove   Delete a preset`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <direction>",
			Short: "List presets",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				dir, err := settings.ParseDirection(args[0])
				if err != nil {
					return err
				}

				e, _, err := a.engine(cmd)
				if err != nil {
					return err
				}
				defer e.Close()

				names, err := e.Presets().List(dir)
				if err != nil {
					return err
				}

				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}

				return nil
			},
		},
		&cobra.Command{
			Use:   "show <direction> <name>",
			Short: "Print a preset document",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				dir, err := settings.ParseDirection(args[0])
				if err != nil {
					return err
				}

				e, _, err := a.engine(cmd)
				if err != nil {
					return err
				}
				defer e.Close()

				doc, err := e.Presets().Read(cmd.Context(), dir, args[1])
				if err != nil {
					return err
				}

				return doc.Encode(cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "check <direction> <name>",
			Short: "Validate a preset by loading it",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				dir, err := settings.ParseDirection(args[0])
				if err != nil {
					return err
				}

				e, _, err := a.engine(cmd)
				if err != nil {
					return err
				}
				defer e.Close()

				if err := e.Presets().Load(cmd.Context(), dir, args[1]); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s: ok\n", dir, args[1])

				return nil
			},
		},
		&cobra.Command{
			Use:   "init <direction> <name>",
			Short: "Save the default parameters of the configured chain",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				dir, err := settings.ParseDirection(args[0])
				if err != nil {
					return err
				}

				e, _, err := a.engine(cmd)
				if err != nil {
					return err
				}
				defer e.Close()

				return e.Presets().Save(cmd.Context(), dir, args[1])
			},
		},
		&cobra.Command{
			Use:   "remove <direction> <name>",
			Short: "Delete a preset",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				dir, err := settings.ParseDirection(args[0])
				if err != nil {
					return err
				}

				e, _, err := a.engine(cmd)
				if err != nil {
					return err
				}
				defer e.Close()

				return e.Presets().Remove(dir, args[1])
			},
		},
	)

	return cmd
}
