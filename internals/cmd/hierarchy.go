package cmd

import (
	"github.com/spf13/cobra"
)

func newHierarchyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hierarchy",
		Short: "Inspect or initialize the class hierarchy",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the hierarchy in promotion order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap()
			if err != nil {
				return err
			}
			defer rt.close()
			refs, err := rt.svc.Hierarchy.Resolve(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), refs)
		},
	})

	var actor string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the hierarchy from existing classes sorted by name",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap()
			if err != nil {
				return err
			}
			defer rt.close()
			h, err := rt.svc.Hierarchy.Initialize(cmd.Context(), actor)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), h)
		},
	}
	initCmd.Flags().StringVar(&actor, "actor", "cli", "recorded as updatedBy")
	cmd.AddCommand(initCmd)
	return cmd
}
