package cmd

import (
	"github.com/spf13/cobra"

	"schoolrecords_backend/internals/constants"
	helperAuth "schoolrecords_backend/internals/helpers/auth"
)

func newSnapshotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Inspect promotion execution snapshots for reconciliation",
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap()
			if err != nil {
				return err
			}
			defer rt.close()
			snaps, err := rt.svc.Promotions.ListSnapshots(cmd.Context(), status)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snaps)
		},
	}
	list.Flags().StringVar(&status, "status", "", "in_progress | completed | failed | reconciled | abandoned")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print one snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap()
			if err != nil {
				return err
			}
			defer rt.close()
			snap, err := rt.svc.Promotions.Snapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	})

	var resolution, note, actor string
	reconcile := &cobra.Command{
		Use:   "reconcile <id>",
		Short: "Resume, complete or release a failed execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap()
			if err != nil {
				return err
			}
			defer rt.close()
			who := helperAuth.Actor{UserID: actor, Role: constants.RoleAdmin}
			out, err := rt.svc.Promotions.ReconcileExecution(cmd.Context(), who, args[0], resolution, note)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	reconcile.Flags().StringVar(&resolution, "resolution", "resume", "resume | complete | release")
	reconcile.Flags().StringVar(&note, "note", "", "audit note, required for complete and release")
	reconcile.Flags().StringVar(&actor, "actor", "cli", "recorded as resolvedBy")
	cmd.AddCommand(reconcile)
	return cmd
}
