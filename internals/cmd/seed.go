package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"schoolrecords_backend/internals/batch"
	"schoolrecords_backend/internals/seeds"
)

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load classes, pupils and the hierarchy from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap()
			if err != nil {
				return err
			}
			defer rt.close()

			r := &seeds.Runner{
				Store:     rt.store,
				Exec:      batch.NewExecutor(rt.store, rt.cfg.ChunkSize(), rt.log),
				Hierarchy: rt.svc.Hierarchy,
				Log:       rt.log,
			}
			sum, err := r.RunFromFile(cmd.Context(), file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "classes: %d created, %d skipped\npupils: %d created, %d skipped\nhierarchy: %d classes\n",
				sum.ClassesCreated, sum.ClassesSkipped, sum.PupilsCreated, sum.PupilsSkipped, sum.HierarchySize)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "seed.yaml", "seed file")
	return cmd
}
