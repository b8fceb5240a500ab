package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/MeKo-Tech/deteval/internal/classes"
	"github.com/spf13/cobra"
)

func newClassesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classes",
		Short: "List the known traffic sign and light classes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			labels := classes.Default().Labels()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(labels)
			}
			for _, label := range labels {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), label); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print the labels as a JSON array")
	return cmd
}
