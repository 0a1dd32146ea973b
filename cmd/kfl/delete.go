// delete.go removes a single named object.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCommand(flags *rootFlags) *cobra.Command {
	var apiVersion string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "delete TYPE NAME",
		Short: "Delete a named resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := buildClient(flags)
			if err != nil {
				return err
			}
			req := resourceRequest(c, apiVersion, args[0], flags.namespace).
				Name(args[1]).Delete()
			if dryRun {
				req.DryRun(true)
			}
			resp, err := req.DoChecked(cmd.Context())
			if err != nil {
				return err
			}
			if resp.IsNotFound() {
				fmt.Printf("%s/%s not found\n", args[0], args[1])
				return nil
			}
			if dryRun {
				fmt.Printf("%s/%s deleted (dry run)\n", args[0], args[1])
				return nil
			}
			fmt.Printf("%s/%s deleted\n", args[0], args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&apiVersion, "api-version", "v1", "API group/version of the resource type")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Submit the deletion with dryRun=All")
	return cmd
}
