package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var regressCmd = &cobra.Command{
	Use:   "regress <quote-check-id>",
	Short: "Diff the latest validation errors against the expected snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		diff, err := e.Regression.Run(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "regression diff")
		}

		fmt.Printf("Matching (%d):\n", len(diff.Matching))
		for _, id := range diff.Matching {
			fmt.Printf("  = %s\n", id)
		}
		fmt.Printf("Missing (%d):\n", len(diff.Missing))
		for _, id := range diff.Missing {
			fmt.Printf("  - %s\n", id)
		}
		fmt.Printf("Unexpected (%d):\n", len(diff.Unexpected))
		for _, id := range diff.Unexpected {
			fmt.Printf("  + %s\n", id)
		}

		if !diff.Clean() {
			fmt.Fprintln(os.Stderr, "Regression detected.")
			os.Exit(1)
		}
		fmt.Println("No regression.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(regressCmd)
}
