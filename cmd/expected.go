package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var expectedFile string

var expectedCmd = &cobra.Command{
	Use:   "expected <quote-check-id>",
	Short: "Record the expected validation errors for regression runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		payload, err := os.ReadFile(expectedFile)
		if err != nil {
			return eris.Wrapf(err, "read expected errors file %s", expectedFile)
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		expected, err := e.Regression.SetExpected(ctx, args[0], payload)
		if err != nil {
			return eris.Wrap(err, "set expected errors")
		}

		fmt.Printf("Recorded %d expected validation errors for %s\n", len(expected), args[0])
		return nil
	},
}

func init() {
	expectedCmd.Flags().StringVarP(&expectedFile, "file", "f", "", "JSON file with the expected validation errors (required)")
	_ = expectedCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(expectedCmd)
}
