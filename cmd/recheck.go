package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var recheckCmd = &cobra.Command{
	Use:   "recheck <quote-check-id>",
	Short: "Reset a finished quote check and run it again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := e.Pipeline.Recheck(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "recheck")
		}

		zap.L().Info("recheck complete",
			zap.String("quote_check_id", result.ID),
			zap.String("status", string(result.Status)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	rootCmd.AddCommand(recheckCmd)
}
