package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/betagouv/quotecheck/internal/model"
	"github.com/betagouv/quotecheck/internal/store"
)

var checksCmd = &cobra.Command{
	Use:   "checks",
	Short: "Inspect stored quote checks",
	Long:  "Commands for listing, viewing, and summarizing quote checks.",
}

// -- checks list --

var checksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List quote checks",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		profile, _ := cmd.Flags().GetString("profile")
		withExpected, _ := cmd.Flags().GetBool("with-expected")
		limit, _ := cmd.Flags().GetInt("limit")

		checks, err := st.ListQuoteChecks(ctx, store.QuoteCheckFilter{
			Status:       model.Status(status),
			Profile:      profile,
			WithExpected: withExpected,
			Limit:        limit,
		})
		if err != nil {
			return eris.Wrap(err, "checks list")
		}

		if len(checks) == 0 {
			fmt.Fprintln(os.Stderr, "No quote checks found.")
			return nil
		}

		formatChecksList(os.Stdout, checks)
		return nil
	},
}

// -- checks show --

var checksShowCmd = &cobra.Command{
	Use:   "show <quote-check-id>",
	Short: "Show full details of a quote check",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		qc, err := st.GetQuoteCheck(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "checks show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(qc)
	},
}

// -- checks stats --

var checksStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate quote check statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		checks, err := st.ListQuoteChecks(ctx, store.QuoteCheckFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "checks stats")
		}

		formatCheckStats(os.Stdout, computeCheckStats(checks))
		return nil
	},
}

func init() {
	checksListCmd.Flags().String("status", "", "filter by status (pending, processing, valid, invalid, error)")
	checksListCmd.Flags().String("profile", "", "filter by submitter profile")
	checksListCmd.Flags().Bool("with-expected", false, "only quote checks with an expected-errors snapshot")
	checksListCmd.Flags().Int("limit", 50, "max number of quote checks to display")

	checksCmd.AddCommand(checksListCmd)
	checksCmd.AddCommand(checksShowCmd)
	checksCmd.AddCommand(checksStatsCmd)
	rootCmd.AddCommand(checksCmd)
}

// checkStats holds aggregate statistics computed from a set of quote checks.
type checkStats struct {
	Total       int
	Valid       int
	Invalid     int
	Errored     int
	Pending     int
	AvgSecs     float64
	TotalTokens int
}

func computeCheckStats(checks []model.QuoteCheck) checkStats {
	var s checkStats
	s.Total = len(checks)

	var totalSecs float64
	var timed int
	for _, qc := range checks {
		switch qc.Status {
		case model.StatusValid:
			s.Valid++
		case model.StatusInvalid:
			s.Invalid++
		case model.StatusError:
			s.Errored++
		default:
			s.Pending++
		}
		s.TotalTokens += qc.TokensCount
		if qc.ProcessingTime > 0 {
			totalSecs += qc.ProcessingTime
			timed++
		}
	}
	if timed > 0 {
		s.AvgSecs = totalSecs / float64(timed)
	}
	return s
}

// formatChecksList writes a tabular list of quote checks to w.
func formatChecksList(out io.Writer, checks []model.QuoteCheck) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tPROFILE\tERRORS\tTOKENS\tCREATED")
	for _, qc := range checks {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			qc.ID, qc.Status, qc.Profile,
			len(qc.ValidationErrors), qc.TokensCount,
			qc.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func formatCheckStats(out io.Writer, s checkStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Valid\t%d\n", s.Valid)
	_, _ = fmt.Fprintf(w, "Invalid\t%d\n", s.Invalid)
	_, _ = fmt.Fprintf(w, "Error\t%d\n", s.Errored)
	_, _ = fmt.Fprintf(w, "Pending\t%d\n", s.Pending)
	_, _ = fmt.Fprintf(w, "Avg processing (s)\t%.2f\n", s.AvgSecs)
	_, _ = fmt.Fprintf(w, "Total tokens\t%d\n", s.TotalTokens)
	_ = w.Flush()
}
