package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/betagouv/quotecheck/internal/model"
	"github.com/betagouv/quotecheck/internal/ocr"
)

var (
	checkFile    string
	checkText    string
	checkProfile string
	checkGestes  []string
	checkAides   []string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the full check on a quote",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		text := checkText
		fileRef := ""
		if checkFile != "" {
			content, err := readQuoteFile(ctx, checkFile)
			if err != nil {
				return err
			}
			text = content
			fileRef = checkFile
		}
		if text == "" {
			return eris.New("either --file or --text is required")
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		qc, err := e.Store.CreateQuoteCheck(ctx, model.QuoteCheck{
			Text:    text,
			FileRef: fileRef,
			Profile: checkProfile,
			Metadata: model.Metadata{
				Gestes: checkGestes,
				Aides:  checkAides,
			},
		})
		if err != nil {
			return eris.Wrap(err, "create quote check")
		}

		result, err := e.Pipeline.Run(ctx, qc.ID)
		if err != nil {
			return eris.Wrap(err, "run quote check")
		}

		zap.L().Info("check complete",
			zap.String("quote_check_id", result.ID),
			zap.String("status", string(result.Status)),
			zap.Int("validation_errors", len(result.ValidationErrors)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// readQuoteFile loads quote text from disk, running PDFs through the
// configured OCR provider first.
func readQuoteFile(ctx context.Context, path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		extractor, err := ocr.NewExtractor(cfg.OCR, cfg.Mistral.Key)
		if err != nil {
			return "", err
		}
		text, err := extractor.ExtractText(ctx, path)
		if err != nil {
			return "", eris.Wrapf(err, "extract text from %s", path)
		}
		return text, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "read quote file %s", path)
	}
	return string(data), nil
}

func init() {
	checkCmd.Flags().StringVar(&checkFile, "file", "", "path to the quote file (text or PDF)")
	checkCmd.Flags().StringVar(&checkText, "text", "", "quote text inline")
	checkCmd.Flags().StringVar(&checkProfile, "profile", "", "submitter profile (artisan, particulier, conseiller)")
	checkCmd.Flags().StringSliceVar(&checkGestes, "gestes", nil, "geste types the quote is supposed to cover")
	checkCmd.Flags().StringSliceVar(&checkAides, "aides", nil, "aides the quote is supposed to reference")
	rootCmd.AddCommand(checkCmd)
}
