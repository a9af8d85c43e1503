package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/recovery"
	"github.com/sells-group/enrich-cli/pkg/anthropic"
)

var (
	recoverFile     string
	recoverSearchID string
	recoverOut      string
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Reclassify skipped leads with AI",
	Long:  "Sends skipped firm hints through a classification model. Hints that turn out to be firm names are re-flagged for enrichment; the recovered batch can be fed back with enrich --file.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		leads, err := loadRecoverLeads(ctx)
		if err != nil {
			return err
		}

		candidates := recovery.Recoverable(leads)
		if len(candidates) == 0 {
			fmt.Fprintln(os.Stderr, "No recoverable leads.")
			return nil
		}
		zap.L().Info("classifying skipped leads", zap.Int("count", len(candidates)))

		classifier := recovery.New(anthropic.NewClient(cfg.Anthropic.Key),
			recovery.WithModel(cfg.Anthropic.Model),
			recovery.WithMinConfidence(cfg.Anthropic.MinConfidence))

		results, err := classifier.Recover(ctx, candidates)
		if err != nil {
			return err
		}

		formatRecoveryResults(os.Stdout, results)

		if recoverOut != "" {
			recovered := make([]model.Lead, 0, len(results))
			for _, r := range results {
				if r.Recovered {
					recovered = append(recovered, r.Lead)
				}
			}
			if err := writeLeadsFile(recoverOut, recovered); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %d recovered leads to %s\n", len(recovered), recoverOut)
		}
		return nil
	},
}

func init() {
	recoverCmd.Flags().StringVar(&recoverFile, "file", "", "read leads from a JSON file instead of Close")
	recoverCmd.Flags().StringVar(&recoverSearchID, "saved-search", "", "Close saved search ID (default from config)")
	recoverCmd.Flags().StringVar(&recoverOut, "out", "", "write recovered leads to a JSON file for enrich --file")
	rootCmd.AddCommand(recoverCmd)
}

func loadRecoverLeads(ctx context.Context) ([]model.Lead, error) {
	if recoverFile != "" {
		return readLeadsFile(recoverFile)
	}

	searchID := recoverSearchID
	if searchID == "" {
		searchID = cfg.Close.SavedSearchID
	}
	if searchID == "" {
		return nil, fmt.Errorf("no lead source: set --file, --saved-search, or close.saved_search_id")
	}
	return newCloseClient().FetchLeads(ctx, searchID)
}

func writeLeadsFile(path string, leads []model.Lead) error {
	data, err := json.MarshalIndent(leads, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// formatRecoveryResults writes classification outcomes to w.
func formatRecoveryResults(out io.Writer, results []recovery.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LEAD\tHINT\tCLASS\tCONF\tWEBSITE\tRECOVERED")
	_, _ = fmt.Fprintln(w, "----\t----\t-----\t----\t-------\t---------")

	for _, r := range results {
		recovered := ""
		if r.Recovered {
			recovered = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(r.Lead.LeadID),
			r.Lead.FirmHint,
			r.Class,
			r.Confidence,
			r.Website,
			recovered,
		)
	}
	_ = w.Flush()
}
