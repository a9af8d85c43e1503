package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/contact"
	"github.com/sells-group/enrich-cli/internal/match"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/pipeline"
	"github.com/sells-group/enrich-cli/internal/resilience"
	"github.com/sells-group/enrich-cli/internal/tracker"
	"github.com/sells-group/enrich-cli/internal/webhook"
	"github.com/sells-group/enrich-cli/pkg/apollo"
	"github.com/sells-group/enrich-cli/pkg/closecrm"
)

var (
	enrichDryRun      bool
	enrichFile        string
	enrichSearchID    string
	enrichLimit       int
	enrichConcurrency int
	enrichWait        time.Duration
	enrichWriteBack   bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run lead enrichment",
	Long:  "Pulls leads from a Close saved search (or a JSON file), matches each to a law firm, unlocks contact emails and requests phone reveals. Use --dry-run to stop before any paid operation.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads, crm, err := loadLeads(ctx)
		if err != nil {
			return err
		}
		if enrichLimit > 0 && len(leads) > enrichLimit {
			leads = leads[:enrichLimit]
		}
		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads to enrich.")
			return nil
		}

		policy, err := match.LoadPolicy(cfg.Matching.PolicyPath)
		if err != nil {
			return err
		}

		mode := model.ModeFull
		if enrichDryRun {
			mode = model.ModeDryRun
		}

		concurrency := cfg.Enrich.Concurrency
		if enrichConcurrency > 0 {
			concurrency = enrichConcurrency
		}
		phoneTimeout := time.Duration(cfg.Enrich.PhoneTimeoutMins) * time.Minute
		if enrichWait > 0 {
			phoneTimeout = enrichWait
		}

		opts := pipeline.Options{
			Mode:          mode,
			Concurrency:   concurrency,
			Titles:        cfg.Enrich.Titles,
			ContactTarget: cfg.Enrich.ContactTarget,
			PhoneTimeout:  phoneTimeout,
			Policy:        policy,
			MaxFallbacks:  cfg.Enrich.OrgFallbackLimit,
			Unlock: contact.UnlockConfig{
				Budget:      cfg.Enrich.UnlockBudget,
				MinInterval: time.Duration(cfg.Enrich.UnlockIntervalMS) * time.Millisecond,
			},
		}

		// Phone reveals need a reachable webhook endpoint; without one the
		// run still unlocks emails but skips phone requests.
		var shutdown func()
		if mode == model.ModeFull && cfg.Enrich.WebhookURL != "" {
			opts.WebhookURL = cfg.Enrich.WebhookURL
			srv := webhook.NewServer(webhook.NewStoreReceiver(st), st)
			shutdown = startWebhookServer(srv, cfg.Server.Port)
			opts.OnTracker = func(tr *tracker.Tracker) {
				srv.SetReceiver(tr)
			}
		}

		provider := pipeline.NewApolloProvider(newApolloClient())
		run, err := pipeline.New(provider, st, opts).Run(ctx, leads)
		if shutdown != nil {
			shutdown()
		}
		if err != nil {
			return err
		}

		if enrichWriteBack && crm != nil && mode == model.ModeFull {
			writeBack(ctx, crm, run.Records)
		}

		formatRunSummary(os.Stdout, run)
		return nil
	},
}

func init() {
	enrichCmd.Flags().BoolVar(&enrichDryRun, "dry-run", false, "stop before paid unlocks and phone requests")
	enrichCmd.Flags().StringVar(&enrichFile, "file", "", "read leads from a JSON file instead of Close")
	enrichCmd.Flags().StringVar(&enrichSearchID, "saved-search", "", "Close saved search ID (default from config)")
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 0, "max number of leads to process (0 = all)")
	enrichCmd.Flags().IntVar(&enrichConcurrency, "concurrency", 0, "concurrent leads (default from config)")
	enrichCmd.Flags().DurationVar(&enrichWait, "wait", 0, "how long to wait for phone deliveries (default from config)")
	enrichCmd.Flags().BoolVar(&enrichWriteBack, "write-back", false, "write enriched contacts and phones back to Close")
	rootCmd.AddCommand(enrichCmd)
}

// loadLeads reads the lead batch from a file or from the Close saved search.
// The CRM client is returned for write-back and is nil in file mode.
func loadLeads(ctx context.Context) ([]model.Lead, closecrm.Client, error) {
	if enrichFile != "" {
		leads, err := readLeadsFile(enrichFile)
		return leads, nil, err
	}

	searchID := enrichSearchID
	if searchID == "" {
		searchID = cfg.Close.SavedSearchID
	}
	if searchID == "" {
		return nil, nil, eris.New("no lead source: set --file, --saved-search, or close.saved_search_id")
	}

	crm := newCloseClient()
	leads, err := crm.FetchLeads(ctx, searchID)
	if err != nil {
		return nil, nil, err
	}
	return leads, crm, nil
}

func readLeadsFile(path string) ([]model.Lead, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read leads file %s", path)
	}
	var leads []model.Lead
	if err := json.Unmarshal(data, &leads); err != nil {
		return nil, eris.Wrapf(err, "parse leads file %s", path)
	}
	return leads, nil
}

func newApolloClient() apollo.Client {
	opts := []apollo.Option{
		apollo.WithRateLimit(time.Duration(cfg.Apollo.RateLimitMillis) * time.Millisecond),
		apollo.WithBreaker(resilience.NewBreaker(
			cfg.Apollo.BreakerFailures,
			time.Duration(cfg.Apollo.BreakerCooldown)*time.Second)),
	}
	if cfg.Apollo.BaseURL != "" {
		opts = append(opts, apollo.WithBaseURL(cfg.Apollo.BaseURL))
	}
	return apollo.NewClient(cfg.Apollo.Key, opts...)
}

func newCloseClient() closecrm.Client {
	opts := []closecrm.Option{closecrm.WithFieldMap(cfg.Close.Fields)}
	if cfg.Close.BaseURL != "" {
		opts = append(opts, closecrm.WithBaseURL(cfg.Close.BaseURL))
	}
	return closecrm.NewClient(cfg.Close.Key, opts...)
}

// startWebhookServer serves the webhook surface for the duration of the run
// and returns a shutdown func.
func startWebhookServer(srv *webhook.Server, port int) func() {
	hs := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: srv.Handler(),
	}
	go func() {
		if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Error("webhook server failed", zap.Error(err))
		}
	}()
	zap.L().Info("webhook server listening", zap.Int("port", port))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(ctx)
	}
}

// writeBack pushes unlocked contacts and resolved phones into Close.
// Write-back failures are logged per contact; the run record is already
// persisted either way.
func writeBack(ctx context.Context, crm closecrm.Client, records []model.EnrichedRecord) {
	for _, rec := range records {
		if rec.Status != model.LeadEnriched && rec.Status != model.LeadPartial {
			continue
		}
		firmName := ""
		if rec.Match.Organization != nil {
			firmName = rec.Match.Organization.Name
		}

		for _, c := range rec.Contacts {
			if !c.EmailUnlocked {
				continue
			}
			contactID, err := crm.CreateContact(ctx, rec.Lead.LeadID, firmName, c)
			if err != nil {
				zap.L().Warn("contact write-back failed",
					zap.String("lead_id", rec.Lead.LeadID),
					zap.String("contact", c.FullName()),
					zap.Error(err))
				continue
			}
			if phones := rec.Phones[c.ID]; len(phones) > 0 {
				if err := crm.UpdateContactPhones(ctx, contactID, phones); err != nil {
					zap.L().Warn("phone write-back failed",
						zap.String("contact_id", contactID),
						zap.Error(err))
				}
			}
		}
	}
}

// formatRunSummary writes the run outcome to w.
func formatRunSummary(out io.Writer, run *model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Run:\t%s (%s)\n", run.ID, run.Mode)
	if s := run.Summary; s != nil {
		fmt.Fprintf(w, "Leads:\t%d\n", s.Leads)
		fmt.Fprintf(w, "Matched:\t%d\n", s.Matched)
		fmt.Fprintf(w, "No match:\t%d\n", s.NoMatch)
		fmt.Fprintf(w, "Ambiguous:\t%d\n", s.Ambiguous)
		fmt.Fprintf(w, "Skipped:\t%d\n", s.Skipped)
		fmt.Fprintf(w, "Contacts:\t%d\n", s.Contacts)
		fmt.Fprintf(w, "Unlocked:\t%d\n", s.Unlocked)
		fmt.Fprintf(w, "Phones:\t%d\n", s.Phones)
	}
	_ = w.Flush()
}
