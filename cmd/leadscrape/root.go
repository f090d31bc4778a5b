package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/leadscrape/api"
	"github.com/use-agent/leadscrape/config"
	"github.com/use-agent/leadscrape/engine"
	"github.com/use-agent/leadscrape/models"
	"github.com/use-agent/leadscrape/pipeline"
	"github.com/use-agent/leadscrape/sink"
	"github.com/use-agent/leadscrape/webhook"
)

const keywordPrompt = "Enter the keyword to search (e.g., 'pizza'): "

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leadscrape [keyword]",
		Short: "Collect business phone numbers from search results",
		Long: `Searches "<keyword> near me", visits every result and saves each
business name, phone number and URL as pages are processed.

When a human-verification page appears the run pauses until it is solved in
the browser window. Interrupting with Ctrl+C keeps everything saved so far.

Examples:
  leadscrape pizza
  leadscrape --keyword plumber --format sqlite --output leads.db
  leadscrape dentist --engine http --status-addr :8080`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := applyFlags(cmd, cfg); err != nil {
				return err
			}
			initLogger(cfg.Log)

			keyword, err := resolveKeyword(cmd.Context(), cmd, args, cmd.InOrStdin(), cmd.OutOrStdout())
			if err == nil {
				err = run(cmd.Context(), cfg, keyword, cmd.OutOrStdout())
			}
			if models.IsCode(err, models.ErrCodeInterrupted) {
				fmt.Fprintln(cmd.OutOrStdout(), "Interrupted before scraping started, nothing was written.")
				return nil
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringP("keyword", "k", "", "search keyword (prompted for when omitted)")
	f.StringP("output", "o", "", "output path (default $LEADSCRAPE_OUTPUT or businesses.csv)")
	f.String("format", "", "output format: csv or sqlite")
	f.String("engine", "", "browsing engine: "+strings.Join(engine.Names(), ", "))
	f.Bool("headless", false, "run the browser without a window")
	f.String("status-addr", "", "serve run status on this address, e.g. :8080")
	f.String("webhook-url", "", "POST run events to this URL")
	f.String("log-level", "", "debug, info, warn or error")
	return cmd
}

// applyFlags overrides environment configuration with explicitly set flags.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	strs := map[string]*string{
		"output":      &cfg.Output.Path,
		"format":      &cfg.Output.Format,
		"engine":      &cfg.Browser.Engine,
		"status-addr": &cfg.Status.Addr,
		"webhook-url": &cfg.Webhook.URL,
		"log-level":   &cfg.Log.Level,
	}
	for name, dst := range strs {
		if !f.Changed(name) {
			continue
		}
		v, err := f.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	if f.Changed("headless") {
		v, err := f.GetBool("headless")
		if err != nil {
			return err
		}
		cfg.Browser.Headless = v
	}
	return nil
}

// resolveKeyword takes the keyword from the flag, then the argument, then
// asks on in. The prompt gives up when ctx is cancelled.
func resolveKeyword(ctx context.Context, cmd *cobra.Command, args []string, in io.Reader, out io.Writer) (string, error) {
	keyword, err := cmd.Flags().GetString("keyword")
	if err != nil {
		return "", err
	}
	if keyword == "" && len(args) > 0 {
		keyword = args[0]
	}
	if strings.TrimSpace(keyword) != "" {
		return keyword, nil
	}

	fmt.Fprint(out, keywordPrompt)

	type answer struct {
		line string
		err  error
	}
	// The reader goroutine outlives a cancelled prompt; the process exits
	// right after.
	answers := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(in).ReadString('\n')
		answers <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(out)
		return "", models.NewScrapeError(models.ErrCodeInterrupted, "interrupted at the keyword prompt", ctx.Err())
	case a := <-answers:
		if a.err != nil && a.err != io.EOF {
			return "", models.NewScrapeError(models.ErrCodeInvalidInput, "failed to read keyword", a.err)
		}
		return strings.TrimSpace(a.line), nil
	}
}

// interrupted returns an error if ctx is done, before anything is opened
// that would touch the previous output or start a browser.
func interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return models.NewScrapeError(models.ErrCodeInterrupted, "interrupted before the run started", err)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, keyword string, out io.Writer) error {
	q, err := models.NewSearchQuery(keyword, cfg.Search.Locality)
	if err != nil {
		return err
	}

	if cfg.Output.DiagnosticPath == "" {
		cfg.Output.DiagnosticPath = engine.DiagnosticPath(cfg.Browser.Engine)
	}

	if err := interrupted(ctx); err != nil {
		return err
	}
	snk, err := sink.Open(cfg.Output.Format, cfg.Output.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := snk.Close(); err != nil {
			slog.Error("failed to close output", "path", cfg.Output.Path, "error", err)
		}
	}()

	if err := interrupted(ctx); err != nil {
		return err
	}
	s, err := engine.Open(cfg)
	if err != nil {
		return err
	}

	var observers []pipeline.Observer

	tracker := api.NewTracker()
	observers = append(observers, tracker)
	if cfg.Status.Addr != "" {
		srv := api.Start(tracker, cfg.Status)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("status server forced shutdown", "error", err)
			}
		}()
	}

	var notifier *webhook.Notifier
	if cfg.Webhook.URL != "" {
		notifier = webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Secret)
		observers = append(observers, notifier)
	}

	slog.Info("leadscrape starting",
		"query", q.String(),
		"engine", cfg.Browser.Engine,
		"output", cfg.Output.Path,
		"format", cfg.Output.Format,
	)

	report, runErr := pipeline.New(s, snk, cfg, observers...).Run(ctx, q)

	if notifier != nil {
		waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		notifier.Wait(waitCtx)
		cancel()
	}

	switch report.State {
	case pipeline.StateDone:
		fmt.Fprintf(out, "Scraping complete. %d businesses saved to %s\n", report.Stats.Records, cfg.Output.Path)
	case pipeline.StateInterrupted:
		fmt.Fprintf(out, "Scraping interrupted. %d businesses saved to %s\n", report.Stats.Records, cfg.Output.Path)
	}
	return runErr
}
