// cmd/oncall/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/signalnine/oncall/internal/analyzer"
	"github.com/signalnine/oncall/internal/config"
	"github.com/signalnine/oncall/internal/history"
	"github.com/signalnine/oncall/internal/logsource"
	"github.com/signalnine/oncall/internal/metrics"
	"github.com/signalnine/oncall/internal/pipeline"
	"github.com/signalnine/oncall/internal/protocol"
	"github.com/signalnine/oncall/internal/report"
	"github.com/signalnine/oncall/internal/server"
)

var (
	configPath string

	hoursBack     int
	filterQuery   string
	maxLogs       int
	focusOnErrors bool
	statsFocus    bool
	outputFormat  string
	historyLimit  int
)

var rootCmd = &cobra.Command{
	Use:           "oncall",
	Short:         "LLM-assisted log triage",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis HTTP API",
	RunE:  runServe,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one analysis and print the result as JSON",
	RunE:  runAnalyze,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Fetch and aggregate logs without calling the model",
	RunE:  runStats,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs recorded by the API server",
	RunE:  runHistory,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	for _, cmd := range []*cobra.Command{analyzeCmd, statsCmd} {
		cmd.Flags().IntVar(&hoursBack, "hours-back", 24, "lookback window in hours (1-168)")
		cmd.Flags().StringVar(&filterQuery, "filter", "", "additional log filter expression")
		cmd.Flags().IntVar(&maxLogs, "max-logs", 0, "maximum entries to fetch (default from config)")
	}
	analyzeCmd.Flags().BoolVar(&focusOnErrors, "focus-errors", true, "only fetch WARNING and above")
	statsCmd.Flags().BoolVar(&statsFocus, "focus-errors", false, "only count WARNING and above")
	analyzeCmd.Flags().StringVar(&outputFormat, "format", "markdown", "report format: markdown or json")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to show")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.Format == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Str("service", "oncall").Logger()
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, newLogger(cfg.Log), nil
}

// buildPipeline wires the configured source, provider and renderer. The
// returned close func releases the source's client.
func buildPipeline(ctx context.Context, cfg *config.Config, log zerolog.Logger, m *metrics.Handler) (*pipeline.Pipeline, func(), error) {
	var (
		src     logsource.Source
		closeFn = func() {}
	)
	switch cfg.LogSource.Type {
	case "gcp":
		gcp, err := logsource.NewGCPSource(ctx, cfg.LogSource.ProjectID, cfg.LogSource.CredentialsFile, cfg.LogSource.Timeout, log)
		if err != nil {
			return nil, nil, err
		}
		src = gcp
		closeFn = func() { gcp.Close() }
	case "file":
		src = logsource.NewFileSource(cfg.LogSource.Path, log)
	default:
		return nil, nil, &config.FieldError{Field: "log_source.type", Reason: fmt.Sprintf("unsupported value %q", cfg.LogSource.Type)}
	}

	provider, err := analyzer.NewProvider(cfg.LLM)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	an := analyzer.New(provider, analyzer.Options{
		MaxEntries:     cfg.Analysis.MaxEntries,
		MaxAttempts:    cfg.LLM.MaxAttempts,
		Timeout:        cfg.LLM.Timeout,
		InitialBackoff: cfg.LLM.InitialBackoff,
		MaxBackoff:     cfg.LLM.MaxBackoff,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
	}, log, m)

	p := pipeline.New(src, an, report.NewRenderer(cfg.Analysis.OutputDir), pipeline.Options{
		DefaultFilter: cfg.LogSource.DefaultFilter,
		DefaultLimit:  cfg.LogSource.DefaultLimit,
		MaxLimit:      cfg.LogSource.MaxLimit,
		TopErrors:     cfg.Analysis.TopErrors,
	}, log, m)

	p.WithObserver(func(tr pipeline.Transition) {
		log.Debug().Str("analysis_id", tr.AnalysisID).Str("from", string(tr.From)).Str("to", string(tr.To)).Msg("State transition")
	})
	return p, closeFn, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	m := metrics.New()
	p, closeSource, err := buildPipeline(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer closeSource()

	db, err := history.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	return server.New(cfg.Server, p, db, m, log).Run(ctx)
}

func request() protocol.AnalysisRequest {
	return protocol.AnalysisRequest{
		HoursBack:     hoursBack,
		FilterQuery:   filterQuery,
		MaxLogs:       maxLogs,
		FocusOnErrors: focusOnErrors,
		OutputFormat:  protocol.OutputFormat(outputFormat),
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	p, closeSource, err := buildPipeline(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer closeSource()

	result, err := p.Run(ctx, request())
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	p, closeSource, err := buildPipeline(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer closeSource()

	req := request()
	req.FocusOnErrors = statsFocus
	req.OutputFormat = ""
	st, err := p.QuickStats(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(st)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := history.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	records, err := db.Recent(historyLimit)
	if err != nil {
		return err
	}
	counts, err := db.StatusCounts()
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"runs":          records,
		"status_counts": counts,
	})
}
