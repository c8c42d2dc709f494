// Command analyze parses trade history workbooks and prints their analysis
// as JSON. Arguments may be workbook files, directories of workbooks, or
// Google Sheets URLs.
//
//	analyze [flags] history.xlsx exports/ https://docs.google.com/spreadsheets/d/<id>/edit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"tradepulse/internal/config"
	"tradepulse/internal/dataprocessing"
	"tradepulse/internal/exporter"
	"tradepulse/internal/files"
	"tradepulse/internal/infrastructure"
	"tradepulse/internal/services"
	"tradepulse/internal/sources"
	"tradepulse/internal/validation"
	"tradepulse/pkg/contracts/domain"
)

// options are the parsed command-line flags
type options struct {
	start       string
	end         string
	recentWeek  bool
	outDir      string
	series      []exporter.Series
	records     bool
	timezone    string
	locale      string
	concurrency int
	logLevel    string
	configFile  string
	inputs      []string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns the process exit code: 0 when every
// input was analyzed, 1 when any input failed, 2 on usage errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	logger := infrastructure.WithComponent(infrastructure.NewLogger(cfg.Logging, stderr), "cli")
	ctx = infrastructure.EnsureTraceID(ctx)

	fetcher, err := sources.NewSheetFetcher(ctx, cfg.Sheets,
		sources.WithFetcherLogger(logger),
		sources.WithMaxBytes(cfg.Server.MaxUploadBytes))
	if err != nil {
		infrastructure.WithError(logger, err).ErrorContext(ctx, "Failed to initialize sheet fetcher")
		return 1
	}
	svc, err := newService(cfg, logger, fetcher)
	if err != nil {
		infrastructure.WithError(logger, err).ErrorContext(ctx, "Failed to initialize")
		return 1
	}

	validator := validation.NewFileValidator(logger)
	if opts.outDir != "" {
		if err := validator.ValidateOutputDirectory(opts.outDir); err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
	}

	inputs, err := buildInputs(opts.inputs, fetcher, validator, cfg.Server.MaxUploadBytes)
	if err != nil {
		infrastructure.WithError(logger, err).ErrorContext(ctx, "Invalid input")
		return 2
	}

	rng := domain.DateRange{StartDate: opts.start, EndDate: opts.end, FullRange: !opts.recentWeek && opts.start == "" && opts.end == ""}
	includeRecords := opts.records || (opts.outDir != "" && containsSeries(opts.series, exporter.SeriesTrades))

	results, err := svc.AnalyzeBatch(ctx, inputs, services.AnalysisOptions{Range: rng, IncludeRecords: includeRecords})
	if err != nil {
		infrastructure.WithError(logger, err).ErrorContext(ctx, "Analysis aborted")
		return 1
	}

	exitCode := 0
	if opts.outDir != "" {
		csvWriter := exporter.NewCSVWriter(logger)
		for _, res := range results {
			if res.Analysis == nil {
				continue
			}
			if err := exportAll(csvWriter, opts.outDir, res, opts.series, svc.Location()); err != nil {
				infrastructure.WithError(logger, err).ErrorContext(ctx, "Export failed", slog.String("input", res.Name))
				exitCode = 1
			}
		}
	}

	for _, res := range results {
		if res.Err != nil {
			exitCode = 1
		}
		if res.Analysis != nil && !opts.records {
			res.Analysis.Records = nil
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(results); err != nil {
		infrastructure.WithError(logger, err).ErrorContext(ctx, "Failed to write results")
		return 1
	}
	return exitCode
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.start, "start", "", "first exit day to include (YYYY-MM-DD)")
	fs.StringVar(&opts.end, "end", "", "last exit day to include (YYYY-MM-DD)")
	fs.BoolVar(&opts.recentWeek, "week", false, "analyze only the most recent trading week")
	fs.StringVar(&opts.outDir, "out", "", "directory for CSV exports; no export when empty")
	series := fs.String("series", "daily,weekly,monthly,symbols", "comma separated series to export")
	fs.BoolVar(&opts.records, "records", false, "include parsed trade records in the JSON output")
	fs.StringVar(&opts.timezone, "tz", "", "IANA time zone for day boundaries (default from config)")
	fs.StringVar(&opts.locale, "locale", "", "weekday label locale, e.g. ko or en (default from config)")
	fs.IntVar(&opts.concurrency, "concurrency", 0, "workbooks analyzed in parallel (default from config)")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")
	fs.StringVar(&opts.configFile, "config", "", "YAML config file")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: analyze [flags] <workbook|directory|sheet-url>...")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.inputs = fs.Args()
	if len(opts.inputs) == 0 {
		fs.Usage()
		return opts, errors.New("at least one workbook, directory or sheet URL is required")
	}
	if opts.recentWeek && (opts.start != "" || opts.end != "") {
		return opts, errors.New("-week cannot be combined with -start or -end")
	}
	for _, d := range []string{opts.start, opts.end} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return opts, fmt.Errorf("invalid date %q, want YYYY-MM-DD", d)
		}
	}

	for _, name := range strings.Split(*series, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		s, err := exporter.ParseSeries(name)
		if err != nil {
			return opts, err
		}
		opts.series = append(opts.series, s)
	}
	return opts, nil
}

// loadConfig starts from defaults or the given file and applies flag overrides.
func loadConfig(opts options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		loaded, err := config.LoadFile(opts.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	cfg.Logging.Level = opts.logLevel
	if opts.timezone != "" {
		cfg.Analysis.Timezone = opts.timezone
	}
	if opts.locale != "" {
		cfg.Analysis.Locale = opts.locale
	}
	if opts.concurrency > 0 {
		cfg.Analysis.BatchConcurrency = opts.concurrency
	}
	if _, err := cfg.Analysis.LoadLocation(); err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", cfg.Analysis.Timezone, err)
	}
	return cfg, nil
}

func newService(cfg *config.Config, logger *slog.Logger, fetcher *sources.SheetFetcher) (*services.AnalysisService, error) {
	loc, err := cfg.Analysis.LoadLocation()
	if err != nil {
		return nil, err
	}
	return services.NewAnalysisService(services.AnalysisDeps{
		Parser: dataprocessing.NewParser(
			dataprocessing.WithParserLogger(logger),
			dataprocessing.WithLocation(loc),
		),
		Aggregator: dataprocessing.NewAggregator(
			dataprocessing.WithAggregatorLocation(loc),
			dataprocessing.WithWeekdayLocale(cfg.Analysis.Locale),
		),
		Sheets:      fetcher,
		Logger:      logger,
		Concurrency: cfg.Analysis.BatchConcurrency,
	}), nil
}

// buildInputs turns arguments into batch inputs. Sheet URLs are fetched
// lazily so they run under the batch concurrency limit.
func buildInputs(args []string, fetcher services.SheetSource, validator *validation.FileValidator, maxBytes int64) ([]services.WorkbookInput, error) {
	var (
		paths  []string
		inputs []services.WorkbookInput
		sheets []sources.SheetRef
	)
	for _, arg := range args {
		if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
			ref, err := sources.ParseSheetURL(arg)
			if err != nil {
				return nil, err
			}
			sheets = append(sheets, ref)
			continue
		}
		paths = append(paths, arg)
	}

	expanded, err := files.ExpandPaths(paths)
	if err != nil {
		return nil, err
	}
	for _, p := range expanded {
		inputs = append(inputs, services.WorkbookInput{
			Name: p,
			Load: func(context.Context) ([]byte, error) {
				if err := validator.ValidateWorkbookFile(p, maxBytes); err != nil {
					return nil, err
				}
				return os.ReadFile(p)
			},
		})
	}

	for _, ref := range sheets {
		inputs = append(inputs, services.WorkbookInput{
			Name: ref.Label(),
			Load: func(ctx context.Context) ([]byte, error) { return fetcher.Fetch(ctx, ref) },
		})
	}

	if len(inputs) == 0 {
		return nil, errors.New("no workbooks found")
	}
	return inputs, nil
}

// exportAll writes one CSV per series next to each other in dir, named after
// the input's base name.
func exportAll(w *exporter.CSVWriter, dir string, res services.BatchResult, series []exporter.Series, loc *time.Location) error {
	base := exportBase(res.Name)
	for _, s := range series {
		table, err := exporter.Table(*res.Analysis, s, loc)
		if err != nil {
			return err
		}
		table.BOMPrefix = true
		if err := w.WriteFile(filepath.Join(dir, s.FileName(base)), table); err != nil {
			return err
		}
	}
	return nil
}

func exportBase(name string) string {
	base := filepath.Base(name)
	replacer := strings.NewReplacer(" ", "_", "#", "_", "=", "_", ":", "_")
	return replacer.Replace(base)
}

func containsSeries(list []exporter.Series, s exporter.Series) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
